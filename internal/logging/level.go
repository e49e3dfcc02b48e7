package logging

import (
	"strconv"
	"strings"

	errors "golang.org/x/xerrors"
)

// Level of a log line. Error is the quietest; values above Debug are numbered
// trace levels.
type Level int

const (
	Error Level = iota - 2
	Warn
	Info
	Debug

	MaxLevel Level = 9
)

var ErrBadLevel = errors.New("logging: bad level")

// Named levels, indexed from Error.
var levelNames = [...]struct {
	long, short string
}{
	{"error", "e"},
	{"warn", "w"},
	{"info", "i"},
	{"debug", "d"},
}

// parseLevel accepts a level name, its first letter, "trace" or a number in
// [Error, MaxLevel]. Case is ignored.
func parseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range levelNames {
		if name == n.long || name == n.short {
			return Error + Level(i), nil
		}
	}
	if name == "trace" || name == "t" {
		return MaxLevel, nil
	}

	n, err := strconv.Atoi(name)
	if err != nil {
		return 0, errors.Errorf("%q: %w", s, ErrBadLevel)
	}
	if l := Level(n); l >= Error && l <= MaxLevel {
		return l, nil
	}
	return 0, errors.Errorf("%q out of range [%d, %d]: %w", s, Error, MaxLevel, ErrBadLevel)
}

func (l Level) named() bool {
	return l >= Error && l <= Debug
}

func (l Level) String() string {
	if l.named() {
		n := levelNames[l-Error].long
		return strings.ToUpper(n[:1]) + n[1:]
	}
	return strconv.Itoa(int(l))
}

// letter tags each line: E, W, I, D, or the trace digit.
func (l Level) letter() byte {
	if l.named() {
		return levelNames[l-Error].short[0] - 'a' + 'A'
	}
	return byte('0' + l)
}
