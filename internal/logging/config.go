package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	errors "golang.org/x/xerrors"
)

const envVar = "LOGLEVEL"

type tagLevel struct {
	tag   string
	level Level
}

var (
	tagMu        sync.RWMutex
	tagLevels    []tagLevel
	defaultLevel = Info
)

func init() {
	if err := Configure(os.Getenv(envVar)); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", envVar, err)
	}
}

// Configure parses comma-separated "tag=level" directives, e.g.
// "debug,relay=9,loopback=warn". A directive without "tag=" sets the default
// level. Invalid directives are skipped and reported in the returned error;
// valid ones still take effect. Unmentioned settings revert to Info.
func Configure(directives string) error {
	var bad []string
	var levels []tagLevel
	def := Info

	for _, d := range strings.Split(directives, ",") {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		v := strings.SplitN(d, "=", 2)
		level, err := parseLevel(v[len(v)-1])
		if err != nil {
			bad = append(bad, fmt.Sprintf("'%s'", d))
			continue
		}
		if len(v) == 1 {
			def = level
		} else {
			levels = append(levels, tagLevel{v[0], level})
		}
	}

	tagMu.Lock()
	defaultLevel = def
	tagLevels = levels
	tagMu.Unlock()

	if len(bad) > 0 {
		return errors.Errorf("invalid directives %s: %w", strings.Join(bad, ", "), ErrBadLevel)
	}
	return nil
}

func currentDefault() Level {
	tagMu.RLock()
	defer tagMu.RUnlock()
	return defaultLevel
}

func determineLevel(tag string, fallback Level) Level {
	tagMu.RLock()
	defer tagMu.RUnlock()
	for _, e := range tagLevels {
		if e.tag == tag {
			return e.level
		}
	}
	return fallback
}
