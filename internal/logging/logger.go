package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// Destination shared by a logger and everything derived from it.
type sink struct {
	// Prevents messages from different goroutines from interleaving.
	mu  sync.Mutex
	out io.Writer
}

type Logger struct {
	// Verbosity used when no LOGLEVEL directive names this logger's tag, or
	// -100 to follow the default level. Messages more verbose than the
	// effective level are dropped.
	fallback int32

	// Tag used to filter and classify log messages.
	Tag string

	// Explicit level set through SetLevel, or -100 if unset.
	pinned int32

	sink *sink
}

const unpinned = -100

// Write to stderr by default.
var DefaultLogger = &Logger{fallback: unpinned, pinned: unpinned, sink: &sink{out: os.Stderr}}

// Override the destination for this logger and every logger derived from it.
func (log *Logger) SetDestination(out io.Writer) {
	log.sink.mu.Lock()
	log.sink.out = out
	log.sink.mu.Unlock()
}

// Level returns the level currently in effect for this logger.
func (log *Logger) Level() Level {
	return log.effectiveLevel()
}

// SetLevel pins the level of this logger, overriding LOGLEVEL directives.
func (log *Logger) SetLevel(level Level) {
	atomic.StoreInt32(&log.pinned, int32(level))
}

// Derive a new logger with the given tag. The level is looked up from the
// LOGLEVEL directives each time a message is logged.
func (log *Logger) WithTag(tag string) *Logger {
	return &Logger{fallback: atomic.LoadInt32(&log.fallback), Tag: tag, pinned: unpinned, sink: log.sink}
}

// Derive a new logger with the given default level. This can still be
// overridden at runtime.
func (log *Logger) WithDefaultLevel(level Level) *Logger {
	return &Logger{fallback: int32(level), Tag: log.Tag, pinned: unpinned, sink: log.sink}
}

// Enabled reports whether a message at the given level would be written.
func (log *Logger) Enabled(level Level) bool {
	return level <= log.effectiveLevel()
}

func (log *Logger) effectiveLevel() Level {
	if p := atomic.LoadInt32(&log.pinned); p != unpinned {
		return Level(p)
	}
	fallback := currentDefault()
	if f := atomic.LoadInt32(&log.fallback); f != unpinned {
		fallback = Level(f)
	}
	return determineLevel(log.Tag, fallback)
}

// Wrapper for []byte that implements io.Writer. Simpler and cheaper than
// bytes.Buffer.
type buffer []byte

func (b *buffer) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}

func (b *buffer) writeByte(c byte) {
	*b = append(*b, c)
}

// A global buffer pool, shared across all loggers. Initial capacity is 256 to
// accommodate *most* log lines.
var bufPool = sync.Pool{
	New: func() interface{} {
		return make(buffer, 0, 256)
	},
}

// Log a message at the given level. Include the file and line number from
// 'calldepth' steps up the call stack.
func (log *Logger) Log(level Level, calldepth int, format string, a ...interface{}) {
	if !log.Enabled(level) {
		return
	}

	buf := bufPool.Get().(buffer)
	defer func() { bufPool.Put(buf[:0]) }()

	buf = append(buf, stampColor.Sprint(time.Now().Format(timestampFormat))...)

	// Get the caller of Error()/Warn()/Info()/etc.
	_, file, line, ok := runtime.Caller(calldepth + 1)
	if !ok {
		file = "?"
	}

	prefix := fmt.Sprintf(" %c/%s[%s:%d]", level.letter(), log.Tag, filepath.Base(file), line)
	buf = append(buf, level.color().Sprint(prefix)...)
	buf.writeByte(' ')

	fmt.Fprintf(&buf, format, a...)

	if n := len(buf); n == 0 || buf[n-1] != '\n' {
		buf.writeByte('\n')
	}

	log.sink.mu.Lock()
	defer log.sink.mu.Unlock()
	if _, err := log.sink.out.Write(buf); err != nil {
		fmt.Fprintf(os.Stderr, "logging: write to %v failed: %v\n", log.sink.out, err)
	}
}

func (log *Logger) Error(format string, a ...interface{}) {
	log.Log(Error, 1, format, a...)
}

func (log *Logger) Warn(format string, a ...interface{}) {
	log.Log(Warn, 1, format, a...)
}

func (log *Logger) Info(format string, a ...interface{}) {
	log.Log(Info, 1, format, a...)
}

func (log *Logger) Debug(format string, a ...interface{}) {
	log.Log(Debug, 1, format, a...)
}

func (log *Logger) Trace(n int, format string, a ...interface{}) {
	log.Log(Level(n), 1, format, a...)
}
