package logging

import (
	"bytes"
	stdlog "log"
)

// StdLogger returns a standard library logger whose output is re-logged at
// the given level, for APIs such as http.Server.ErrorLog.
func (log *Logger) StdLogger(level Level) *stdlog.Logger {
	return stdlog.New(&stdWriter{log, level}, "", 0)
}

type stdWriter struct {
	log   *Logger
	level Level
}

func (w *stdWriter) Write(p []byte) (int, error) {
	// Skip the standard library's Printf and output frames.
	w.log.Log(w.level, 4, "%s", bytes.TrimRight(p, "\n"))
	return len(p), nil
}
