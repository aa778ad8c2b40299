package logger

import (
	"log"
	"strings"
)

// stdWriter turns the lines of a standard library *log.Logger into entries
// at a fixed level.
type stdWriter struct {
	logger Logger
	level  Level
}

// NewStdLogger returns a *log.Logger for APIs that only accept one, such as
// httputil.ReverseProxy.ErrorLog and http.Server.ErrorLog.
func NewStdLogger(l Logger, level Level) *log.Logger {
	return log.New(&stdWriter{logger: l, level: level}, "", 0)
}

func (w *stdWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	switch w.level {
	case TraceLevel:
		w.logger.Trace(msg)
	case DebugLevel:
		w.logger.Debug(msg)
	case InfoLevel:
		w.logger.Info(msg)
	case WarnLevel:
		w.logger.Warn(msg)
	default:
		w.logger.Error(msg)
	}
	return len(p), nil
}
