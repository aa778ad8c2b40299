package logger

import (
	"fmt"

	"github.com/hashicorp/go-retryablehttp"
)

// LeveledAdapter exposes a Logger as a retryablehttp.LeveledLogger so HTTP
// clients built on go-retryablehttp log through the gateway logger.
type LeveledAdapter struct {
	logger Logger
}

var _ retryablehttp.LeveledLogger = (*LeveledAdapter)(nil)

func NewLeveledAdapter(l Logger) *LeveledAdapter {
	return &LeveledAdapter{logger: l}
}

func (a *LeveledAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, kvToFields(keysAndValues)...)
}

func (a *LeveledAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, kvToFields(keysAndValues)...)
}

// Debug maps to trace; retryablehttp logs every attempt at debug.
func (a *LeveledAdapter) Debug(msg string, keysAndValues ...interface{}) {
	a.logger.Trace(msg, kvToFields(keysAndValues)...)
}

func (a *LeveledAdapter) Warn(msg string, keysAndValues ...interface{}) {
	a.logger.Warn(msg, kvToFields(keysAndValues)...)
}

// kvToFields converts alternating key/value pairs. A dangling value is kept
// under "EXTRA_VALUE_AT_END".
func kvToFields(kv []interface{}) []Field {
	fields := make([]Field, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		if i+1 >= len(kv) {
			fields = append(fields, Any("EXTRA_VALUE_AT_END", kv[i]))
			break
		}
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kv[i])
		}
		switch v := kv[i+1].(type) {
		case string:
			fields = append(fields, String(key, v))
		case error:
			fields = append(fields, String(key, v.Error()))
		default:
			fields = append(fields, Any(key, v))
		}
	}
	return fields
}
