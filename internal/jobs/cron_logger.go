package jobs

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger adapts zap.Logger to cron.Logger.
type cronLogger struct {
	zl *zap.Logger
}

func NewCronLogger(zl *zap.Logger) cron.Logger {
	return &cronLogger{zl: zl}
}

// Info is used by cron for schedule chatter, so it is logged at debug level.
func (cl *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	cl.zl.Debug(msg, fieldsOf(keysAndValues)...)
}

func (cl *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	cl.zl.Error(msg, append(fieldsOf(keysAndValues), zap.Error(err))...)
}

func fieldsOf(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprintf("%v", keysAndValues[i])
		if i+1 < len(keysAndValues) {
			fields = append(fields, zap.Any(key, keysAndValues[i+1]))
		} else {
			fields = append(fields, zap.Any(key, "MISSING_VALUE"))
		}
	}
	return fields
}
