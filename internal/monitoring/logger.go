package monitoring

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger or UseZap. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Debugf logs high-volume detail such as per-poll results. It is a no-op
// until UseZap installs a logger; zap then filters it by level.
var Debugf func(format string, v ...interface{}) = func(string, ...interface{}) {}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// NewZapLogger builds the process logger. Debug selects a human-readable
// development encoder at debug level; otherwise JSON at info level.
func NewZapLogger(debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// UseZap routes Logf through l at info level and Debugf at debug level.
func UseZap(l *zap.Logger) {
	if l == nil {
		SetLogger(nil)
		Debugf = func(string, ...interface{}) {}
		return
	}
	sugar := l.WithOptions(zap.AddCallerSkip(1)).Sugar()
	SetLogger(sugar.Infof)
	Debugf = sugar.Debugf
}
