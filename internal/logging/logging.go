package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// Logger is the process-wide logger. It discards everything until Init runs.
var Logger = zap.NewNop().Sugar()

// Init builds the console logger on stderr. debug switches to the
// development config at debug level; otherwise only info and above are kept.
func Init(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		cfg.Sampling = nil
	}
	cfg.Encoding = "console"
	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	Logger = logger.Sugar()
	return nil
}

// Sync flushes buffered entries. Errors from syncing stderr are ignored.
func Sync() {
	_ = Logger.Sync()
}
