package utils

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	debugLogger *zap.SugaredLogger
	debugMu     sync.Mutex
)

// ConfigureDebug points the debug log at dir/debug.log.
// Until it is called, debug output is discarded.
func ConfigureDebug(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, "debug.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339TimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(f),
		zapcore.DebugLevel,
	)

	debugMu.Lock()
	debugLogger = zap.New(core).Sugar()
	debugMu.Unlock()
	return nil
}

func logger() *zap.SugaredLogger {
	debugMu.Lock()
	defer debugMu.Unlock()
	if debugLogger == nil {
		debugLogger = zap.NewNop().Sugar()
	}
	return debugLogger
}

// Debug writes a message to debug.log
func Debug(format string, args ...any) {
	logger().Debugf(format, args...)
}

// Warn writes a warning to debug.log
func Warn(format string, args ...any) {
	logger().Warnf(format, args...)
}

// Error writes an error to debug.log
func Error(format string, args ...any) {
	logger().Errorf(format, args...)
}

// SyncDebug flushes buffered log entries
func SyncDebug() {
	_ = logger().Sync()
}
