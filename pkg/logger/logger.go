package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the application logger: a console core on stderr teed with a
// JSON core appending to a timestamped file under dir. An empty dir skips
// the file core. Level accepts debug, info, warn, error, fatal or none.
func New(dir, level string) (*zap.Logger, error) {
	if level == "none" {
		return zap.NewNop(), nil
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), lvl),
	}

	if dir != "" {
		f, err := openLogFile(dir)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), lvl))
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}

// NewFile builds a logger writing only to the timestamped file, for
// commands that own the terminal. An empty dir or level none returns a
// no-op logger.
func NewFile(dir, level string) (*zap.Logger, error) {
	if level == "none" || dir == "" {
		return zap.NewNop(), nil
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	f, err := openLogFile(dir)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), lvl)), nil
}

func openLogFile(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	name := filepath.Join(dir, fmt.Sprintf("batchrag_%s.log", time.Now().Format("2006-01-02_15-04-05")))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", name, err)
	}
	return f, nil
}
