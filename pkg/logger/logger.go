package logger

import (
	"os"
	"strings"
	"sync"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	mu           sync.RWMutex
)

func init() { // ensure we always have a usable logger even before Init is called
	globalLogger = zap.NewNop()
}

// FileOptions enables a rotating file sink next to stdout.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Options controls how the global logger is built.
type Options struct {
	Level string
	File  FileOptions
}

// Init configures the global logger using the provided level string.
func Init(level string) error {
	return InitWithOptions(Options{Level: level})
}

// InitWithOptions configures the global logger, optionally tee-ing JSON entries into a
// lumberjack-rotated file.
func InitWithOptions(opts Options) error {
	zapLevel := parseLevel(opts.Level)

	path := strings.TrimSpace(opts.File.Path)
	if path == "" {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapLevel)

		logger, err := cfg.Build()
		if err != nil {
			return err
		}
		replace(logger)
		return nil
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	rotating := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    defaultInt(opts.File.MaxSizeMB, 100),
		MaxBackups: defaultInt(opts.File.MaxBackups, 5),
		MaxAge:     defaultInt(opts.File.MaxAgeDays, 30),
		Compress:   opts.File.Compress,
	}

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), zapLevel),
		zapcore.NewCore(encoder, zapcore.AddSync(rotating), zapLevel),
	)

	replace(zap.New(core, zap.AddCaller()))
	return nil
}

func replace(logger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()

	globalLogger = logger
}

func parseLevel(level string) zapcore.Level {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return zapcore.InfoLevel
	}
	return zapLevel
}

func defaultInt(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

// Logger returns the configured global logger.
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()

	return globalLogger
}

// Sync flushes buffered log entries.
func Sync() error {
	return Logger().Sync()
}

// WithModule returns a child logger annotated with the module name.
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}

// Info logs an informational message using the global logger.
func Info(msg string, fields ...zap.Field) {
	Logger().Info(msg, fields...)
}

// Error logs an error message using the global logger.
func Error(msg string, fields ...zap.Field) {
	Logger().Error(msg, fields...)
}

// Warn logs a warning message using the global logger.
func Warn(msg string, fields ...zap.Field) {
	Logger().Warn(msg, fields...)
}

// Debug logs a debug message using the global logger.
func Debug(msg string, fields ...zap.Field) {
	Logger().Debug(msg, fields...)
}
