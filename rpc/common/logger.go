package common

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// zapLogger implements the ILogger interface on top of a named zap logger
type zapLogger struct {
	mu    sync.RWMutex
	level logger.LogLevel
	sugar *zap.SugaredLogger
}

func (l *zapLogger) SetLevel(level logger.LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *zapLogger) enabled(level logger.LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level >= level
}

func (l *zapLogger) Debugf(format string, args ...interface{}) {
	if l.enabled(logger.DEBUG) {
		l.sugar.Debugf(format, args...)
	}
}

func (l *zapLogger) Infof(format string, args ...interface{}) {
	if l.enabled(logger.INFO) {
		l.sugar.Infof(format, args...)
	}
}

func (l *zapLogger) Warningf(format string, args ...interface{}) {
	if l.enabled(logger.WARNING) {
		l.sugar.Warnf(format, args...)
	}
}

func (l *zapLogger) Errorf(format string, args ...interface{}) {
	if l.enabled(logger.ERROR) {
		l.sugar.Errorf(format, args...)
	}
}

func (l *zapLogger) Panicf(format string, args ...interface{}) {
	l.sugar.Panicf(format, args...)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

var (
	baseLogger = zap.NewNop()
	initOnce   sync.Once
)

// CreateLogger implements the dragonboat logger.Factory interface
func CreateLogger(pkgName string) logger.ILogger {
	return &zapLogger{
		level: logger.INFO,
		sugar: baseLogger.Named(pkgName).Sugar(),
	}
}

// NewZapLogger builds the zap logger described by config.
func NewZapLogger(config LogConfig) (*zap.Logger, error) {
	writeSyncer, err := getWriteSyncer(config.Output)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(config.Format) {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console", "":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("invalid log format: %s. must be one of console, json", config.Format)
	}

	// levels are filtered per named logger
	core := zapcore.NewCore(encoder, writeSyncer, zap.DebugLevel)
	return zap.New(core), nil
}

// getWriteSyncer selects the output destination for the logs.
func getWriteSyncer(output string) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(output) {
	case "stdout", "":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	default:
		file, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", output, err)
		}
		return zapcore.AddSync(file), nil
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info", "":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// loggerNames lists the named loggers of this module
var loggerNames = []string{
	"rpc",
	"rpc/client",
	"transport/rpc",
	"transport/grpc",
	"transport/http",
	"proxy",
	"kv/badger",
	"kv/redis",
	"badger",
}

// InitLoggers installs the zap backed logger factory and sets the level of
// all loggers. The factory is installed once per process, later calls only
// change the levels.
func InitLoggers(config LogConfig) error {
	level, err := ParseLogLevel(config.Level)
	if err != nil {
		return err
	}

	var initErr error
	initOnce.Do(func() {
		base, err := NewZapLogger(config)
		if err != nil {
			initErr = err
			return
		}
		baseLogger = base
		logger.SetLoggerFactory(CreateLogger)
	})
	if initErr != nil {
		return initErr
	}

	for _, name := range loggerNames {
		logger.GetLogger(name).SetLevel(level)
	}
	return nil
}

// SyncLoggers flushes buffered log entries.
func SyncLoggers() {
	_ = baseLogger.Sync()
}
