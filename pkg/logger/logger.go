package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options управляет построением логгера
type Options struct {
	// Detailed принудительно включает debug-уровень
	Detailed bool
	// Service добавляется полем service в каждую запись
	Service string
	// Extra дополнительные ядра (например, пересылка ошибок в лог-канал)
	Extra []zapcore.Core
}

// NewLogger создает новый логгер
func NewLogger(opts Options) *zap.Logger {
	// Определение уровня логирования на основе переменной окружения
	logLevel := getLogLevel()
	if opts.Detailed {
		logLevel = zapcore.DebugLevel
	}

	// Настройка кодировщика для структурированного логирования
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(os.Stdout),
			logLevel,
		),
	}
	cores = append(cores, opts.Extra...)

	// Ошибки логируются со стеком вызовов, как требует политика internal_error
	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if opts.Service != "" {
		logger = logger.With(zap.String("service", opts.Service))
	}

	return logger
}

// getLogLevel определяет уровень логирования на основе переменной окружения
func getLogLevel() zapcore.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
