package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestGetLogLevel проверяет разбор LOG_LEVEL
func TestGetLogLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":      zapcore.InfoLevel,
		"debug": zapcore.DebugLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"bogus": zapcore.InfoLevel,
	}
	for value, expected := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", value)
			if got := getLogLevel(); got != expected {
				t.Errorf("Expected level %v, got %v", expected, got)
			}
		})
	}
}

// TestNewLogger_ExtraCore проверяет, что дополнительные ядра получают записи
func TestNewLogger_ExtraCore(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	log := NewLogger(Options{Service: "kirvehub", Extra: []zapcore.Core{core}})

	log.Info("not forwarded")
	log.Warn("forwarded", zap.Int64("user_id", 42))

	if logs.Len() != 1 {
		t.Fatalf("Expected 1 forwarded entry, got %d", logs.Len())
	}
	entry := logs.All()[0]
	if entry.Message != "forwarded" {
		t.Errorf("Expected message 'forwarded', got '%s'", entry.Message)
	}
	if entry.ContextMap()["service"] != "kirvehub" {
		t.Errorf("Expected service field, got %v", entry.ContextMap())
	}
}

// TestNewLogger_Detailed проверяет принудительный debug-уровень
func TestNewLogger_Detailed(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	log := NewLogger(Options{Detailed: true})
	if !log.Core().Enabled(zapcore.DebugLevel) {
		t.Error("Expected debug level to be enabled in detailed mode")
	}
}
