package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	// RequestIDKey ключ для request ID в контексте
	RequestIDKey contextKey = "request_id"

	// StartTimeKey ключ для времени начала обработки в контексте
	StartTimeKey contextKey = "start_time"
)

// TraceUpdate помечает обработку одного обновления Telegram идентификатором и
// возвращает функцию завершения, которая пишет лог и метрики
func TraceUpdate(ctx context.Context, logger *zap.Logger, kind string, updateID int) (context.Context, func(err error)) {
	requestID := uuid.New().String()
	startTime := time.Now()

	ctx = context.WithValue(ctx, RequestIDKey, requestID)
	ctx = context.WithValue(ctx, StartTimeKey, startTime)

	logger.Debug("Start processing update",
		zap.String("kind", kind),
		zap.Int("update_id", updateID),
		zap.String("request_id", requestID))

	return ctx, func(err error) {
		duration := time.Since(startTime)
		RecordUpdate(kind, duration, err)

		if err != nil {
			logger.Error("Update failed",
				zap.String("kind", kind),
				zap.Int("update_id", updateID),
				zap.String("request_id", requestID),
				zap.Duration("duration", duration),
				zap.Error(err))
			return
		}
		logger.Debug("Update completed",
			zap.String("kind", kind),
			zap.Int("update_id", updateID),
			zap.String("request_id", requestID),
			zap.Duration("duration", duration))
	}
}

// LoggingMiddleware создает middleware для HTTP запросов служебного сервера
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}
			r = r.WithContext(context.WithValue(r.Context(), RequestIDKey, requestID))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			startTime := time.Now()
			next.ServeHTTP(ww, r)

			logger.Debug("HTTP request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", requestID),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(startTime)))
		})
	}
}

// GetRequestID извлекает request ID из контекста
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithRequestID добавляет request ID в логгер
func WithRequestID(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if requestID := GetRequestID(ctx); requestID != "" {
		return logger.With(zap.String("request_id", requestID))
	}
	return logger
}
