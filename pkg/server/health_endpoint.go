package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthCheckerInterface определяет интерфейс для проверки здоровья зависимостей
type HealthCheckerInterface interface {
	IsDatabaseHealthy(ctx context.Context) bool
	IsRedisHealthy(ctx context.Context) bool
}

// HealthCheck представляет сервис проверки здоровья и метрик
type HealthCheck struct {
	checker       HealthCheckerInterface
	logger        *zap.Logger
	server        *http.Server
	interval      time.Duration
	statusMutex   sync.RWMutex
	serviceStatus map[string]string
	stop          chan struct{}
	stopOnce      sync.Once
}

// HealthResponse представляет ответ эндпоинта проверки здоровья
type HealthResponse struct {
	Status    string            `json:"status"`
	Services  map[string]string `json:"services"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
}

// NewHealthCheck создает новый сервис проверки здоровья
func NewHealthCheck(checker HealthCheckerInterface, logger *zap.Logger, version string) *HealthCheck {
	return &HealthCheck{
		checker:  checker,
		logger:   logger,
		interval: 10 * time.Second,
		serviceStatus: map[string]string{
			"service":  "up",
			"postgres": "unknown",
			"redis":    "unknown",
			"version":  version,
		},
		stop: make(chan struct{}),
	}
}

// Router возвращает маршруты служебного HTTP сервера
func (h *HealthCheck) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(h.logger))

	r.Get("/health/live", h.livenessHandler)
	r.Get("/health/ready", h.readinessHandler)
	r.Get("/health", h.healthHandler)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// StartServer запускает HTTP сервер и фоновую проверку зависимостей
func (h *HealthCheck) StartServer(port int) {
	h.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		h.logger.Info("Starting health check server", zap.Int("port", port))
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("Health check server failed", zap.Error(err))
		}
	}()

	h.checkServicesHealth()
	go h.monitorHealth()
}

// Stop останавливает HTTP сервер и мониторинг
func (h *HealthCheck) Stop(ctx context.Context) error {
	h.stopOnce.Do(func() { close(h.stop) })
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// livenessHandler проверяет только, что процесс жив
func (h *HealthCheck) livenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "up"})
}

// readinessHandler сообщает о готовности; без хранилища бот не работает
func (h *HealthCheck) readinessHandler(w http.ResponseWriter, r *http.Request) {
	h.statusMutex.RLock()
	pgStatus := h.serviceStatus["postgres"]
	h.statusMutex.RUnlock()

	if pgStatus != "up" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "down",
			"message": "PostgreSQL is not available",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "up"})
}

// healthHandler отдает полную информацию о зависимостях
func (h *HealthCheck) healthHandler(w http.ResponseWriter, r *http.Request) {
	h.statusMutex.RLock()
	services := make(map[string]string, len(h.serviceStatus))
	for k, v := range h.serviceStatus {
		services[k] = v
	}
	h.statusMutex.RUnlock()

	status := "up"
	code := http.StatusOK
	if services["postgres"] != "up" {
		status = "down"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, HealthResponse{
		Status:    status,
		Services:  services,
		Timestamp: time.Now(),
		Version:   services["version"],
	})
}

// monitorHealth регулярно проверяет состояние зависимостей
func (h *HealthCheck) monitorHealth() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.checkServicesHealth()
		case <-h.stop:
			return
		}
	}
}

// checkServicesHealth проверяет здоровье всех зависимостей
func (h *HealthCheck) checkServicesHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pgStatus := "up"
	if !h.checker.IsDatabaseHealthy(ctx) {
		pgStatus = "down"
	}

	// Redis используется только для кулдаунов, его отказ снижает качество, но не останавливает бота
	redisStatus := "up"
	if !h.checker.IsRedisHealthy(ctx) {
		redisStatus = "degraded"
	}

	h.statusMutex.Lock()
	h.serviceStatus["postgres"] = pgStatus
	h.serviceStatus["redis"] = redisStatus
	h.statusMutex.Unlock()
}
