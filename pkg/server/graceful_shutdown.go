package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

type shutdownFunc struct {
	name string
	fn   func(context.Context) error
}

// GracefulShutdown обеспечивает корректное завершение работы бота: сначала
// останавливается прием обновлений, затем фоновые циклы, в конце хранилища
type GracefulShutdown struct {
	logger         *zap.Logger
	timeout        time.Duration
	mu             sync.Mutex
	shutdownFuncs  []shutdownFunc
	shutdownSignal chan os.Signal
	done           chan struct{}
	once           sync.Once

	// ctx отменяется в момент получения сигнала, его слушают фоновые циклы
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGracefulShutdown создает новый экземпляр GracefulShutdown
func NewGracefulShutdown(logger *zap.Logger, timeout time.Duration) *GracefulShutdown {
	ctx, cancel := context.WithCancel(context.Background())
	gs := &GracefulShutdown{
		logger:         logger,
		timeout:        timeout,
		shutdownSignal: make(chan os.Signal, 1),
		done:           make(chan struct{}),
		ctx:            ctx,
		cancel:         cancel,
	}

	signal.Notify(gs.shutdownSignal, syscall.SIGINT, syscall.SIGTERM)

	return gs
}

// Context возвращает контекст, отменяемый при начале завершения работы
func (gs *GracefulShutdown) Context() context.Context {
	return gs.ctx
}

// AddShutdownFunc добавляет функцию для выполнения при завершении работы
func (gs *GracefulShutdown) AddShutdownFunc(name string, f func(context.Context) error) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.shutdownFuncs = append(gs.shutdownFuncs, shutdownFunc{name: name, fn: f})
}

// Wait блокирует выполнение до получения сигнала завершения
func (gs *GracefulShutdown) Wait() {
	gs.WaitWithContext(context.Background())
}

// WaitWithContext блокирует выполнение до получения сигнала завершения или отмены контекста
func (gs *GracefulShutdown) WaitWithContext(ctx context.Context) {
	select {
	case sig := <-gs.shutdownSignal:
		gs.logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case <-ctx.Done():
		gs.logger.Info("Context cancelled, initiating shutdown")
	}

	gs.once.Do(func() {
		gs.shutdown()
		close(gs.done)
	})
}

// Done возвращает канал, который закрывается после завершения всех операций
func (gs *GracefulShutdown) Done() <-chan struct{} {
	return gs.done
}

// Shutdown инициирует процесс завершения работы и ждет его окончания
func (gs *GracefulShutdown) Shutdown() {
	select {
	case gs.shutdownSignal <- syscall.SIGTERM:
	default:
	}
	<-gs.done
}

// shutdown выполняет все зарегистрированные функции завершения в обратном порядке
func (gs *GracefulShutdown) shutdown() {
	gs.cancel()
	signal.Stop(gs.shutdownSignal)

	ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
	defer cancel()

	gs.mu.Lock()
	funcs := make([]shutdownFunc, len(gs.shutdownFuncs))
	copy(funcs, gs.shutdownFuncs)
	gs.mu.Unlock()

	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i].fn(ctx); err != nil {
			gs.logger.Error("Error during shutdown",
				zap.String("component", funcs[i].name),
				zap.Error(err))
		}
	}

	gs.logger.Info("Graceful shutdown completed")
}
