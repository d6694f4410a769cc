package telegram

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	defaultWorkers = 32
	// dedupWindow сколько последних update_id помнит сервер
	dedupWindow = 1024
)

// UpdateSource источник обновлений long polling
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// UpdateHandler обрабатывает одно обновление
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update) error
}

// ServerOptions параметры цикла обновлений
type ServerOptions struct {
	PollTimeout time.Duration
	Workers     int
}

// Server читает обновления и раздает их пулу обработчиков
type Server struct {
	source  UpdateSource
	handler UpdateHandler
	logger  *zap.Logger
	opts    ServerOptions

	slots chan struct{}
	wg    sync.WaitGroup

	mu     sync.Mutex
	seen   map[int]struct{}
	order  []int
	cursor int
}

// NewServer создает новый экземпляр Server
func NewServer(source UpdateSource, handler UpdateHandler, opts ServerOptions, logger *zap.Logger) *Server {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	return &Server{
		source:  source,
		handler: handler,
		logger:  logger,
		opts:    opts,
		slots:   make(chan struct{}, opts.Workers),
		seen:    make(map[int]struct{}, dedupWindow),
		order:   make([]int, 0, dedupWindow),
	}
}

// Run читает обновления до отмены ctx или закрытия канала
func (s *Server) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = int(s.opts.PollTimeout.Seconds())
	cfg.AllowedUpdates = []string{"message", "callback_query"}

	updates := s.source.GetUpdatesChan(cfg)
	s.logger.Info("Starting update loop", zap.Int("workers", s.opts.Workers), zap.Duration("poll_timeout", s.opts.PollTimeout))

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if !s.firstSeen(update.UpdateID) {
				s.logger.Debug("Duplicate update skipped", zap.Int("update_id", update.UpdateID))
				continue
			}
			select {
			case s.slots <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			s.wg.Add(1)
			// обработчик завершается сам, Stop только дожидается его
			go s.serve(context.WithoutCancel(ctx), update)
		}
	}
}

// Stop прекращает прием обновлений и ждет завершения обработчиков
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping update loop")
	s.source.StopReceivingUpdates()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) serve(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		<-s.slots
		s.wg.Done()
	}()
	defer s.recoverPanic(update.UpdateID)

	if err := s.handler.HandleUpdate(ctx, update); err != nil {
		s.logger.Debug("Update handled with error", zap.Int("update_id", update.UpdateID), zap.Error(err))
	}
}

// recoverPanic не дает панике одного обработчика остановить бота
func (s *Server) recoverPanic(updateID int) {
	if r := recover(); r != nil {
		s.logger.Error("Recovered from panic",
			zap.Any("panic", r),
			zap.Int("update_id", updateID),
			zap.Stack("stack"))
	}
}

// firstSeen отмечает update_id и сообщает, встречался ли он раньше
func (s *Server) firstSeen(updateID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[updateID]; ok {
		return false
	}
	if len(s.order) < dedupWindow {
		s.order = append(s.order, updateID)
	} else {
		delete(s.seen, s.order[s.cursor])
		s.order[s.cursor] = updateID
		s.cursor = (s.cursor + 1) % dedupWindow
	}
	s.seen[updateID] = struct{}{}
	return true
}
