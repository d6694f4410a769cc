package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Категории журнала
const (
	AuditPoints   = "points"
	AuditLottery  = "lottery"
	AuditMarket   = "market"
	AuditAdmin    = "admin"
	AuditSystem   = "system"
	AuditSecurity = "security"
)

// Уровни важности
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// AuditEntry запись журнала
type AuditEntry struct {
	Category string
	Severity string
	Text     string
	At       time.Time
}

// AuditLog пишет события в zap и накапливает их для пакетной отправки в лог-канал
type AuditLog struct {
	logger    *zap.Logger
	platform  Platform
	chatID    int64
	batchSize int
	now       func() time.Time

	mu      sync.Mutex
	pending []AuditEntry
	wake    chan struct{}
}

// NewAuditLog создает журнал. chatID 0 отключает отправку в канал.
func NewAuditLog(logger *zap.Logger, platform Platform, chatID int64, batchSize int) *AuditLog {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &AuditLog{
		logger:    logger.Named("audit"),
		platform:  platform,
		chatID:    chatID,
		batchSize: batchSize,
		now:       time.Now,
		wake:      make(chan struct{}, 1),
	}
}

// Record добавляет событие в журнал
func (a *AuditLog) Record(category, severity, format string, args ...interface{}) {
	if a == nil {
		return
	}
	text := fmt.Sprintf(format, args...)
	fields := []zap.Field{zap.String("category", category)}

	switch severity {
	case SeverityError:
		a.logger.Error(text, fields...)
	case SeverityWarning:
		a.logger.Warn(text, fields...)
	default:
		a.logger.Info(text, fields...)
	}

	if a.chatID == 0 || a.platform == nil {
		return
	}

	a.mu.Lock()
	a.pending = append(a.pending, AuditEntry{Category: category, Severity: severity, Text: text, At: a.now()})
	full := len(a.pending) >= a.batchSize
	a.mu.Unlock()

	if full {
		select {
		case a.wake <- struct{}{}:
		default:
		}
	}
}

// Pending количество неотправленных записей
func (a *AuditLog) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Flush отправляет накопленные записи одним сообщением на пакет
func (a *AuditLog) Flush(ctx context.Context) error {
	for {
		a.mu.Lock()
		if len(a.pending) == 0 {
			a.mu.Unlock()
			return nil
		}
		n := len(a.pending)
		if n > a.batchSize {
			n = a.batchSize
		}
		batch := append([]AuditEntry(nil), a.pending[:n]...)
		a.mu.Unlock()

		if _, err := a.platform.SendMessage(ctx, OutboundMessage{ChatID: a.chatID, Text: formatAuditBatch(batch)}); err != nil {
			a.logger.Warn("Failed to flush audit batch", zap.Int("entries", len(batch)), zap.Error(err))
			return err
		}

		a.mu.Lock()
		a.pending = a.pending[n:]
		a.mu.Unlock()
	}
}

// Run периодически сбрасывает журнал до отмены контекста
func (a *AuditLog) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = a.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
		case <-a.wake:
		}
		_ = a.Flush(ctx)
	}
}

func severityIcon(severity string) string {
	switch severity {
	case SeverityError:
		return "🔴"
	case SeverityWarning:
		return "🟡"
	default:
		return "🟢"
	}
}

func formatAuditBatch(batch []AuditEntry) string {
	var b strings.Builder
	for i, e := range batch {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s [%s] %s %s", severityIcon(e.Severity), e.Category, e.At.Format("15:04:05"), e.Text)
	}
	return b.String()
}
