package service

import (
	"context"
	"time"

	"KirveHubBot/internal/models"
	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"

	"go.uber.org/zap"
)

const broadcastAudienceWindow = 90 * 24 * time.Hour

// BroadcastReport итог рассылки
type BroadcastReport struct {
	Recipients int
	Sent       int
	Failed     int
}

// Broadcaster рассылает сообщение активным зарегистрированным пользователям
type Broadcaster struct {
	store    repository.Store
	platform Platform
	audit    *AuditLog
	logger   *zap.Logger
	now      func() time.Time
	delay    time.Duration
}

// NewBroadcaster создает новый экземпляр Broadcaster. delay пауза между отправками.
func NewBroadcaster(deps Deps, delay time.Duration) *Broadcaster {
	deps = deps.withDefaults()
	return &Broadcaster{
		store:    deps.Store,
		platform: deps.Platform,
		audit:    deps.Audit,
		logger:   deps.Logger,
		now:      deps.Now,
		delay:    delay,
	}
}

// Recipients пользователи с активностью за последние 90 дней
func (b *Broadcaster) Recipients(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := b.store.ReadTx(ctx, "broadcast_recipients", func(tx repository.Tx) error {
		var err error
		users, err = tx.ListRegisteredActiveSince(b.now().Add(-broadcastAudienceWindow))
		return err
	})
	return users, err
}

// Send отправляет текст каждому получателю. Ошибки доставки считаются, но не повторяются.
func (b *Broadcaster) Send(ctx context.Context, actorID int64, msg OutboundMessage) (*BroadcastReport, error) {
	if msg.Text == "" {
		return nil, apperrors.InvalidInput("broadcast text is empty")
	}

	users, err := b.Recipients(ctx)
	if err != nil {
		return nil, err
	}

	report := &BroadcastReport{Recipients: len(users)}
	for i, user := range users {
		if i > 0 && b.delay > 0 {
			select {
			case <-ctx.Done():
				b.logger.Warn("Broadcast interrupted", zap.Int("sent", report.Sent), zap.Int("failed", report.Failed))
				return report, ctx.Err()
			case <-time.After(b.delay):
			}
		}

		out := msg
		out.ChatID = user.UserID
		if _, err := b.platform.SendMessage(ctx, out); err != nil {
			report.Failed++
			b.logger.Debug("Broadcast delivery failed", zap.Int64("user_id", user.UserID), zap.Error(err))
			continue
		}
		report.Sent++
	}

	b.audit.Record(AuditAdmin, SeverityInfo, "broadcast by %d: %d sent, %d failed of %d",
		actorID, report.Sent, report.Failed, report.Recipients)
	return report, nil
}
