package service

import (
	"context"
	"fmt"
	"time"

	"KirveHubBot/internal/models"
	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var maxBonusMultiplier = decimal.NewFromInt(10)

// BonusService временные множители начислений
type BonusService struct {
	store    repository.Store
	platform Platform
	audit    *AuditLog
	logger   *zap.Logger
	now      func() time.Time
}

// NewBonusService создает новый экземпляр BonusService
func NewBonusService(deps Deps) *BonusService {
	deps = deps.withDefaults()
	return &BonusService{
		store:    deps.Store,
		platform: deps.Platform,
		audit:    deps.Audit,
		logger:   deps.Logger,
		now:      deps.Now,
	}
}

// activeBonusMultiplier наибольший множитель среди действующих бонусных событий, 1 если их нет
func activeBonusMultiplier(tx repository.Tx, now time.Time) (decimal.Decimal, error) {
	events, err := tx.ListEvents(models.EventTypeBonus, models.EventStatusActive)
	if err != nil {
		return decimal.Zero, err
	}

	multiplier := decimal.NewFromInt(1)
	for _, event := range events {
		if event.EndsAt != nil && !now.Before(*event.EndsAt) {
			continue
		}
		if event.Multiplier.GreaterThan(multiplier) {
			multiplier = event.Multiplier
		}
	}
	return multiplier, nil
}

// StartBonus запускает бонусное событие; одновременно действует только одно
func (s *BonusService) StartBonus(ctx context.Context, actorID int64, multiplier decimal.Decimal, minutes int, title string) (*models.Event, error) {
	if !multiplier.GreaterThan(decimal.NewFromInt(1)) || multiplier.GreaterThan(maxBonusMultiplier) {
		return nil, apperrors.InvalidInput("multiplier must be greater than 1 and at most 10")
	}
	if minutes <= 0 || minutes > 7*24*60 {
		return nil, apperrors.InvalidInput("duration must be between 1 minute and 7 days")
	}
	if title == "" {
		title = fmt.Sprintf("x%s bonus", multiplier.String())
	}

	now := s.now()
	endsAt := now.Add(time.Duration(minutes) * time.Minute)
	event := &models.Event{
		Type:            models.EventTypeBonus,
		Title:           title,
		Status:          models.EventStatusActive,
		CreatorID:       actorID,
		MaxWinners:      1,
		EntryCost:       decimal.Zero,
		Multiplier:      multiplier,
		DurationMinutes: minutes,
		EndsAt:          &endsAt,
		CreatedAt:       now,
	}

	err := s.store.InTx(ctx, "bonus_start", func(tx repository.Tx) error {
		active, err := tx.ListEvents(models.EventTypeBonus, models.EventStatusActive)
		if err != nil {
			return err
		}
		for _, existing := range active {
			if existing.EndsAt == nil || now.Before(*existing.EndsAt) {
				return apperrors.Conflict("bonus event %d is already running", existing.ID)
			}
		}
		return tx.CreateEvent(event)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(AuditAdmin, SeverityInfo, "bonus x%s started by %d for %d min", multiplier.String(), actorID, minutes)
	s.announce(ctx, fmt.Sprintf("🚀 %s başladı! %d dakika boyunca kazanılan KP x%s.", title, minutes, multiplier.String()))
	return event, nil
}

// EndBonus завершает все действующие бонусные события
func (s *BonusService) EndBonus(ctx context.Context, actorID int64) (int, error) {
	ended, err := s.complete(ctx, func(models.Event) bool { return true })
	if err != nil {
		return 0, err
	}
	if ended == 0 {
		return 0, apperrors.NotFound("no active bonus event")
	}

	s.audit.Record(AuditAdmin, SeverityInfo, "bonus ended by %d", actorID)
	s.announce(ctx, "⏹ Bonus etkinliği sona erdi.")
	return ended, nil
}

// SweepExpired завершает бонусные события с истекшим сроком
func (s *BonusService) SweepExpired(ctx context.Context) (int, error) {
	now := s.now()
	ended, err := s.complete(ctx, func(event models.Event) bool {
		return event.EndsAt != nil && !now.Before(*event.EndsAt)
	})
	if err != nil {
		return 0, err
	}
	if ended > 0 {
		s.logger.Info("Expired bonus events completed", zap.Int("count", ended))
		s.announce(ctx, "⏹ Bonus etkinliği sona erdi.")
	}
	return ended, nil
}

// Run периодически завершает истекшие бонусы
func (s *BonusService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx); err != nil {
				s.logger.Error("Bonus sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *BonusService) complete(ctx context.Context, match func(models.Event) bool) (int, error) {
	ended := 0
	err := s.store.InTx(ctx, "bonus_complete", func(tx repository.Tx) error {
		ended = 0
		events, err := tx.ListEvents(models.EventTypeBonus, models.EventStatusActive)
		if err != nil {
			return err
		}

		now := s.now()
		for _, candidate := range events {
			if !match(candidate) {
				continue
			}
			event, err := tx.LockEvent(candidate.ID)
			if err != nil {
				return err
			}
			if event.Status != models.EventStatusActive {
				continue
			}
			event.Status = models.EventStatusCompleted
			event.CompletedAt = &now
			if err := tx.SaveEvent(event); err != nil {
				return err
			}
			ended++
		}
		return nil
	})
	return ended, err
}

func (s *BonusService) announce(ctx context.Context, text string) {
	var groups []models.Group
	err := s.store.ReadTx(ctx, "bonus_groups", func(tx repository.Tx) error {
		var err error
		groups, err = tx.ListActiveGroups()
		return err
	})
	if err != nil {
		s.logger.Warn("Failed to load groups for bonus announcement", zap.Error(err))
		return
	}

	for _, group := range groups {
		if _, err := s.platform.SendMessage(ctx, OutboundMessage{ChatID: group.GroupID, Text: text}); err != nil {
			s.logger.Warn("Failed to announce bonus", zap.Int64("group_id", group.GroupID), zap.Error(err))
		}
	}
}
