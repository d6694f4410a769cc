package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"

	"go.uber.org/zap"
)

const (
	recruitMaxWeeklyMessages = 50
	recruitPersistentWindow  = 24 * time.Hour
	recruitUserCooldown      = 5 * time.Minute
	recruitGlobalCooldown    = 2 * time.Minute
	recruitGlobalKey         = "recruit:global"
)

// Recruiter приглашает активных незарегистрированных пользователей
type Recruiter struct {
	store     repository.Store
	registry  repository.RateRegistry
	platform  Platform
	catalogue *Catalogue
	logger    *zap.Logger
	now       func() time.Time
	location  *time.Location

	queue chan ChatMessage

	mu       sync.Mutex
	template int
}

// NewRecruiter создает новый экземпляр Recruiter
func NewRecruiter(deps Deps, registry repository.RateRegistry, catalogue *Catalogue) *Recruiter {
	deps = deps.withDefaults()
	return &Recruiter{
		store:     deps.Store,
		registry:  registry,
		platform:  deps.Platform,
		catalogue: catalogue,
		logger:    deps.Logger,
		now:       deps.Now,
		location:  deps.Location,
		queue:     make(chan ChatMessage, 64),
	}
}

// Offer ставит сообщение в очередь на проверку; при переполнении сообщение отбрасывается
func (r *Recruiter) Offer(msg ChatMessage) {
	select {
	case r.queue <- msg:
	default:
	}
}

// Run обрабатывает очередь до отмены контекста
func (r *Recruiter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.queue:
			if _, err := r.Consider(ctx, msg); err != nil {
				r.logger.Warn("Recruitment check failed", zap.Int64("user_id", msg.UserID), zap.Error(err))
			}
		}
	}
}

// Consider проверяет условия и при необходимости отправляет приглашение.
// Возвращает true, если приглашение было отправлено.
func (r *Recruiter) Consider(ctx context.Context, msg ChatMessage) (bool, error) {
	eligible, err := r.eligible(ctx, msg.UserID)
	if err != nil || !eligible {
		return false, err
	}

	userKey := fmt.Sprintf("recruit:user:%d", msg.UserID)
	if active, err := r.registry.Active(ctx, userKey); err != nil || active {
		return false, err
	}
	acquired, err := r.registry.Acquire(ctx, recruitGlobalKey, recruitGlobalCooldown)
	if err != nil || !acquired {
		return false, err
	}
	if err := r.registry.Set(ctx, userKey, recruitUserCooldown); err != nil {
		return false, err
	}

	now := r.now()
	err = r.store.InTx(ctx, "recruitment_mark", func(tx repository.Tx) error {
		user, err := tx.LockUser(msg.UserID)
		if err != nil {
			return err
		}
		user.LastRecruitedAt = &now
		return tx.SaveUser(user)
	})
	if err != nil {
		return false, err
	}

	name := msg.FirstName
	if name == "" {
		name = "dostum"
	}
	if _, err := r.platform.SendMessage(ctx, OutboundMessage{
		ChatID:  msg.ChatID,
		Text:    fill(r.nextTemplate(), name),
		ReplyTo: msg.MessageID,
	}); err != nil {
		r.logger.Warn("Failed to post recruitment reply", zap.Int64("chat_id", msg.ChatID), zap.Error(err))
	}
	if _, err := r.platform.SendMessage(ctx, DM(msg.UserID, fill(r.catalogue.Recruitment.DM, name))); err != nil {
		r.logger.Debug("Recruitment DM not delivered", zap.Int64("user_id", msg.UserID), zap.Error(err))
	}

	r.logger.Info("Recruitment invitation sent", zap.Int64("user_id", msg.UserID), zap.Int64("chat_id", msg.ChatID))
	return true, nil
}

func (r *Recruiter) eligible(ctx context.Context, userID int64) (bool, error) {
	eligible := false
	err := r.store.ReadTx(ctx, "recruitment_check", func(tx repository.Tx) error {
		eligible = false
		settings, err := tx.GetSettings()
		if err != nil {
			return err
		}
		if !settings.RecruitmentEnabled {
			return nil
		}

		user, err := tx.GetUser(userID)
		if apperrors.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if user.IsRegistered {
			return nil
		}

		now := r.now()
		if user.LastRecruitedAt != nil && now.Sub(*user.LastRecruitedAt) < recruitPersistentWindow {
			return nil
		}

		weekly, err := tx.CountUserMessagesSince(userID, DayKey(now.AddDate(0, 0, -6), r.location))
		if err != nil {
			return err
		}
		eligible = weekly <= recruitMaxWeeklyMessages
		return nil
	})
	return eligible, err
}

func (r *Recruiter) nextTemplate() string {
	templates := r.catalogue.Recruitment.Group
	if len(templates) == 0 {
		return "{name}, Kirve Point kazanmak için bota /start yaz 💎"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t := templates[r.template%len(templates)]
	r.template++
	return t
}
