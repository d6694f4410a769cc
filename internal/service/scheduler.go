package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"KirveHubBot/internal/models"
	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Префиксы callback-данных профилей
const (
	CallbackProfileToggle = "sch:toggle:"
	CallbackProfileDelete = "sch:delete:"
)

const minProfileInterval = 60

// ProfileInput параметры нового профиля
type ProfileInput struct {
	Name            string
	GroupID         int64
	MessageText     string
	Link            string
	ImageURL        string
	IntervalSeconds int
}

// Scheduler публикует сообщения активных профилей по их интервалу.
// Время последней отправки хранится только в памяти процесса.
type Scheduler struct {
	store    repository.Store
	platform Platform
	audit    *AuditLog
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[uint]time.Time
}

// NewScheduler создает новый экземпляр Scheduler
func NewScheduler(deps Deps) *Scheduler {
	deps = deps.withDefaults()
	return &Scheduler{
		store:    deps.Store,
		platform: deps.Platform,
		audit:    deps.Audit,
		logger:   deps.Logger,
		now:      deps.Now,
		lastSent: make(map[uint]time.Time),
	}
}

// RunOnce один проход планировщика. Просроченный профиль отправляется один раз,
// без догоняющих отправок. Возвращает число отправленных сообщений.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	var (
		profiles []models.ScheduledProfile
		enabled  bool
	)
	err := s.store.ReadTx(ctx, "scheduler_profiles", func(tx repository.Tx) error {
		settings, err := tx.GetSettings()
		if err != nil {
			return err
		}
		enabled = settings.ScheduledMessagesEnabled
		if !enabled {
			return nil
		}
		profiles, err = tx.ListProfiles(true)
		return err
	})
	if err != nil || !enabled {
		return 0, err
	}

	now := s.now()
	var due []models.ScheduledProfile

	s.mu.Lock()
	active := make(map[uint]struct{}, len(profiles))
	for _, p := range profiles {
		active[p.ID] = struct{}{}
		last, seen := s.lastSent[p.ID]
		if !seen {
			s.lastSent[p.ID] = now
			continue
		}
		if now.Sub(last) >= time.Duration(p.IntervalSeconds)*time.Second {
			s.lastSent[p.ID] = now
			due = append(due, p)
		}
	}
	for id := range s.lastSent {
		if _, ok := active[id]; !ok {
			delete(s.lastSent, id)
		}
	}
	s.mu.Unlock()

	sent := 0
	for _, p := range due {
		if _, err := s.platform.SendMessage(ctx, profileMessage(p)); err != nil {
			s.logger.Warn("Scheduled message failed", zap.Uint("profile_id", p.ID), zap.Int64("group_id", p.GroupID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

func profileMessage(p models.ScheduledProfile) OutboundMessage {
	msg := OutboundMessage{ChatID: p.GroupID, Text: p.MessageText, PhotoURL: p.ImageURL}
	if p.Link != "" {
		msg.Buttons = [][]Button{{{Text: "🔗 Detaylar", URL: p.Link}}}
	}
	return msg
}

// Run выполняет RunOnce на каждом тике до отмены контекста
func (s *Scheduler) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("Scheduler tick failed", zap.Error(err))
			}
		}
	}
}

// CreateProfile создает активный профиль; первая отправка через полный интервал
func (s *Scheduler) CreateProfile(ctx context.Context, actorID int64, in ProfileInput) (*models.ScheduledProfile, error) {
	if strings.TrimSpace(in.MessageText) == "" {
		return nil, apperrors.InvalidInput("message text is required")
	}
	if in.IntervalSeconds < minProfileInterval {
		return nil, apperrors.InvalidInput("interval must be at least %d seconds", minProfileInterval)
	}
	if in.Name == "" {
		in.Name = "profil-" + uuid.NewString()[:6]
	}

	profile := &models.ScheduledProfile{
		Name:            in.Name,
		GroupID:         in.GroupID,
		MessageText:     in.MessageText,
		Link:            in.Link,
		ImageURL:        in.ImageURL,
		IntervalSeconds: in.IntervalSeconds,
		IsActive:        true,
		CreatedBy:       actorID,
	}
	err := s.store.InTx(ctx, "scheduler_create_profile", func(tx repository.Tx) error {
		if _, err := tx.GetGroup(in.GroupID); err != nil {
			return err
		}
		return tx.CreateProfile(profile)
	})
	if err != nil {
		return nil, err
	}

	s.markSent(profile.ID)
	s.audit.Record(AuditAdmin, SeverityInfo, "scheduled profile %d created by %d for group %d every %ds",
		profile.ID, actorID, profile.GroupID, profile.IntervalSeconds)
	return profile, nil
}

// Toggle включает или выключает профиль. После включения отсчет интервала начинается заново.
func (s *Scheduler) Toggle(ctx context.Context, actorID int64, profileID uint) (*models.ScheduledProfile, error) {
	var profile *models.ScheduledProfile
	err := s.store.InTx(ctx, "scheduler_toggle_profile", func(tx repository.Tx) error {
		var err error
		profile, err = tx.GetProfile(profileID)
		if err != nil {
			return err
		}
		profile.IsActive = !profile.IsActive
		return tx.SaveProfile(profile)
	})
	if err != nil {
		return nil, err
	}

	if profile.IsActive {
		s.markSent(profileID)
	} else {
		s.forget(profileID)
	}
	s.audit.Record(AuditAdmin, SeverityInfo, "scheduled profile %d active=%t by %d", profileID, profile.IsActive, actorID)
	return profile, nil
}

// DeleteProfile удаляет профиль
func (s *Scheduler) DeleteProfile(ctx context.Context, actorID int64, profileID uint) error {
	err := s.store.InTx(ctx, "scheduler_delete_profile", func(tx repository.Tx) error {
		return tx.DeleteProfile(profileID)
	})
	if err != nil {
		return err
	}

	s.forget(profileID)
	s.audit.Record(AuditAdmin, SeverityWarning, "scheduled profile %d deleted by %d", profileID, actorID)
	return nil
}

// ListProfiles все профили
func (s *Scheduler) ListProfiles(ctx context.Context) ([]models.ScheduledProfile, error) {
	var profiles []models.ScheduledProfile
	err := s.store.ReadTx(ctx, "scheduler_list_profiles", func(tx repository.Tx) error {
		var err error
		profiles, err = tx.ListProfiles(false)
		return err
	})
	return profiles, err
}

func (s *Scheduler) markSent(profileID uint) {
	s.mu.Lock()
	s.lastSent[profileID] = s.now()
	s.mu.Unlock()
}

func (s *Scheduler) forget(profileID uint) {
	s.mu.Lock()
	delete(s.lastSent, profileID)
	s.mu.Unlock()
}
