package service

import (
	"context"
	"time"

	"KirveHubBot/internal/models"
	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"

	"github.com/shopspring/decimal"
)

// GroupInfo сводка для /grupbilgi
type GroupInfo struct {
	Group         *models.Group
	MessagesToday int64
}

// GroupService регистрация групп
type GroupService struct {
	store    repository.Store
	audit    *AuditLog
	now      func() time.Time
	location *time.Location
}

// NewGroupService создает новый экземпляр GroupService
func NewGroupService(deps Deps) *GroupService {
	deps = deps.withDefaults()
	return &GroupService{store: deps.Store, audit: deps.Audit, now: deps.Now, location: deps.Location}
}

// Register регистрирует группу или повторно активирует ее; второй результат true для повторной активации
func (s *GroupService) Register(ctx context.Context, actorID, groupID int64, title, username string) (*models.Group, bool, error) {
	var (
		group       *models.Group
		reactivated bool
	)
	err := s.store.InTx(ctx, "group_register", func(tx repository.Tx) error {
		existing, err := tx.GetGroup(groupID)
		switch {
		case err == nil:
			if existing.IsActive {
				return apperrors.Conflict("group %d is already registered", groupID)
			}
			reactivated = true
			group = existing
		case apperrors.IsNotFound(err):
			group = &models.Group{GroupID: groupID, PointMultiplier: decimal.NewFromInt(1), CreatedAt: s.now()}
		default:
			return err
		}

		group.Title = title
		group.Username = username
		group.RegisteredBy = actorID
		group.IsActive = true
		group.UnregisteredAt = nil
		return tx.SaveGroup(group)
	})
	if err != nil {
		return nil, false, err
	}

	s.audit.Record(AuditAdmin, SeverityInfo, "group %d (%s) registered by %d", groupID, title, actorID)
	return group, reactivated, nil
}

// Info данные группы и число сообщений за сегодня
func (s *GroupService) Info(ctx context.Context, groupID int64) (*GroupInfo, error) {
	info := &GroupInfo{}
	err := s.store.ReadTx(ctx, "group_info", func(tx repository.Tx) error {
		var err error
		info.Group, err = tx.GetGroup(groupID)
		if err != nil {
			return err
		}
		info.MessagesToday, err = tx.CountGroupMessages(groupID, DayKey(s.now(), s.location))
		return err
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// Unregister деактивирует группу; начисления в ней прекращаются
func (s *GroupService) Unregister(ctx context.Context, actorID, groupID int64) error {
	err := s.store.InTx(ctx, "group_unregister", func(tx repository.Tx) error {
		group, err := tx.GetGroup(groupID)
		if err != nil {
			return err
		}
		if !group.IsActive {
			return apperrors.Conflict("group %d is not active", groupID)
		}
		now := s.now()
		group.IsActive = false
		group.UnregisteredAt = &now
		return tx.SaveGroup(group)
	})
	if err != nil {
		return err
	}

	s.audit.Record(AuditAdmin, SeverityWarning, "group %d unregistered by %d", groupID, actorID)
	return nil
}

// SetMultiplier задает множитель начислений группы
func (s *GroupService) SetMultiplier(ctx context.Context, actorID, groupID int64, multiplier decimal.Decimal) (*models.Group, error) {
	if !multiplier.IsPositive() || multiplier.GreaterThan(maxBonusMultiplier) {
		return nil, apperrors.InvalidInput("multiplier must be in (0, 10]")
	}

	var group *models.Group
	err := s.store.InTx(ctx, "group_set_multiplier", func(tx repository.Tx) error {
		var err error
		group, err = tx.GetGroup(groupID)
		if err != nil {
			return err
		}
		group.PointMultiplier = multiplier.Round(2)
		return tx.SaveGroup(group)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(AuditAdmin, SeverityInfo, "group %d multiplier %s by %d", groupID, multiplier.String(), actorID)
	return group, nil
}

// ListActive активные группы
func (s *GroupService) ListActive(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	err := s.store.ReadTx(ctx, "group_list_active", func(tx repository.Tx) error {
		var err error
		groups, err = tx.ListActiveGroups()
		return err
	})
	return groups, err
}
