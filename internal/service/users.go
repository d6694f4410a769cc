package service

import (
	"context"
	"strings"
	"time"

	"KirveHubBot/internal/models"
	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"

	"go.uber.org/zap"
)

// UserProfile сводка для /menu
type UserProfile struct {
	User          *models.User
	Balance       *Balance
	RankName      string
	MessagesToday int64
	MessagesWeek  int64
}

// UserService регистрация, ранги и профиль пользователя
type UserService struct {
	store    repository.Store
	ledger   *Ledger
	audit    *AuditLog
	logger   *zap.Logger
	now      func() time.Time
	location *time.Location
}

// NewUserService создает новый экземпляр UserService
func NewUserService(deps Deps, ledger *Ledger) *UserService {
	deps = deps.withDefaults()
	return &UserService{
		store:    deps.Store,
		ledger:   ledger,
		audit:    deps.Audit,
		logger:   deps.Logger,
		now:      deps.Now,
		location: deps.Location,
	}
}

// Ensure возвращает пользователя, создавая строку при первом обращении
func (s *UserService) Ensure(ctx context.Context, userID int64, firstName, username string) (*models.User, error) {
	var user *models.User
	err := s.store.InTx(ctx, "user_ensure", func(tx repository.Tx) error {
		var err error
		user, err = tx.LockUser(userID)
		if apperrors.IsNotFound(err) {
			user = &models.User{UserID: userID, FirstName: firstName, Username: username, RankID: models.RankMember}
			return tx.CreateUser(user)
		}
		if err != nil {
			return err
		}
		if user.FirstName == firstName && user.Username == username {
			return nil
		}
		user.FirstName = firstName
		user.Username = username
		return tx.SaveUser(user)
	})
	return user, err
}

// Get возвращает пользователя
func (s *UserService) Get(ctx context.Context, userID int64) (*models.User, error) {
	var user *models.User
	err := s.store.ReadTx(ctx, "user_get", func(tx repository.Tx) error {
		var err error
		user, err = tx.GetUser(userID)
		return err
	})
	return user, err
}

// FindByUsername ищет пользователя по @username
func (s *UserService) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, apperrors.InvalidInput("username is empty")
	}

	var user *models.User
	err := s.store.ReadTx(ctx, "user_find_by_username", func(tx repository.Tx) error {
		var err error
		user, err = tx.FindUserByUsername(username)
		return err
	})
	return user, err
}

// Register регистрирует пользователя; второй результат сообщает, был ли он уже зарегистрирован
func (s *UserService) Register(ctx context.Context, userID int64, firstName, username string) (*models.User, bool, error) {
	var (
		user    *models.User
		already bool
	)
	err := s.store.InTx(ctx, "user_register", func(tx repository.Tx) error {
		var err error
		user, err = tx.LockUser(userID)
		if apperrors.IsNotFound(err) {
			user = &models.User{UserID: userID, RankID: models.RankMember}
			if err := tx.CreateUser(user); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if user.IsRegistered {
			already = true
			return nil
		}

		now := s.now()
		user.FirstName = firstName
		user.Username = username
		user.IsRegistered = true
		user.RegisteredAt = &now
		return tx.SaveUser(user)
	})
	if err != nil {
		return nil, false, err
	}

	if !already {
		s.audit.Record(AuditSystem, SeverityInfo, "user %d (%s) registered", userID, user.DisplayName())
	}
	return user, already, nil
}

// Unregister снимает регистрацию; баланс сохраняется
func (s *UserService) Unregister(ctx context.Context, userID int64) error {
	err := s.store.InTx(ctx, "user_unregister", func(tx repository.Tx) error {
		user, err := tx.LockUser(userID)
		if err != nil {
			return err
		}
		if !user.IsRegistered {
			return apperrors.NotRegistered("user %d is not registered", userID)
		}
		user.IsRegistered = false
		return tx.SaveUser(user)
	})
	if err != nil {
		return err
	}

	s.audit.Record(AuditSystem, SeverityInfo, "user %d unregistered", userID)
	return nil
}

// Profile данные для личного меню
func (s *UserService) Profile(ctx context.Context, userID int64) (*UserProfile, error) {
	profile := &UserProfile{}
	now := s.now()
	err := s.store.ReadTx(ctx, "user_profile", func(tx repository.Tx) error {
		user, err := tx.GetUser(userID)
		if err != nil {
			return err
		}
		profile.User = user
		profile.RankName = RankNames[user.RankID]

		today := DayKey(now, s.location)
		if profile.MessagesToday, err = tx.CountUserMessagesSince(userID, today); err != nil {
			return err
		}
		weekAgo := DayKey(now.AddDate(0, 0, -6), s.location)
		profile.MessagesWeek, err = tx.CountUserMessagesSince(userID, weekAgo)
		return err
	})
	if err != nil {
		return nil, err
	}

	balance, err := s.ledger.GetBalances(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile.Balance = balance
	return profile, nil
}

// SetRank меняет ранг пользователя. Нельзя выдать ранг выше своего
// и нельзя менять ранг равного или старшего, если вы не супер-админ.
func (s *UserService) SetRank(ctx context.Context, actor *models.User, targetID int64, rank int) (*models.User, error) {
	if _, ok := RankNames[rank]; !ok {
		return nil, apperrors.InvalidInput("rank must be between %d and %d", models.RankMember, models.RankSuperAdmin)
	}
	if !Allowed(actor.RankID, CapManageRanks) {
		return nil, apperrors.Forbidden("rank change requires rank %d", models.RankAdmin2)
	}
	if targetID == actor.UserID {
		return nil, apperrors.InvalidInput("cannot change own rank")
	}
	if actor.RankID != models.RankSuperAdmin && rank >= actor.RankID {
		return nil, apperrors.Forbidden("cannot grant rank %d", rank)
	}

	var target *models.User
	err := s.store.InTx(ctx, "user_set_rank", func(tx repository.Tx) error {
		var err error
		target, err = tx.LockUser(targetID)
		if err != nil {
			return err
		}
		if actor.RankID != models.RankSuperAdmin && target.RankID >= actor.RankID {
			return apperrors.Forbidden("cannot change rank of user %d", targetID)
		}
		target.RankID = rank
		return tx.SaveUser(target)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(AuditSecurity, SeverityWarning, "%d set rank of %d to %d", actor.UserID, targetID, rank)
	return target, nil
}

// ListStaff пользователи с рангом модератора
func (s *UserService) ListStaff(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.store.ReadTx(ctx, "user_list_staff", func(tx repository.Tx) error {
		var err error
		users, err = tx.ListUsersByMinRank(models.RankAdmin1)
		return err
	})
	return users, err
}

// DeleteAccount удаляет пользователя со всеми зависимыми строками
func (s *UserService) DeleteAccount(ctx context.Context, actorID, targetID int64) error {
	if actorID == targetID {
		return apperrors.InvalidInput("cannot delete own account")
	}
	err := s.store.InTx(ctx, "user_delete", func(tx repository.Tx) error {
		return tx.DeleteUser(targetID)
	})
	if err != nil {
		return err
	}

	s.audit.Record(AuditSecurity, SeverityError, "account %d deleted by %d", targetID, actorID)
	return nil
}

// Leaderboard зарегистрированные пользователи с наибольшим балансом
func (s *UserService) Leaderboard(ctx context.Context, limit int) ([]models.User, error) {
	var users []models.User
	err := s.store.ReadTx(ctx, "user_leaderboard", func(tx repository.Tx) error {
		var err error
		users, err = tx.TopUsers(limit)
		return err
	})
	return users, err
}

// History последние записи журнала баланса пользователя
func (s *UserService) History(ctx context.Context, userID int64, limit int) ([]models.BalanceLog, error) {
	var logs []models.BalanceLog
	err := s.store.ReadTx(ctx, "user_history", func(tx repository.Tx) error {
		var err error
		logs, err = tx.ListBalanceLogs(userID, limit)
		return err
	})
	return logs, err
}

// Stats общее число зарегистрированных пользователей
func (s *UserService) Stats(ctx context.Context) (int64, error) {
	var n int64
	err := s.store.ReadTx(ctx, "user_stats", func(tx repository.Tx) error {
		var err error
		n, err = tx.CountRegisteredUsers()
		return err
	})
	return n, err
}
