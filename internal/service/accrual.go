package service

import (
	"context"
	"fmt"
	"time"

	"KirveHubBot/internal/models"
	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"
	"KirveHubBot/pkg/server"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Причины пропуска начисления
const (
	SkipNotEligible = "not_eligible"
	SkipRejected    = "rejected"
	SkipNotDue      = "not_due"
	SkipDailyLimit  = "daily_limit"
	SkipWeeklyLimit = "weekly_limit"
	SkipMaintenance = "maintenance"
)

var milestoneThreshold = decimal.NewFromInt(1)

// AccrualResult итог обработки сообщения
type AccrualResult struct {
	Counted       bool
	Registered    bool
	Verdict       Verdict
	TotalMessages int64
	Credited      decimal.Decimal
	Skip          string
	NewBalance    decimal.Decimal
	Milestone     bool
	WeeklyLimit   bool
}

// AccrualEngine начисляет баллы за активность в зарегистрированных группах
type AccrualEngine struct {
	store      repository.Store
	ledger     *Ledger
	classifier *Classifier
	platform   Platform
	audit      *AuditLog
	logger     *zap.Logger
	now        func() time.Time
	location   *time.Location

	// maintenance приостанавливает начисления
	maintenance bool
}

// NewAccrualEngine создает новый экземпляр AccrualEngine
func NewAccrualEngine(deps Deps, ledger *Ledger, classifier *Classifier, maintenance bool) *AccrualEngine {
	deps = deps.withDefaults()
	return &AccrualEngine{
		store:       deps.Store,
		ledger:      ledger,
		classifier:  classifier,
		platform:    deps.Platform,
		audit:       deps.Audit,
		logger:      deps.Logger,
		now:         deps.Now,
		location:    deps.Location,
		maintenance: maintenance,
	}
}

type accrualContext struct {
	group      *models.Group
	settings   *models.SystemSettings
	registered bool
	bonus      decimal.Decimal
}

// HandleMessage учитывает сообщение: счетчик сообщений и суточная статистика растут
// для любого сообщения в активной группе, баллы начисляются по правилам классификатора и лимитов
func (e *AccrualEngine) HandleMessage(ctx context.Context, msg ChatMessage) (*AccrualResult, error) {
	actx, err := e.loadContext(ctx, msg)
	if err != nil {
		return nil, err
	}
	if actx == nil {
		return &AccrualResult{Skip: SkipNotEligible}, nil
	}

	verdict := Verdict{Reason: SkipNotEligible}
	if actx.registered && !e.maintenance {
		verdict, err = e.classifier.Classify(ctx, msg.UserID, msg.Text, actx.settings)
		if err != nil {
			e.logger.Warn("Classifier failed, message not accepted", zap.Int64("user_id", msg.UserID), zap.Error(err))
			verdict = Verdict{Reason: RejectFlood}
		}
	}

	result := &AccrualResult{Counted: true, Verdict: verdict}
	err = e.store.InTx(ctx, "accrual", func(tx repository.Tx) error {
		return e.apply(tx, msg, actx, verdict, result)
	})
	if err != nil {
		return nil, err
	}

	e.notify(ctx, msg.UserID, result, actx.settings)
	return result, nil
}

func (e *AccrualEngine) loadContext(ctx context.Context, msg ChatMessage) (*accrualContext, error) {
	var actx *accrualContext
	err := e.store.ReadTx(ctx, "accrual_context", func(tx repository.Tx) error {
		group, err := tx.GetGroup(msg.ChatID)
		if apperrors.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if !group.IsActive {
			return nil
		}

		settings, err := tx.GetSettings()
		if err != nil {
			return err
		}

		registered := false
		if user, err := tx.GetUser(msg.UserID); err == nil {
			registered = user.IsRegistered
		} else if !apperrors.IsNotFound(err) {
			return err
		}

		bonus, err := activeBonusMultiplier(tx, e.now())
		if err != nil {
			return err
		}

		actx = &accrualContext{group: group, settings: settings, registered: registered, bonus: bonus}
		return nil
	})
	return actx, err
}

func (e *AccrualEngine) apply(tx repository.Tx, msg ChatMessage, actx *accrualContext, verdict Verdict, result *AccrualResult) error {
	now := e.now()

	user, err := tx.LockUser(msg.UserID)
	if apperrors.IsNotFound(err) {
		user = &models.User{UserID: msg.UserID, FirstName: msg.FirstName, Username: msg.Username, RankID: models.RankMember}
		if err := tx.CreateUser(user); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	user.FirstName = msg.FirstName
	user.Username = msg.Username
	user.TotalMessages++
	user.LastActivity = &now
	e.ledger.rollPeriods(user)

	result.Registered = user.IsRegistered
	result.TotalMessages = user.TotalMessages
	result.NewBalance = user.Points

	credited := decimal.Zero
	switch {
	case !user.IsRegistered:
		result.Skip = SkipNotEligible
	case e.maintenance:
		result.Skip = SkipMaintenance
	case !verdict.Accepted:
		result.Skip = SkipRejected
	case actx.settings.MessagesForPoint <= 0 || user.TotalMessages%int64(actx.settings.MessagesForPoint) != 0:
		result.Skip = SkipNotDue
	default:
		amount := actx.settings.PointsPerMessage.
			Mul(actx.group.PointMultiplier).
			Mul(actx.bonus).
			Truncate(2)
		week := WeekKey(now, e.location)

		switch {
		case !amount.IsPositive():
			result.Skip = SkipNotDue
		case user.DailyPoints.Add(amount).GreaterThan(actx.settings.DailyLimit):
			result.Skip = SkipDailyLimit
		case user.WeeklyPoints.Add(amount).GreaterThan(actx.settings.WeeklyLimit):
			result.Skip = SkipWeeklyLimit
			if user.WeeklyNotifiedPeriod != week {
				user.WeeklyNotifiedPeriod = week
				result.WeeklyLimit = true
			}
		default:
			if !user.WeeklyPoints.Add(amount).LessThan(actx.settings.WeeklyLimit) && user.WeeklyNotifiedPeriod != week {
				user.WeeklyNotifiedPeriod = week
				result.WeeklyLimit = true
			}
			movement, err := e.ledger.creditLocked(tx, user, Entry{
				UserID: user.UserID,
				Amount: amount,
				Reason: "message activity",
			}, true)
			if err != nil {
				return err
			}
			credited = amount
			result.Credited = amount
			result.NewBalance = movement.NewBalance
			result.Milestone = movement.OldBalance.LessThan(milestoneThreshold) &&
				!movement.NewBalance.LessThan(milestoneThreshold)
		}
	}

	if credited.IsZero() {
		if err := tx.SaveUser(user); err != nil {
			return err
		}
	}

	return tx.AddDailyStat(user.UserID, msg.ChatID, DayKey(now, e.location), 1, credited)
}

func (e *AccrualEngine) notify(ctx context.Context, userID int64, result *AccrualResult, settings *models.SystemSettings) {
	if result.Credited.IsPositive() {
		server.RecordPointsCredited("message", result.Credited.InexactFloat64())
	}

	if result.Milestone {
		text := fmt.Sprintf("🎉 Tebrikler! Bakiyen %s KP oldu. Marketten ödül almayı unutma: /market", FormatPoints(result.NewBalance))
		if _, err := e.platform.SendMessage(ctx, DM(userID, text)); err != nil {
			e.logger.Warn("Failed to send milestone notification", zap.Int64("user_id", userID), zap.Error(err))
		}
		e.audit.Record(AuditPoints, SeverityInfo, "user %d reached %s KP", userID, FormatPoints(result.NewBalance))
	}

	if result.WeeklyLimit {
		text := fmt.Sprintf("📊 Haftalık %s KP limitine ulaştın. Yeni hafta başladığında kazanmaya devam edebilirsin.",
			FormatPoints(settings.WeeklyLimit))
		if _, err := e.platform.SendMessage(ctx, DM(userID, text)); err != nil {
			e.logger.Warn("Failed to send weekly limit notification", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
}
