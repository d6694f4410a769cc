package service

import (
	"context"
	"fmt"
	"time"

	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const surpriseWindow = 10 * time.Minute

// SurpriseReport итог сюрприз-начисления
type SurpriseReport struct {
	Amount     decimal.Decimal
	Recipients int
	Credited   int
	Notified   int
}

// BalanceOps ручные операции модераторов над балансом
type BalanceOps struct {
	store    repository.Store
	ledger   *Ledger
	platform Platform
	audit    *AuditLog
	logger   *zap.Logger
	now      func() time.Time
}

// NewBalanceOps создает новый экземпляр BalanceOps
func NewBalanceOps(deps Deps, ledger *Ledger) *BalanceOps {
	deps = deps.withDefaults()
	return &BalanceOps{
		store:    deps.Store,
		ledger:   ledger,
		platform: deps.Platform,
		audit:    deps.Audit,
		logger:   deps.Logger,
		now:      deps.Now,
	}
}

// Credit начисляет баллы пользователю от имени модератора
func (o *BalanceOps) Credit(ctx context.Context, actorID, userID int64, amount decimal.Decimal, reason string) (*Movement, error) {
	if reason == "" {
		reason = "moderator credit"
	}

	movement, err := o.ledger.CreditUser(ctx, Entry{UserID: userID, Amount: amount, Reason: reason, ActorID: Actor(actorID)})
	if err != nil {
		return nil, err
	}

	o.audit.Record(AuditPoints, SeverityInfo, "%d credited %s KP to %d (%s)", actorID, FormatPoints(amount), userID, reason)
	o.dm(ctx, userID, fmt.Sprintf("💰 Bakiyene %s KP eklendi.\nSebep: %s\nYeni bakiye: %s KP",
		FormatPoints(amount), reason, FormatPoints(movement.NewBalance)))
	return movement, nil
}

// Debit списывает баллы от имени модератора, не опуская баланс ниже нуля.
// Фактически списанная сумма возвращается в Movement.Amount.
func (o *BalanceOps) Debit(ctx context.Context, actorID, userID int64, amount decimal.Decimal, reason string) (*Movement, error) {
	if reason == "" {
		reason = "moderator debit"
	}

	var movement *Movement
	err := o.store.InTx(ctx, "balance_debit", func(tx repository.Tx) error {
		var err error
		movement, err = o.ledger.DebitClamped(tx, Entry{UserID: userID, Amount: amount, Reason: reason, ActorID: Actor(actorID)})
		return err
	})
	if err != nil {
		return nil, err
	}

	severity := SeverityInfo
	if movement.Amount.LessThan(amount) {
		severity = SeverityWarning
	}
	o.audit.Record(AuditPoints, severity, "%d debited %s KP (requested %s) from %d (%s)",
		actorID, FormatPoints(movement.Amount), FormatPoints(amount), userID, reason)

	if movement.Amount.IsPositive() {
		o.dm(ctx, userID, fmt.Sprintf("📉 Bakiyenden %s KP düşüldü.\nSebep: %s\nYeni bakiye: %s KP",
			FormatPoints(movement.Amount), reason, FormatPoints(movement.NewBalance)))
	}
	return movement, nil
}

// Surprise начисляет одинаковую сумму всем зарегистрированным, активным за последние 10 минут
func (o *BalanceOps) Surprise(ctx context.Context, actorID int64, amount decimal.Decimal, reason string) (*SurpriseReport, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "surprise"
	}

	var userIDs []int64
	err := o.store.ReadTx(ctx, "surprise_recipients", func(tx repository.Tx) error {
		users, err := tx.ListRegisteredActiveSince(o.now().Add(-surpriseWindow))
		if err != nil {
			return err
		}
		userIDs = userIDs[:0]
		for _, u := range users {
			userIDs = append(userIDs, u.UserID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return nil, apperrors.NotFound("no active users in the last %d minutes", int(surpriseWindow.Minutes()))
	}

	report := &SurpriseReport{Amount: amount, Recipients: len(userIDs)}
	for _, userID := range userIDs {
		movement, err := o.ledger.CreditUser(ctx, Entry{UserID: userID, Amount: amount, Reason: reason, ActorID: Actor(actorID)})
		if err != nil {
			o.logger.Warn("Surprise credit failed", zap.Int64("user_id", userID), zap.Error(err))
			continue
		}
		report.Credited++

		text := fmt.Sprintf("🎁 Sürpriz! Aktif olduğun için %s KP kazandın.\nSebep: %s\nYeni bakiye: %s KP",
			FormatPoints(amount), reason, FormatPoints(movement.NewBalance))
		if _, err := o.platform.SendMessage(ctx, DM(userID, text)); err == nil {
			report.Notified++
		}
	}

	o.audit.Record(AuditPoints, SeverityInfo, "surprise by %d: %s KP to %d/%d users (%s)",
		actorID, FormatPoints(amount), report.Credited, report.Recipients, reason)
	return report, nil
}

func (o *BalanceOps) dm(ctx context.Context, userID int64, text string) {
	if _, err := o.platform.SendMessage(ctx, DM(userID, text)); err != nil {
		o.logger.Debug("Failed to notify balance change", zap.Int64("user_id", userID), zap.Error(err))
	}
}
