package service

import (
	"context"
	"time"

	"KirveHubBot/internal/models"
	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Entry запрос на движение баллов
type Entry struct {
	UserID  int64
	Amount  decimal.Decimal
	Reason  string
	ActorID *int64
}

// Movement результат движения баллов
type Movement struct {
	UserID     int64
	Amount     decimal.Decimal
	OldBalance decimal.Decimal
	NewBalance decimal.Decimal
}

// Ledger единственный компонент, который меняет users.points.
// Каждое изменение сопровождается ровно одной строкой BalanceLog.
type Ledger struct {
	store    repository.Store
	logger   *zap.Logger
	now      func() time.Time
	location *time.Location
}

// NewLedger создает новый экземпляр Ledger
func NewLedger(deps Deps) *Ledger {
	deps = deps.withDefaults()
	return &Ledger{
		store:    deps.Store,
		logger:   deps.Logger,
		now:      deps.Now,
		location: deps.Location,
	}
}

// Actor удобный конструктор для ActorID
func Actor(id int64) *int64 {
	return &id
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.InvalidInput("amount must be positive")
	}
	if !amount.Round(2).Equal(amount) {
		return apperrors.InvalidInput("amount must have at most two decimal places")
	}
	return nil
}

// rollPeriods обнуляет суточный и недельный счетчики при смене периода
func (l *Ledger) rollPeriods(user *models.User) {
	now := l.now()
	if day := DayKey(now, l.location); user.DailyPeriod != day {
		user.DailyPeriod = day
		user.DailyPoints = decimal.Zero
	}
	if week := WeekKey(now, l.location); user.WeeklyPeriod != week {
		user.WeeklyPeriod = week
		user.WeeklyPoints = decimal.Zero
	}
}

func (l *Ledger) appendLog(tx repository.Tx, action string, e Entry, before, after decimal.Decimal) error {
	return tx.AppendBalanceLog(&models.BalanceLog{
		UserID:        e.UserID,
		ActorID:       e.ActorID,
		Action:        action,
		Amount:        e.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reason:        e.Reason,
		CreatedAt:     l.now(),
	})
}

// creditLocked начисляет баллы пользователю, строка которого уже заблокирована.
// Счетчики дня и недели двигаются только для начислений за активность.
func (l *Ledger) creditLocked(tx repository.Tx, user *models.User, e Entry, accrual bool) (*Movement, error) {
	if err := validateAmount(e.Amount); err != nil {
		return nil, err
	}

	before := user.Points
	user.Points = user.Points.Add(e.Amount)
	if accrual {
		l.rollPeriods(user)
		user.DailyPoints = user.DailyPoints.Add(e.Amount)
		user.WeeklyPoints = user.WeeklyPoints.Add(e.Amount)
	}

	if err := tx.SaveUser(user); err != nil {
		return nil, err
	}
	if err := l.appendLog(tx, models.ActionCredit, e, before, user.Points); err != nil {
		return nil, err
	}

	return &Movement{UserID: user.UserID, Amount: e.Amount, OldBalance: before, NewBalance: user.Points}, nil
}

// Credit начисляет баллы внутри транзакции
func (l *Ledger) Credit(tx repository.Tx, e Entry) (*Movement, error) {
	user, err := tx.LockUser(e.UserID)
	if err != nil {
		return nil, err
	}
	return l.creditLocked(tx, user, e, false)
}

// Debit списывает баллы внутри транзакции; при нехватке ничего не меняет
func (l *Ledger) Debit(tx repository.Tx, e Entry) (*Movement, error) {
	if err := validateAmount(e.Amount); err != nil {
		return nil, err
	}

	user, err := tx.LockUser(e.UserID)
	if err != nil {
		return nil, err
	}
	if user.Points.LessThan(e.Amount) {
		return nil, apperrors.InsufficientFunds(e.Amount, user.Points)
	}

	return l.debitLocked(tx, user, e)
}

// DebitClamped списывает не больше текущего баланса. Используется модераторами;
// фактически списанная сумма возвращается в Movement.Amount.
func (l *Ledger) DebitClamped(tx repository.Tx, e Entry) (*Movement, error) {
	if err := validateAmount(e.Amount); err != nil {
		return nil, err
	}

	user, err := tx.LockUser(e.UserID)
	if err != nil {
		return nil, err
	}
	if user.Points.LessThan(e.Amount) {
		e.Amount = user.Points
	}
	if !e.Amount.IsPositive() {
		return &Movement{UserID: user.UserID, Amount: decimal.Zero, OldBalance: user.Points, NewBalance: user.Points}, nil
	}

	return l.debitLocked(tx, user, e)
}

func (l *Ledger) debitLocked(tx repository.Tx, user *models.User, e Entry) (*Movement, error) {
	before := user.Points
	user.Points = user.Points.Sub(e.Amount)

	if err := tx.SaveUser(user); err != nil {
		return nil, err
	}
	if err := l.appendLog(tx, models.ActionDebit, e, before, user.Points); err != nil {
		return nil, err
	}

	return &Movement{UserID: user.UserID, Amount: e.Amount, OldBalance: before, NewBalance: user.Points}, nil
}

// CreditUser начисляет баллы в отдельной транзакции
func (l *Ledger) CreditUser(ctx context.Context, e Entry) (*Movement, error) {
	var movement *Movement
	err := l.store.InTx(ctx, "ledger_credit", func(tx repository.Tx) error {
		var err error
		movement, err = l.Credit(tx, e)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Points credited",
		zap.Int64("user_id", e.UserID),
		zap.String("amount", e.Amount.StringFixed(2)),
		zap.String("reason", e.Reason))
	return movement, nil
}

// DebitUser списывает баллы в отдельной транзакции
func (l *Ledger) DebitUser(ctx context.Context, e Entry) (*Movement, error) {
	var movement *Movement
	err := l.store.InTx(ctx, "ledger_debit", func(tx repository.Tx) error {
		var err error
		movement, err = l.Debit(tx, e)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Points debited",
		zap.Int64("user_id", e.UserID),
		zap.String("amount", e.Amount.StringFixed(2)),
		zap.String("reason", e.Reason))
	return movement, nil
}

// Balance снимок баланса и счетчиков с учетом смены периода
type Balance struct {
	Points decimal.Decimal
	Daily  decimal.Decimal
	Weekly decimal.Decimal
}

// GetBalances возвращает баланс и счетчики пользователя
func (l *Ledger) GetBalances(ctx context.Context, userID int64) (*Balance, error) {
	var user *models.User
	err := l.store.ReadTx(ctx, "ledger_get_balance", func(tx repository.Tx) error {
		var err error
		user, err = tx.GetUser(userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	balance := &Balance{Points: user.Points, Daily: user.DailyPoints, Weekly: user.WeeklyPoints}
	now := l.now()
	if user.DailyPeriod != DayKey(now, l.location) {
		balance.Daily = decimal.Zero
	}
	if user.WeeklyPeriod != WeekKey(now, l.location) {
		balance.Weekly = decimal.Zero
	}
	return balance, nil
}

// GetBalance текущий баланс
func (l *Ledger) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	b, err := l.GetBalances(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return b.Points, nil
}

// GetDaily баллы за текущие сутки
func (l *Ledger) GetDaily(ctx context.Context, userID int64) (decimal.Decimal, error) {
	b, err := l.GetBalances(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return b.Daily, nil
}

// GetWeekly баллы за текущую неделю
func (l *Ledger) GetWeekly(ctx context.Context, userID int64) (decimal.Decimal, error) {
	b, err := l.GetBalances(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return b.Weekly, nil
}
