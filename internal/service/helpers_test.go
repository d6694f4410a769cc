package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"KirveHubBot/internal/models"
	"KirveHubBot/internal/repository"
	"KirveHubBot/internal/repository/memory"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var testLocation = time.FixedZone("TRT", 3*60*60)

// testClock управляемые часы
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type editCall struct {
	chatID    int64
	messageID int
	text      string
	buttons   [][]Button
}

// fakePlatform записывает исходящие вызовы
type fakePlatform struct {
	mu        sync.Mutex
	sent      []OutboundMessage
	edits     []editCall
	deleted   []int
	answers   []string
	failChats map[int64]bool
	nextID    int
}

var errBlocked = errors.New("Forbidden: bot was blocked by the user")

func newFakePlatform() *fakePlatform {
	return &fakePlatform{failChats: make(map[int64]bool), nextID: 100}
}

func (f *fakePlatform) SendMessage(ctx context.Context, msg OutboundMessage) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failChats[msg.ChatID] {
		return 0, errBlocked
	}
	f.nextID++
	f.sent = append(f.sent, msg)
	return f.nextID, nil
}

func (f *fakePlatform) EditMessage(ctx context.Context, chatID int64, messageID int, text string, buttons [][]Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, editCall{chatID: chatID, messageID: messageID, text: text, buttons: buttons})
	return nil
}

func (f *fakePlatform) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakePlatform) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakePlatform) to(chatID int64) []OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []OutboundMessage
	for _, m := range f.sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakePlatform) countContaining(chatID int64, substr string) int {
	n := 0
	for _, m := range f.to(chatID) {
		if strings.Contains(m.Text, substr) {
			n++
		}
	}
	return n
}

func (f *fakePlatform) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fixture struct {
	ctx      context.Context
	store    *memory.Store
	registry *memory.RateRegistry
	platform *fakePlatform
	clock    *testClock
	deps     Deps
	ledger   *Ledger
}

const testGroupID int64 = -100200

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 11, 14, 0, 0, 0, testLocation)}
	store := memory.NewStore(memory.WithClock(clock.Now))
	platform := newFakePlatform()
	deps := Deps{
		Store:    store,
		Platform: platform,
		Logger:   zap.NewNop(),
		Now:      clock.Now,
		Location: testLocation,
	}
	return &fixture{
		ctx:      context.Background(),
		store:    store,
		registry: memory.NewRateRegistry(clock.Now),
		platform: platform,
		clock:    clock,
		deps:     deps,
		ledger:   NewLedger(deps),
	}
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *fixture) seedUser(t *testing.T, userID int64, points string, registered bool) {
	t.Helper()
	now := f.clock.Now()
	err := f.store.InTx(f.ctx, "seed_user", func(tx repository.Tx) error {
		return tx.CreateUser(&models.User{
			UserID:       userID,
			FirstName:    "User",
			IsRegistered: registered,
			RankID:       models.RankMember,
			Points:       amount(points),
			LastActivity: &now,
		})
	})
	if err != nil {
		t.Fatalf("seed user %d: %v", userID, err)
	}
}

func (f *fixture) updateUser(t *testing.T, userID int64, fn func(u *models.User)) {
	t.Helper()
	err := f.store.InTx(f.ctx, "update_user", func(tx repository.Tx) error {
		u, err := tx.LockUser(userID)
		if err != nil {
			return err
		}
		fn(u)
		return tx.SaveUser(u)
	})
	if err != nil {
		t.Fatalf("update user %d: %v", userID, err)
	}
}

func (f *fixture) seedGroup(t *testing.T, groupID int64) {
	t.Helper()
	err := f.store.InTx(f.ctx, "seed_group", func(tx repository.Tx) error {
		return tx.SaveGroup(&models.Group{GroupID: groupID, Title: "KirveHub", IsActive: true, PointMultiplier: decimal.NewFromInt(1)})
	})
	if err != nil {
		t.Fatalf("seed group: %v", err)
	}
}

func (f *fixture) updateSettings(t *testing.T, fn func(s *models.SystemSettings)) {
	t.Helper()
	err := f.store.InTx(f.ctx, "seed_settings", func(tx repository.Tx) error {
		s, err := tx.GetSettings()
		if err != nil {
			return err
		}
		fn(s)
		return tx.SaveSettings(s)
	})
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
}

func (f *fixture) user(t *testing.T, userID int64) *models.User {
	t.Helper()
	var user *models.User
	err := f.store.ReadTx(f.ctx, "get_user", func(tx repository.Tx) error {
		var err error
		user, err = tx.GetUser(userID)
		return err
	})
	if err != nil {
		t.Fatalf("get user %d: %v", userID, err)
	}
	return user
}

func (f *fixture) logs(t *testing.T, userID int64) []models.BalanceLog {
	t.Helper()
	var logs []models.BalanceLog
	err := f.store.ReadTx(f.ctx, "list_logs", func(tx repository.Tx) error {
		var err error
		logs, err = tx.ListBalanceLogs(userID, 0)
		return err
	})
	if err != nil {
		t.Fatalf("list logs %d: %v", userID, err)
	}
	return logs
}

func (f *fixture) expectBalance(t *testing.T, userID int64, want string) {
	t.Helper()
	if got := f.user(t, userID).Points; !got.Equal(amount(want)) {
		t.Errorf("user %d: expected balance %s, got %s", userID, want, got.StringFixed(2))
	}
}

// expectLedgerConsistent проверяет, что журнал восстанавливает баланс
func (f *fixture) expectLedgerConsistent(t *testing.T, userID int64, initial string) {
	t.Helper()
	sum := amount(initial)
	for _, l := range f.logs(t, userID) {
		switch l.Action {
		case models.ActionCredit:
			sum = sum.Add(l.Amount)
		case models.ActionDebit:
			sum = sum.Sub(l.Amount)
		}
	}
	if got := f.user(t, userID).Points; !got.Equal(sum) {
		t.Errorf("user %d: ledger reconstructs %s, balance is %s", userID, sum.StringFixed(2), got.StringFixed(2))
	}
}
