package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"KirveHubBot/internal/models"
	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"

	"github.com/shopspring/decimal"
)

func TestStore_RollbackOnError(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	err := store.InTx(ctx, "seed", func(tx repository.Tx) error {
		return tx.CreateUser(&models.User{UserID: 1, Points: decimal.RequireFromString("10")})
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	boom := errors.New("boom")
	err = store.InTx(ctx, "mutate", func(tx repository.Tx) error {
		u, err := tx.LockUser(1)
		if err != nil {
			return err
		}
		u.Points = decimal.Zero
		if err := tx.SaveUser(u); err != nil {
			return err
		}
		if err := tx.AppendBalanceLog(&models.BalanceLog{UserID: 1, Action: models.ActionDebit}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	_ = store.ReadTx(ctx, "check", func(tx repository.Tx) error {
		u, err := tx.GetUser(1)
		if err != nil {
			t.Fatalf("GetUser failed: %v", err)
		}
		if !u.Points.Equal(decimal.RequireFromString("10")) {
			t.Errorf("Expected points restored to 10, got %s", u.Points)
		}
		logs, _ := tx.ListBalanceLogs(1, 0)
		if len(logs) != 0 {
			t.Errorf("Expected no balance logs after rollback, got %d", len(logs))
		}
		return nil
	})
}

func TestStore_ReadTxDiscardsWrites(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_ = store.ReadTx(ctx, "read", func(tx repository.Tx) error {
		return tx.CreateUser(&models.User{UserID: 5})
	})

	err := store.ReadTx(ctx, "read", func(tx repository.Tx) error {
		_, err := tx.GetUser(5)
		return err
	})
	if !apperrors.IsNotFound(err) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestStore_CancelledContext(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.InTx(ctx, "op", func(tx repository.Tx) error {
		called = true
		return nil
	})
	if called {
		t.Error("Expected fn not to be called on cancelled context")
	}
	if !apperrors.IsTransient(err) {
		t.Errorf("Expected transient store error, got %v", err)
	}
}

func TestStore_UniqueConstraints(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	t.Run("Participant", func(t *testing.T) {
		err := store.InTx(ctx, "join", func(tx repository.Tx) error {
			if err := tx.SaveParticipant(&models.EventParticipant{EventID: 1, UserID: 2}); err != nil {
				return err
			}
			return tx.SaveParticipant(&models.EventParticipant{EventID: 1, UserID: 2})
		})
		if !apperrors.Is(err, apperrors.KindConflict) {
			t.Errorf("Expected conflict, got %v", err)
		}
	})

	t.Run("CustomCommand", func(t *testing.T) {
		err := store.InTx(ctx, "cmd", func(tx repository.Tx) error {
			if err := tx.CreateCustomCommand(&models.CustomCommand{CommandName: "!site", ReplyText: "a"}); err != nil {
				return err
			}
			return tx.CreateCustomCommand(&models.CustomCommand{CommandName: "!site", ReplyText: "b"})
		})
		if !apperrors.Is(err, apperrors.KindConflict) {
			t.Errorf("Expected conflict, got %v", err)
		}
	})
}

func TestStore_DeleteUserCascades(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	err := store.InTx(ctx, "seed", func(tx repository.Tx) error {
		if err := tx.CreateUser(&models.User{UserID: 7}); err != nil {
			return err
		}
		if err := tx.AddDailyStat(7, -100, "2026-10-15", 3, decimal.Zero); err != nil {
			return err
		}
		if err := tx.AppendBalanceLog(&models.BalanceLog{UserID: 7, Action: models.ActionCredit}); err != nil {
			return err
		}
		return tx.SaveParticipant(&models.EventParticipant{EventID: 9, UserID: 7})
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if err := store.InTx(ctx, "delete", func(tx repository.Tx) error { return tx.DeleteUser(7) }); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}

	_ = store.ReadTx(ctx, "check", func(tx repository.Tx) error {
		if n, _ := tx.CountUserMessagesSince(7, "2026-01-01"); n != 0 {
			t.Errorf("Expected stats removed, got %d messages", n)
		}
		if logs, _ := tx.ListBalanceLogs(7, 0); len(logs) != 0 {
			t.Errorf("Expected logs removed, got %d", len(logs))
		}
		if n, _ := tx.CountParticipants(9, ""); n != 0 {
			t.Errorf("Expected participants removed, got %d", n)
		}
		return nil
	})
}

func TestRateRegistry(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	registry := NewRateRegistry(func() time.Time { return now })
	ctx := context.Background()

	ok, _ := registry.Acquire(ctx, "reply:1", time.Minute)
	if !ok {
		t.Fatal("Expected first acquire to succeed")
	}
	ok, _ = registry.Acquire(ctx, "reply:1", time.Minute)
	if ok {
		t.Error("Expected second acquire to fail within ttl")
	}

	now = now.Add(2 * time.Minute)
	if active, _ := registry.Active(ctx, "reply:1"); active {
		t.Error("Expected key to expire")
	}
	if removed := registry.Cleanup(); removed != 1 {
		t.Errorf("Expected 1 removed key, got %d", removed)
	}
	if registry.Len() != 0 {
		t.Errorf("Expected empty registry, got %d", registry.Len())
	}
}

func TestInputStateStore_TTL(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	states := NewInputStateStore(10*time.Minute, func() time.Time { return now })
	ctx := context.Background()

	_ = states.Set(ctx, 1, &repository.InputState{Kind: "broadcast", Step: 1, Data: map[string]string{"a": "b"}})

	state, _ := states.Get(ctx, 1)
	if state == nil || state.Kind != "broadcast" || state.Data["a"] != "b" {
		t.Fatalf("Unexpected state: %+v", state)
	}

	now = now.Add(11 * time.Minute)
	if state, _ := states.Get(ctx, 1); state != nil {
		t.Errorf("Expected expired state, got %+v", state)
	}
}
