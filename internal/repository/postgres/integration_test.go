//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"KirveHubBot/config"
	"KirveHubBot/internal/models"
	"KirveHubBot/internal/repository"
	"KirveHubBot/internal/repository/postgres"
	"KirveHubBot/internal/service"
	"KirveHubBot/pkg/apperrors"
	"KirveHubBot/pkg/database"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	pool       *dockertest.Pool
	pgResource *dockertest.Resource
	db         *gorm.DB
)

// TestMain поднимает PostgreSQL в контейнере для всех тестов пакета
func TestMain(m *testing.M) {
	var err error
	pool, err = dockertest.NewPool("")
	if err != nil {
		log.Fatalf("Could not connect to Docker: %s", err)
	}
	pool.MaxWait = 2 * time.Minute

	pgResource, err = pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "15",
		Env: []string{
			"POSTGRES_PASSWORD=postgres",
			"POSTGRES_USER=postgres",
			"POSTGRES_DB=kirvehub_test",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start PostgreSQL: %s", err)
	}

	port, _ := strconv.Atoi(pgResource.GetPort("5432/tcp"))
	if err := pool.Retry(func() error {
		var err error
		db, err = database.NewPostgresDB(config.PostgresConfig{
			Host:     pgResource.GetBoundIP("5432/tcp"),
			Port:     port,
			Username: "postgres",
			Password: "postgres",
			DBName:   "kirvehub_test",
			SSLMode:  "disable",
		}, zap.NewNop())
		return err
	}); err != nil {
		log.Fatalf("Could not connect to PostgreSQL: %s", err)
	}

	code := m.Run()

	if err := pool.Purge(pgResource); err != nil {
		log.Printf("Could not purge PostgreSQL: %s", err)
	}
	os.Exit(code)
}

func newStore(t *testing.T) repository.Store {
	t.Helper()
	health := database.NewHealthChecker(db, nil, zap.NewNop(), nil)
	return postgres.NewResilientStore(postgres.NewStore(db, zap.NewNop()), health, config.DefaultResilienceConfig(), zap.NewNop())
}

func seedUser(t *testing.T, store repository.Store, userID int64, points string) {
	t.Helper()
	now := time.Now()
	err := store.InTx(context.Background(), "seed_user", func(tx repository.Tx) error {
		return tx.CreateUser(&models.User{
			UserID:       userID,
			FirstName:    fmt.Sprintf("user%d", userID),
			IsRegistered: true,
			RankID:       models.RankMember,
			Points:       decimal.RequireFromString(points),
			LastActivity: &now,
		})
	})
	if err != nil {
		t.Fatalf("seed user %d: %v", userID, err)
	}
}

func balance(t *testing.T, store repository.Store, userID int64) decimal.Decimal {
	t.Helper()
	var user *models.User
	err := store.ReadTx(context.Background(), "get_user", func(tx repository.Tx) error {
		var err error
		user, err = tx.GetUser(userID)
		return err
	})
	if err != nil {
		t.Fatalf("get user %d: %v", userID, err)
	}
	return user.Points
}

// TestConcurrentCreditsSerialize проверяет, что параллельные начисления одному
// пользователю не теряются
func TestConcurrentCreditsSerialize(t *testing.T) {
	store := newStore(t)
	deps := service.Deps{Store: store, Logger: zap.NewNop()}
	ledger := service.NewLedger(deps)
	const userID int64 = 7001
	seedUser(t, store, userID, "0")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.CreditUser(context.Background(), service.Entry{UserID: userID, Amount: decimal.RequireFromString("0.50"), Reason: "concurrency"}); err != nil {
				t.Errorf("credit: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := balance(t, store, userID); !got.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected balance 10.00, got %s", got)
	}
}

// TestLastItemSoldOnce проверяет, что последний товар достается одному покупателю
func TestLastItemSoldOnce(t *testing.T) {
	store := newStore(t)
	deps := service.Deps{Store: store, Platform: nopPlatform{}, Logger: zap.NewNop()}
	market := service.NewMarketplace(deps, service.NewLedger(deps), 0)

	product, err := market.CreateProduct(context.Background(), 1, service.ProductInput{Name: "Son ürün", Price: decimal.NewFromInt(5), Stock: 1})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	buyers := []int64{7101, 7102, 7103, 7104}
	for _, id := range buyers {
		seedUser(t, store, id, "20")
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sold     int
		rejected int
	)
	for _, id := range buyers {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := market.PlaceOrder(context.Background(), userID, product.ID, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sold++
			case apperrors.Is(err, apperrors.KindConflict), apperrors.Is(err, apperrors.KindInvalidInput):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	if sold != 1 || rejected != len(buyers)-1 {
		t.Errorf("expected exactly one sale, got %d sold and %d rejected", sold, rejected)
	}

	total := decimal.Zero
	for _, id := range buyers {
		total = total.Add(balance(t, store, id))
	}
	if want := decimal.NewFromInt(int64(20*len(buyers) - 5)); !total.Equal(want) {
		t.Errorf("expected total balance %s, got %s", want, total)
	}
}

// TestTxTimeoutRollsBack проверяет, что транзакция, превысившая таймаут, откатывается
func TestTxTimeoutRollsBack(t *testing.T) {
	store := newStore(t)
	const userID int64 = 7201
	seedUser(t, store, userID, "3")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := store.InTx(ctx, "slow_update", func(tx repository.Tx) error {
		user, err := tx.LockUser(userID)
		if err != nil {
			return err
		}
		user.Points = decimal.NewFromInt(100)
		if err := tx.SaveUser(user); err != nil {
			return err
		}
		<-ctx.Done()
		return ctx.Err()
	})
	if !apperrors.Is(err, apperrors.KindTransientStore) {
		t.Fatalf("expected transient store error, got %v", err)
	}
	if got := balance(t, store, userID); !got.Equal(decimal.NewFromInt(3)) {
		t.Errorf("expected rollback to keep balance 3, got %s", got)
	}
}

type nopPlatform struct{}

func (nopPlatform) SendMessage(ctx context.Context, msg service.OutboundMessage) (int, error) {
	return 1, nil
}

func (nopPlatform) EditMessage(ctx context.Context, chatID int64, messageID int, text string, buttons [][]service.Button) error {
	return nil
}

func (nopPlatform) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return nil
}

func (nopPlatform) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	return nil
}
