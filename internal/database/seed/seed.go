package seed

import (
	"context"
	"fmt"
	"os"

	"KirveHubBot/internal/models"
	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Seeder заполняет хранилище данными, без которых бот не может стартовать
type Seeder struct {
	store  repository.Store
	logger *zap.Logger
	// env значение APP_ENV
	env string
}

// NewSeeder создает новый объект для начального заполнения
func NewSeeder(store repository.Store, logger *zap.Logger) *Seeder {
	return &Seeder{store: store, logger: logger, env: os.Getenv("APP_ENV")}
}

// SeedSettings сохраняет строку системных настроек, если ее еще нет
func (s *Seeder) SeedSettings(ctx context.Context) error {
	return s.store.InTx(ctx, "seed_settings", func(tx repository.Tx) error {
		settings, err := tx.GetSettings()
		if err != nil {
			return err
		}
		return tx.SaveSettings(settings)
	})
}

// SeedOwners выдает ранг 4 владельцу и главному администратору из конфигурации.
// Нулевые id пропускаются.
func (s *Seeder) SeedOwners(ctx context.Context, userIDs ...int64) error {
	for _, userID := range userIDs {
		if userID == 0 {
			continue
		}
		promoted := false
		err := s.store.InTx(ctx, "seed_owner", func(tx repository.Tx) error {
			user, err := tx.LockUser(userID)
			if apperrors.IsNotFound(err) {
				promoted = true
				return tx.CreateUser(&models.User{UserID: userID, RankID: models.RankSuperAdmin})
			}
			if err != nil {
				return err
			}
			if user.RankID == models.RankSuperAdmin {
				return nil
			}
			promoted = true
			user.RankID = models.RankSuperAdmin
			return tx.SaveUser(user)
		})
		if err != nil {
			return fmt.Errorf("seed owner %d: %w", userID, err)
		}
		if promoted {
			s.logger.Info("Владелец получил ранг супер-админа", zap.Int64("user_id", userID))
		}
	}
	return nil
}

// SeedDemoCatalogue создает пробные товары в режиме разработки, если каталог пуст
func (s *Seeder) SeedDemoCatalogue(ctx context.Context, ownerID int64) error {
	if s.env != "development" {
		s.logger.Debug("Не в режиме разработки, пропускаем демо-каталог")
		return nil
	}

	created := 0
	err := s.store.InTx(ctx, "seed_demo_catalogue", func(tx repository.Tx) error {
		products, err := tx.ListProducts(false)
		if err != nil {
			return err
		}
		if len(products) > 0 {
			return nil
		}
		demo := []models.MarketProduct{
			{Name: "Steam 50 TL", Category: "oyun", Price: decimal.NewFromInt(50), Stock: 5, Description: "Steam cüzdan kodu"},
			{Name: "Spotify Premium 1 Ay", Category: "abonelik", Price: decimal.NewFromInt(30), Stock: 3},
		}
		for i := range demo {
			demo[i].IsActive = true
			demo[i].CreatedBy = ownerID
			if err := tx.CreateProduct(&demo[i]); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Не удалось создать демо-каталог", zap.Error(err))
		return err
	}
	if created > 0 {
		s.logger.Info("Создан демо-каталог", zap.Int("products", created))
	}
	return nil
}

// SeedAll выполняет все шаги начального заполнения
func (s *Seeder) SeedAll(ctx context.Context, ownerID, adminID int64) error {
	if err := s.SeedSettings(ctx); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	if err := s.SeedOwners(ctx, ownerID, adminID); err != nil {
		return err
	}
	return s.SeedDemoCatalogue(ctx, ownerID)
}
