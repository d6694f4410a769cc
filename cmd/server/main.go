package main

import (
	"context"
	"os"
	"time"

	"KirveHubBot/config"
	"KirveHubBot/internal/database/seed"
	"KirveHubBot/internal/delivery/telegram"
	"KirveHubBot/internal/repository"
	"KirveHubBot/internal/repository/memory"
	"KirveHubBot/internal/repository/postgres"
	redisrepo "KirveHubBot/internal/repository/redis"
	"KirveHubBot/internal/service"
	"KirveHubBot/pkg/database"
	"KirveHubBot/pkg/logger"
	"KirveHubBot/pkg/server"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Версия сервиса
const (
	ServiceVersion = "1.0.0"
)

// Интервалы фоновых циклов
const (
	schedulerTick    = 10 * time.Second
	bonusSweepTick   = time.Minute
	auditFlushTick   = 30 * time.Second
	cleanupTick      = 5 * time.Minute
	inputStateTTL    = 15 * time.Minute
	auditBatchSize   = 20
	shutdownTimeout  = 30 * time.Second
	storeDriverInMem = "memory"
)

// cleaner кэш с вытеснением устаревших записей
type cleaner interface {
	Cleanup() int
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.NewLogger(logger.Options{Service: "kirvehub-bot"}).Fatal("Не удалось загрузить конфигурацию", zap.Error(err))
	}

	// Инициализация логгера
	log := logger.NewLogger(logger.Options{Detailed: cfg.Features.DetailedLogging, Service: "kirvehub-bot"})
	log.Info("Запуск бота KirveHub", zap.String("version", ServiceVersion))

	resilienceCfg := config.DefaultResilienceConfig()
	location := cfg.Location()

	// Создаем механизм graceful shutdown
	gracefulShutdown := server.NewGracefulShutdown(log, shutdownTimeout)
	ctx := gracefulShutdown.Context()

	// Подключение к PostgreSQL
	var db *gorm.DB
	if cfg.Store.Driver != storeDriverInMem {
		db, err = database.NewPostgresDB(cfg.Postgres, log)
		if err != nil {
			log.Fatal("Не удалось подключиться к PostgreSQL", zap.Error(err))
		}
		log.Info("Подключение к PostgreSQL установлено")

		sqlDB, err := db.DB()
		if err != nil {
			log.Fatal("Не удалось получить экземпляр SQL DB", zap.Error(err))
		}
		gracefulShutdown.AddShutdownFunc("postgres", func(ctx context.Context) error {
			log.Info("Закрытие соединения с PostgreSQL")
			return sqlDB.Close()
		})
	}

	// Подключение к Redis
	var redisClient *redis.Client
	if !cfg.Redis.Disabled {
		redisClient, err = database.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Fatal("Не удалось подключиться к Redis", zap.Error(err))
		}
		log.Info("Подключение к Redis установлено")

		gracefulShutdown.AddShutdownFunc("redis", func(ctx context.Context) error {
			log.Info("Закрытие соединения с Redis")
			return redisClient.Close()
		})
	}

	// Создаем проверку здоровья хранилищ
	var healthChecker *database.HealthChecker
	if redisClient != nil {
		healthChecker = database.NewHealthChecker(db, redisClient, log, server.RecordCircuitBreakerStateChange)
	} else {
		healthChecker = database.NewHealthChecker(db, nil, log, server.RecordCircuitBreakerStateChange)
	}

	// Хранилище
	var store repository.Store
	if db != nil {
		store = postgres.NewResilientStore(postgres.NewStore(db, log), healthChecker, resilienceCfg, log)
	} else {
		log.Warn("Используется хранилище в памяти, данные не переживут перезапуск")
		store = memory.NewStore(memory.WithClock(time.Now))
	}

	// Кулдауны и состояния диалогов
	var (
		registry repository.RateRegistry
		states   repository.InputStateStore
		cleaners []cleaner
	)
	if redisClient != nil {
		redisRegistry := redisrepo.NewRateRegistry(redisClient, healthChecker, log, resilienceCfg.Redis.CommandTimeout)
		registry = redisRegistry
		states = redisrepo.NewInputStateStore(redisClient, healthChecker, log, inputStateTTL, resilienceCfg.Redis.CommandTimeout)
		cleaners = append(cleaners, redisRegistry)
	} else {
		memRegistry := memory.NewRateRegistry(time.Now)
		memStates := memory.NewInputStateStore(inputStateTTL, time.Now)
		registry, states = memRegistry, memStates
		cleaners = append(cleaners, memRegistry, memStates)
	}

	// Начальное заполнение
	if err := seed.NewSeeder(store, log).SeedAll(ctx, cfg.Telegram.OwnerUserID, cfg.Telegram.AdminUserID); err != nil {
		log.Fatal("Не удалось выполнить начальное заполнение", zap.Error(err))
	}

	// Подключение к Telegram
	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		log.Fatal("Не удалось подключиться к Telegram", zap.Error(err))
	}
	log.Info("Авторизация в Telegram выполнена", zap.String("bot", bot.Self.UserName))

	platform := telegram.NewClient(bot, telegram.ClientOptions{
		SendTimeout:      resilienceCfg.Platform.SendTimeout,
		FailureThreshold: resilienceCfg.Platform.FailureThreshold,
		ResetTimeout:     resilienceCfg.Platform.ResetTimeout,
	}, log)

	audit := service.NewAuditLog(log.Named("audit"), platform, cfg.Telegram.LogChannelID, auditBatchSize)
	deps := service.Deps{
		Store:    store,
		Platform: platform,
		Audit:    audit,
		Logger:   log,
		Now:      time.Now,
		Location: location,
	}

	// Инициализация сервисов
	ledger := service.NewLedger(deps)
	classifier := service.NewClassifier(registry, time.Now)
	catalogue := service.DefaultCatalogue()
	adminChat := cfg.Telegram.AdminUserID
	if adminChat == 0 {
		adminChat = cfg.Telegram.OwnerUserID
	}
	services := telegram.Services{
		Users:     service.NewUserService(deps, ledger),
		Groups:    service.NewGroupService(deps),
		Accrual:   service.NewAccrualEngine(deps, ledger, classifier, cfg.Features.MaintenanceMode),
		Replies:   service.NewReplyEngine(catalogue, registry, time.Now, location),
		Recruiter: service.NewRecruiter(deps, registry, catalogue),
		Lottery:   service.NewLotteryService(deps, ledger, service.NewCryptoSampler()),
		Market:    service.NewMarketplace(deps, ledger, adminChat),
		Broadcast: service.NewBroadcaster(deps, resilienceCfg.Fanout.SendDelay),
		Balance:   service.NewBalanceOps(deps, ledger),
		Scheduler: service.NewScheduler(deps),
		Commands:  service.NewCustomCommands(deps),
		Settings:  service.NewSettingsService(deps),
		Bonus:     service.NewBonusService(deps),
	}
	cleaners = append(cleaners, classifier)

	dispatcher := telegram.NewDispatcher(services, platform, states, log, cfg.Features.MaintenanceMode)
	updates := telegram.NewServer(bot, dispatcher, telegram.ServerOptions{
		PollTimeout: time.Duration(cfg.Telegram.PollTimeout) * time.Second,
	}, log)

	// Создаем и запускаем HTTP сервер для проверки здоровья и метрик
	healthCheck := server.NewHealthCheck(healthChecker, log, ServiceVersion)
	healthCheck.StartServer(cfg.HTTP.Port)
	gracefulShutdown.AddShutdownFunc("health", func(ctx context.Context) error {
		log.Info("Остановка сервера проверки здоровья")
		return healthCheck.Stop(ctx)
	})

	// Журнал дописывается после остановки обработчиков
	gracefulShutdown.AddShutdownFunc("audit", func(ctx context.Context) error {
		return audit.Flush(ctx)
	})

	// Фоновые циклы
	go services.Recruiter.Run(ctx)
	go services.Scheduler.Run(ctx, schedulerTick)
	go services.Bonus.Run(ctx, bonusSweepTick)
	go audit.Run(ctx, auditFlushTick)
	go runCleanup(ctx, log, cleaners)

	gracefulShutdown.AddShutdownFunc("updates", updates.Stop)
	go func() {
		if err := updates.Run(ctx); err != nil {
			log.Error("Цикл обновлений завершился с ошибкой", zap.Error(err))
		}
	}()

	// Логируем информацию о версии и PID
	hostname, _ := os.Hostname()
	log.Info("Бот успешно запущен",
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("store", storeName(db)),
		zap.Bool("redis", redisClient != nil),
		zap.Bool("maintenance", cfg.Features.MaintenanceMode),
		zap.String("version", ServiceVersion),
		zap.Int("pid", os.Getpid()),
		zap.String("hostname", hostname))

	// Ожидаем сигнала остановки
	gracefulShutdown.Wait()
	log.Info("Завершение работы бота выполнено")
}

// runCleanup периодически вытесняет устаревшие записи кэшей
func runCleanup(ctx context.Context, log *zap.Logger, cleaners []cleaner) {
	ticker := time.NewTicker(cleanupTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := 0
			for _, c := range cleaners {
				evicted += c.Cleanup()
			}
			if evicted > 0 {
				log.Debug("Кэши очищены", zap.Int("evicted", evicted))
			}
		}
	}
}

func storeName(db *gorm.DB) string {
	if db == nil {
		return storeDriverInMem
	}
	return "postgres"
}
