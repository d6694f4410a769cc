package repository

import (
	"context"
	"time"

	"KirveHubBot/internal/models"

	"github.com/shopspring/decimal"
)

// Store транзакционное хранилище. Все изменения баланса, событий и товаров
// выполняются внутри InTx; ReadTx используется только для чтения и может повторяться.
type Store interface {
	InTx(ctx context.Context, operation string, fn func(tx Tx) error) error
	ReadTx(ctx context.Context, operation string, fn func(tx Tx) error) error
}

// Tx набор операций, доступных внутри одной транзакции.
// Методы Lock* берут блокировку строки до конца транзакции.
type Tx interface {
	UserRepository
	GroupRepository
	SettingsRepository
	StatsRepository
	BalanceLogRepository
	EventRepository
	MarketRepository
	CustomCommandRepository
	ProfileRepository
}

// UserRepository операции над пользователями
type UserRepository interface {
	GetUser(userID int64) (*models.User, error)
	LockUser(userID int64) (*models.User, error)
	FindUserByUsername(username string) (*models.User, error)
	CreateUser(user *models.User) error
	SaveUser(user *models.User) error
	// DeleteUser удаляет пользователя вместе с зависимыми строками
	DeleteUser(userID int64) error
	ListRegisteredActiveSince(since time.Time) ([]models.User, error)
	ListUsersByMinRank(minRank int) ([]models.User, error)
	TopUsers(limit int) ([]models.User, error)
	CountRegisteredUsers() (int64, error)
}

// GroupRepository операции над группами
type GroupRepository interface {
	GetGroup(groupID int64) (*models.Group, error)
	SaveGroup(group *models.Group) error
	ListActiveGroups() ([]models.Group, error)
}

// SettingsRepository доступ к строке настроек
type SettingsRepository interface {
	// GetSettings возвращает значения по умолчанию, если строка еще не создана
	GetSettings() (*models.SystemSettings, error)
	SaveSettings(settings *models.SystemSettings) error
}

// StatsRepository суточная статистика
type StatsRepository interface {
	// AddDailyStat прибавляет сообщения и баллы к строке (user, group, day), создавая ее при необходимости
	AddDailyStat(userID, groupID int64, day string, messages int64, points decimal.Decimal) error
	// CountUserMessagesSince сумма сообщений пользователя начиная с дня sinceDay включительно
	CountUserMessagesSince(userID int64, sinceDay string) (int64, error)
	CountGroupMessages(groupID int64, day string) (int64, error)
}

// BalanceLogRepository журнал баланса, только добавление
type BalanceLogRepository interface {
	AppendBalanceLog(entry *models.BalanceLog) error
	ListBalanceLogs(userID int64, limit int) ([]models.BalanceLog, error)
}

// EventRepository лотереи, бонусные события и участники
type EventRepository interface {
	CreateEvent(event *models.Event) error
	GetEvent(eventID uint) (*models.Event, error)
	LockEvent(eventID uint) (*models.Event, error)
	SaveEvent(event *models.Event) error
	// ListEvents возвращает события по типу и статусу; пустая строка снимает фильтр
	ListEvents(eventType, status string) ([]models.Event, error)

	GetParticipant(eventID uint, userID int64) (*models.EventParticipant, error)
	SaveParticipant(participant *models.EventParticipant) error
	// ListParticipants упорядочены по joined_at
	ListParticipants(eventID uint, status string) ([]models.EventParticipant, error)
	CountParticipants(eventID uint, status string) (int64, error)
}

// MarketRepository каталог и заказы
type MarketRepository interface {
	CreateProduct(product *models.MarketProduct) error
	GetProduct(productID uint) (*models.MarketProduct, error)
	LockProduct(productID uint) (*models.MarketProduct, error)
	SaveProduct(product *models.MarketProduct) error
	DeleteProduct(productID uint) error
	ListProducts(activeOnly bool) ([]models.MarketProduct, error)

	CreateOrder(order *models.MarketOrder) error
	GetOrder(orderID uint) (*models.MarketOrder, error)
	LockOrder(orderID uint) (*models.MarketOrder, error)
	SaveOrder(order *models.MarketOrder) error
	// ListOrders возвращает заказы по статусу (пустой статус = все), новые первыми
	ListOrders(status string, limit int) ([]models.MarketOrder, error)
	ListUserOrders(userID int64, limit int) ([]models.MarketOrder, error)
	CountProductOrders(productID uint, status string) (int64, error)
}

// CustomCommandRepository пользовательские команды
type CustomCommandRepository interface {
	CreateCustomCommand(cmd *models.CustomCommand) error
	GetCustomCommandByName(name string) (*models.CustomCommand, error)
	ListCustomCommands() ([]models.CustomCommand, error)
	DeleteCustomCommand(id uint) error
}

// ProfileRepository профили периодических сообщений
type ProfileRepository interface {
	CreateProfile(profile *models.ScheduledProfile) error
	GetProfile(id uint) (*models.ScheduledProfile, error)
	SaveProfile(profile *models.ScheduledProfile) error
	DeleteProfile(id uint) error
	ListProfiles(activeOnly bool) ([]models.ScheduledProfile, error)
}

// RateRegistry реестр кулдаунов. Ключи самодостаточны, например "reply:42".
type RateRegistry interface {
	// Acquire занимает ключ на ttl; false, если ключ уже занят
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Set занимает ключ безусловно
	Set(ctx context.Context, key string, ttl time.Duration) error
	// Active сообщает, занят ли ключ
	Active(ctx context.Context, key string) (bool, error)
}

// InputState состояние многошагового диалога модератора
type InputState struct {
	Kind      string            `json:"kind"`
	Step      int               `json:"step"`
	Data      map[string]string `json:"data,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// InputStateStore хранилище состояний диалогов с единым TTL
type InputStateStore interface {
	// Get возвращает nil без ошибки, если состояния нет
	Get(ctx context.Context, userID int64) (*InputState, error)
	Set(ctx context.Context, userID int64, state *InputState) error
	Clear(ctx context.Context, userID int64) error
}
