package postgres

import (
	"strings"
	"time"

	"KirveHubBot/internal/models"
	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// tx реализует repository.Tx внутри открытой транзакции gorm
type tx struct {
	db *gorm.DB
}

var _ repository.Tx = (*tx)(nil)

func (t *tx) forUpdate() *gorm.DB {
	return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func storeErr(err error, operation string) error {
	return apperrors.FromStore(err, operation)
}

func affected(result *gorm.DB, operation string) error {
	if result.Error != nil {
		return storeErr(result.Error, operation)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("%s", operation)
	}
	return nil
}

// Users

func (t *tx) GetUser(userID int64) (*models.User, error) {
	var user models.User
	if err := t.db.First(&user, "user_id = ?", userID).Error; err != nil {
		return nil, storeErr(err, "get_user")
	}
	return &user, nil
}

func (t *tx) LockUser(userID int64) (*models.User, error) {
	var user models.User
	if err := t.forUpdate().First(&user, "user_id = ?", userID).Error; err != nil {
		return nil, storeErr(err, "lock_user")
	}
	return &user, nil
}

func (t *tx) FindUserByUsername(username string) (*models.User, error) {
	var user models.User
	username = strings.TrimPrefix(username, "@")
	if err := t.db.First(&user, "LOWER(username) = LOWER(?)", username).Error; err != nil {
		return nil, storeErr(err, "find_user_by_username")
	}
	return &user, nil
}

func (t *tx) CreateUser(user *models.User) error {
	if user.RankID == 0 {
		user.RankID = models.RankMember
	}
	return storeErr(t.db.Omit(clause.Associations).Create(user).Error, "create_user")
}

func (t *tx) SaveUser(user *models.User) error {
	return storeErr(t.db.Omit(clause.Associations).Save(user).Error, "save_user")
}

func (t *tx) DeleteUser(userID int64) error {
	return affected(t.db.Delete(&models.User{}, "user_id = ?", userID), "delete_user")
}

func (t *tx) ListRegisteredActiveSince(since time.Time) ([]models.User, error) {
	var users []models.User
	err := t.db.Where("is_registered = ? AND last_activity >= ?", true, since).
		Order("user_id").
		Find(&users).Error
	return users, storeErr(err, "list_registered_active")
}

func (t *tx) ListUsersByMinRank(minRank int) ([]models.User, error) {
	var users []models.User
	err := t.db.Where("rank_id >= ?", minRank).
		Order("rank_id DESC, user_id").
		Find(&users).Error
	return users, storeErr(err, "list_users_by_rank")
}

func (t *tx) TopUsers(limit int) ([]models.User, error) {
	var users []models.User
	err := t.db.Where("is_registered = ?", true).
		Order("points DESC, user_id").
		Limit(limit).
		Find(&users).Error
	return users, storeErr(err, "top_users")
}

func (t *tx) CountRegisteredUsers() (int64, error) {
	var n int64
	err := t.db.Model(&models.User{}).Where("is_registered = ?", true).Count(&n).Error
	return n, storeErr(err, "count_registered_users")
}

// Groups

func (t *tx) GetGroup(groupID int64) (*models.Group, error) {
	var group models.Group
	if err := t.db.First(&group, "group_id = ?", groupID).Error; err != nil {
		return nil, storeErr(err, "get_group")
	}
	return &group, nil
}

func (t *tx) SaveGroup(group *models.Group) error {
	return storeErr(t.db.Save(group).Error, "save_group")
}

func (t *tx) ListActiveGroups() ([]models.Group, error) {
	var groups []models.Group
	err := t.db.Where("is_active = ?", true).Order("group_id").Find(&groups).Error
	return groups, storeErr(err, "list_active_groups")
}

// Settings

func (t *tx) GetSettings() (*models.SystemSettings, error) {
	var settings models.SystemSettings
	err := t.db.First(&settings, 1).Error
	if err == gorm.ErrRecordNotFound {
		defaults := models.DefaultSettings()
		return &defaults, nil
	}
	if err != nil {
		return nil, storeErr(err, "get_settings")
	}
	return &settings, nil
}

func (t *tx) SaveSettings(settings *models.SystemSettings) error {
	settings.ID = 1
	return storeErr(t.db.Save(settings).Error, "save_settings")
}

// Stats

func (t *tx) AddDailyStat(userID, groupID int64, day string, messages int64, points decimal.Decimal) error {
	stat := models.DailyStat{
		UserID:       userID,
		GroupID:      groupID,
		Day:          day,
		MessageCount: messages,
		PointsEarned: points,
	}
	err := t.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "group_id"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"message_count": gorm.Expr("daily_stats.message_count + EXCLUDED.message_count"),
			"points_earned": gorm.Expr("daily_stats.points_earned + EXCLUDED.points_earned"),
		}),
	}).Create(&stat).Error
	return storeErr(err, "add_daily_stat")
}

func (t *tx) CountUserMessagesSince(userID int64, sinceDay string) (int64, error) {
	var n int64
	err := t.db.Model(&models.DailyStat{}).
		Select("COALESCE(SUM(message_count), 0)").
		Where("user_id = ? AND day >= ?", userID, sinceDay).
		Scan(&n).Error
	return n, storeErr(err, "count_user_messages")
}

func (t *tx) CountGroupMessages(groupID int64, day string) (int64, error) {
	var n int64
	err := t.db.Model(&models.DailyStat{}).
		Select("COALESCE(SUM(message_count), 0)").
		Where("group_id = ? AND day = ?", groupID, day).
		Scan(&n).Error
	return n, storeErr(err, "count_group_messages")
}

// Balance log

func (t *tx) AppendBalanceLog(entry *models.BalanceLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return storeErr(t.db.Create(entry).Error, "append_balance_log")
}

func (t *tx) ListBalanceLogs(userID int64, limit int) ([]models.BalanceLog, error) {
	var logs []models.BalanceLog
	q := t.db.Where("user_id = ?", userID).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return logs, storeErr(q.Find(&logs).Error, "list_balance_logs")
}

// Events

func (t *tx) CreateEvent(event *models.Event) error {
	return storeErr(t.db.Omit(clause.Associations).Create(event).Error, "create_event")
}

func (t *tx) GetEvent(eventID uint) (*models.Event, error) {
	var event models.Event
	if err := t.db.First(&event, eventID).Error; err != nil {
		return nil, storeErr(err, "get_event")
	}
	return &event, nil
}

func (t *tx) LockEvent(eventID uint) (*models.Event, error) {
	var event models.Event
	if err := t.forUpdate().First(&event, eventID).Error; err != nil {
		return nil, storeErr(err, "lock_event")
	}
	return &event, nil
}

func (t *tx) SaveEvent(event *models.Event) error {
	return storeErr(t.db.Omit(clause.Associations).Save(event).Error, "save_event")
}

func (t *tx) ListEvents(eventType, status string) ([]models.Event, error) {
	var events []models.Event
	q := t.db.Order("id")
	if eventType != "" {
		q = q.Where("type = ?", eventType)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return events, storeErr(q.Find(&events).Error, "list_events")
}

func (t *tx) GetParticipant(eventID uint, userID int64) (*models.EventParticipant, error) {
	var participant models.EventParticipant
	err := t.db.First(&participant, "event_id = ? AND user_id = ?", eventID, userID).Error
	if err != nil {
		return nil, storeErr(err, "get_participant")
	}
	return &participant, nil
}

func (t *tx) SaveParticipant(participant *models.EventParticipant) error {
	return storeErr(t.db.Save(participant).Error, "save_participant")
}

func (t *tx) ListParticipants(eventID uint, status string) ([]models.EventParticipant, error) {
	var participants []models.EventParticipant
	q := t.db.Where("event_id = ?", eventID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("joined_at, id").Find(&participants).Error
	return participants, storeErr(err, "list_participants")
}

func (t *tx) CountParticipants(eventID uint, status string) (int64, error) {
	var n int64
	q := t.db.Model(&models.EventParticipant{}).Where("event_id = ?", eventID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return n, storeErr(q.Count(&n).Error, "count_participants")
}

// Market

func (t *tx) CreateProduct(product *models.MarketProduct) error {
	return storeErr(t.db.Create(product).Error, "create_product")
}

func (t *tx) GetProduct(productID uint) (*models.MarketProduct, error) {
	var product models.MarketProduct
	if err := t.db.First(&product, productID).Error; err != nil {
		return nil, storeErr(err, "get_product")
	}
	return &product, nil
}

func (t *tx) LockProduct(productID uint) (*models.MarketProduct, error) {
	var product models.MarketProduct
	if err := t.forUpdate().First(&product, productID).Error; err != nil {
		return nil, storeErr(err, "lock_product")
	}
	return &product, nil
}

func (t *tx) SaveProduct(product *models.MarketProduct) error {
	return storeErr(t.db.Save(product).Error, "save_product")
}

func (t *tx) DeleteProduct(productID uint) error {
	return affected(t.db.Delete(&models.MarketProduct{}, productID), "delete_product")
}

func (t *tx) ListProducts(activeOnly bool) ([]models.MarketProduct, error) {
	var products []models.MarketProduct
	q := t.db.Order("id")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	return products, storeErr(q.Find(&products).Error, "list_products")
}

func (t *tx) CreateOrder(order *models.MarketOrder) error {
	return storeErr(t.db.Omit(clause.Associations).Create(order).Error, "create_order")
}

func (t *tx) GetOrder(orderID uint) (*models.MarketOrder, error) {
	var order models.MarketOrder
	if err := t.db.Preload("Product").First(&order, orderID).Error; err != nil {
		return nil, storeErr(err, "get_order")
	}
	return &order, nil
}

func (t *tx) LockOrder(orderID uint) (*models.MarketOrder, error) {
	var order models.MarketOrder
	if err := t.forUpdate().First(&order, orderID).Error; err != nil {
		return nil, storeErr(err, "lock_order")
	}
	return &order, nil
}

func (t *tx) SaveOrder(order *models.MarketOrder) error {
	return storeErr(t.db.Omit(clause.Associations).Save(order).Error, "save_order")
}

func (t *tx) ListOrders(status string, limit int) ([]models.MarketOrder, error) {
	var orders []models.MarketOrder
	q := t.db.Preload("Product").Order("id DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	return orders, storeErr(q.Find(&orders).Error, "list_orders")
}

func (t *tx) ListUserOrders(userID int64, limit int) ([]models.MarketOrder, error) {
	var orders []models.MarketOrder
	q := t.db.Preload("Product").Where("user_id = ?", userID).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return orders, storeErr(q.Find(&orders).Error, "list_user_orders")
}

func (t *tx) CountProductOrders(productID uint, status string) (int64, error) {
	var n int64
	q := t.db.Model(&models.MarketOrder{}).Where("product_id = ?", productID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return n, storeErr(q.Count(&n).Error, "count_product_orders")
}

// Custom commands

func (t *tx) CreateCustomCommand(cmd *models.CustomCommand) error {
	return storeErr(t.db.Create(cmd).Error, "create_custom_command")
}

func (t *tx) GetCustomCommandByName(name string) (*models.CustomCommand, error) {
	var cmd models.CustomCommand
	if err := t.db.First(&cmd, "command_name = ?", name).Error; err != nil {
		return nil, storeErr(err, "get_custom_command")
	}
	return &cmd, nil
}

func (t *tx) ListCustomCommands() ([]models.CustomCommand, error) {
	var cmds []models.CustomCommand
	return cmds, storeErr(t.db.Order("id").Find(&cmds).Error, "list_custom_commands")
}

func (t *tx) DeleteCustomCommand(id uint) error {
	return affected(t.db.Delete(&models.CustomCommand{}, id), "delete_custom_command")
}

// Scheduled profiles

func (t *tx) CreateProfile(profile *models.ScheduledProfile) error {
	return storeErr(t.db.Create(profile).Error, "create_profile")
}

func (t *tx) GetProfile(id uint) (*models.ScheduledProfile, error) {
	var profile models.ScheduledProfile
	if err := t.db.First(&profile, id).Error; err != nil {
		return nil, storeErr(err, "get_profile")
	}
	return &profile, nil
}

func (t *tx) SaveProfile(profile *models.ScheduledProfile) error {
	return storeErr(t.db.Save(profile).Error, "save_profile")
}

func (t *tx) DeleteProfile(id uint) error {
	return affected(t.db.Delete(&models.ScheduledProfile{}, id), "delete_profile")
}

func (t *tx) ListProfiles(activeOnly bool) ([]models.ScheduledProfile, error) {
	var profiles []models.ScheduledProfile
	q := t.db.Order("id")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	return profiles, storeErr(q.Find(&profiles).Error, "list_profiles")
}
