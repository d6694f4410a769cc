package memory

import (
	"sort"
	"strings"
	"time"

	"KirveHubBot/internal/models"
	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"

	"github.com/shopspring/decimal"
)

// tx реализует repository.Tx поверх state; блокировки не нужны, транзакции сериализованы
type tx struct {
	st  *state
	now func() time.Time
}

var _ repository.Tx = (*tx)(nil)

// Users

func (t *tx) GetUser(userID int64) (*models.User, error) {
	u, ok := t.st.users[userID]
	if !ok {
		return nil, apperrors.NotFound("user %d", userID)
	}
	return &u, nil
}

func (t *tx) LockUser(userID int64) (*models.User, error) {
	return t.GetUser(userID)
}

func (t *tx) FindUserByUsername(username string) (*models.User, error) {
	username = strings.TrimPrefix(username, "@")
	for _, u := range t.st.users {
		if u.Username != "" && strings.EqualFold(u.Username, username) {
			found := u
			return &found, nil
		}
	}
	return nil, apperrors.NotFound("user @%s", username)
}

func (t *tx) CreateUser(user *models.User) error {
	if _, ok := t.st.users[user.UserID]; ok {
		return apperrors.Conflict("user %d already exists", user.UserID)
	}
	now := t.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.RankID == 0 {
		user.RankID = models.RankMember
	}
	t.st.users[user.UserID] = *user
	return nil
}

func (t *tx) SaveUser(user *models.User) error {
	if _, ok := t.st.users[user.UserID]; !ok {
		return apperrors.NotFound("user %d", user.UserID)
	}
	user.UpdatedAt = t.now()
	t.st.users[user.UserID] = *user
	return nil
}

func (t *tx) DeleteUser(userID int64) error {
	if _, ok := t.st.users[userID]; !ok {
		return apperrors.NotFound("user %d", userID)
	}
	delete(t.st.users, userID)

	for k := range t.st.dailyStats {
		if k.userID == userID {
			delete(t.st.dailyStats, k)
		}
	}
	logs := t.st.balanceLogs[:0]
	for _, l := range t.st.balanceLogs {
		if l.UserID != userID {
			logs = append(logs, l)
		}
	}
	t.st.balanceLogs = logs
	for k := range t.st.participants {
		if k.userID == userID {
			delete(t.st.participants, k)
		}
	}
	for id, o := range t.st.orders {
		if o.UserID == userID {
			delete(t.st.orders, id)
		}
	}
	return nil
}

func (t *tx) ListRegisteredActiveSince(since time.Time) ([]models.User, error) {
	var out []models.User
	for _, u := range t.st.users {
		if u.IsRegistered && u.LastActivity != nil && !u.LastActivity.Before(since) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (t *tx) ListUsersByMinRank(minRank int) ([]models.User, error) {
	var out []models.User
	for _, u := range t.st.users {
		if u.RankID >= minRank {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RankID != out[j].RankID {
			return out[i].RankID > out[j].RankID
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (t *tx) TopUsers(limit int) ([]models.User, error) {
	var out []models.User
	for _, u := range t.st.users {
		if u.IsRegistered {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Points.Cmp(out[j].Points); c != 0 {
			return c > 0
		}
		return out[i].UserID < out[j].UserID
	})
	return limitSlice(out, limit), nil
}

func (t *tx) CountRegisteredUsers() (int64, error) {
	var n int64
	for _, u := range t.st.users {
		if u.IsRegistered {
			n++
		}
	}
	return n, nil
}

// Groups

func (t *tx) GetGroup(groupID int64) (*models.Group, error) {
	g, ok := t.st.groups[groupID]
	if !ok {
		return nil, apperrors.NotFound("group %d", groupID)
	}
	return &g, nil
}

func (t *tx) SaveGroup(group *models.Group) error {
	if group.CreatedAt.IsZero() {
		group.CreatedAt = t.now()
	}
	t.st.groups[group.GroupID] = *group
	return nil
}

func (t *tx) ListActiveGroups() ([]models.Group, error) {
	var out []models.Group
	for _, g := range t.st.groups {
		if g.IsActive {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out, nil
}

// Settings

func (t *tx) GetSettings() (*models.SystemSettings, error) {
	if t.st.settings == nil {
		s := models.DefaultSettings()
		return &s, nil
	}
	s := *t.st.settings
	return &s, nil
}

func (t *tx) SaveSettings(settings *models.SystemSettings) error {
	settings.ID = 1
	settings.UpdatedAt = t.now()
	s := *settings
	t.st.settings = &s
	return nil
}

// Stats

func (t *tx) AddDailyStat(userID, groupID int64, day string, messages int64, points decimal.Decimal) error {
	key := statKey{userID: userID, groupID: groupID, day: day}
	stat, ok := t.st.dailyStats[key]
	if !ok {
		stat = models.DailyStat{ID: t.st.nextID(), UserID: userID, GroupID: groupID, Day: day}
	}
	stat.MessageCount += messages
	stat.PointsEarned = stat.PointsEarned.Add(points)
	t.st.dailyStats[key] = stat
	return nil
}

func (t *tx) CountUserMessagesSince(userID int64, sinceDay string) (int64, error) {
	var n int64
	for k, s := range t.st.dailyStats {
		if k.userID == userID && k.day >= sinceDay {
			n += s.MessageCount
		}
	}
	return n, nil
}

func (t *tx) CountGroupMessages(groupID int64, day string) (int64, error) {
	var n int64
	for k, s := range t.st.dailyStats {
		if k.groupID == groupID && k.day == day {
			n += s.MessageCount
		}
	}
	return n, nil
}

// Balance log

func (t *tx) AppendBalanceLog(entry *models.BalanceLog) error {
	entry.ID = t.st.nextID()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = t.now()
	}
	t.st.balanceLogs = append(t.st.balanceLogs, *entry)
	return nil
}

func (t *tx) ListBalanceLogs(userID int64, limit int) ([]models.BalanceLog, error) {
	var out []models.BalanceLog
	for i := len(t.st.balanceLogs) - 1; i >= 0; i-- {
		if l := t.st.balanceLogs[i]; l.UserID == userID {
			out = append(out, l)
		}
	}
	return limitSlice(out, limit), nil
}

// Events

func (t *tx) CreateEvent(event *models.Event) error {
	event.ID = t.st.nextID()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = t.now()
	}
	t.st.events[event.ID] = *event
	return nil
}

func (t *tx) GetEvent(eventID uint) (*models.Event, error) {
	e, ok := t.st.events[eventID]
	if !ok {
		return nil, apperrors.NotFound("event %d", eventID)
	}
	return &e, nil
}

func (t *tx) LockEvent(eventID uint) (*models.Event, error) {
	return t.GetEvent(eventID)
}

func (t *tx) SaveEvent(event *models.Event) error {
	if _, ok := t.st.events[event.ID]; !ok {
		return apperrors.NotFound("event %d", event.ID)
	}
	t.st.events[event.ID] = *event
	return nil
}

func (t *tx) ListEvents(eventType, status string) ([]models.Event, error) {
	var out []models.Event
	for _, e := range t.st.events {
		if (eventType == "" || e.Type == eventType) && (status == "" || e.Status == status) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) GetParticipant(eventID uint, userID int64) (*models.EventParticipant, error) {
	p, ok := t.st.participants[participantKey{eventID: eventID, userID: userID}]
	if !ok {
		return nil, apperrors.NotFound("participant %d/%d", eventID, userID)
	}
	return &p, nil
}

func (t *tx) SaveParticipant(participant *models.EventParticipant) error {
	key := participantKey{eventID: participant.EventID, userID: participant.UserID}
	existing, ok := t.st.participants[key]
	if participant.ID == 0 {
		if ok {
			return apperrors.Conflict("participant %d/%d already exists", participant.EventID, participant.UserID)
		}
		participant.ID = t.st.nextID()
	} else if ok && existing.ID != participant.ID {
		return apperrors.Conflict("participant %d/%d already exists", participant.EventID, participant.UserID)
	}
	t.st.participants[key] = *participant
	return nil
}

func (t *tx) ListParticipants(eventID uint, status string) ([]models.EventParticipant, error) {
	var out []models.EventParticipant
	for k, p := range t.st.participants {
		if k.eventID == eventID && (status == "" || p.Status == status) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) CountParticipants(eventID uint, status string) (int64, error) {
	list, _ := t.ListParticipants(eventID, status)
	return int64(len(list)), nil
}

// Market

func (t *tx) CreateProduct(product *models.MarketProduct) error {
	product.ID = t.st.nextID()
	now := t.now()
	product.CreatedAt = now
	product.UpdatedAt = now
	t.st.products[product.ID] = *product
	return nil
}

func (t *tx) GetProduct(productID uint) (*models.MarketProduct, error) {
	p, ok := t.st.products[productID]
	if !ok {
		return nil, apperrors.NotFound("product %d", productID)
	}
	return &p, nil
}

func (t *tx) LockProduct(productID uint) (*models.MarketProduct, error) {
	return t.GetProduct(productID)
}

func (t *tx) SaveProduct(product *models.MarketProduct) error {
	if _, ok := t.st.products[product.ID]; !ok {
		return apperrors.NotFound("product %d", product.ID)
	}
	if product.Stock < 0 {
		return apperrors.Internal(nil, "product %d stock would become negative", product.ID)
	}
	product.UpdatedAt = t.now()
	t.st.products[product.ID] = *product
	return nil
}

func (t *tx) DeleteProduct(productID uint) error {
	if _, ok := t.st.products[productID]; !ok {
		return apperrors.NotFound("product %d", productID)
	}
	delete(t.st.products, productID)
	return nil
}

func (t *tx) ListProducts(activeOnly bool) ([]models.MarketProduct, error) {
	var out []models.MarketProduct
	for _, p := range t.st.products {
		if !activeOnly || p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) CreateOrder(order *models.MarketOrder) error {
	for _, o := range t.st.orders {
		if o.OrderNumber == order.OrderNumber {
			return apperrors.Conflict("order number %s already exists", order.OrderNumber)
		}
	}
	order.ID = t.st.nextID()
	now := t.now()
	order.CreatedAt = now
	order.UpdatedAt = now
	stored := *order
	stored.Product = models.MarketProduct{}
	t.st.orders[order.ID] = stored
	return nil
}

func (t *tx) withProduct(o models.MarketOrder) models.MarketOrder {
	if p, ok := t.st.products[o.ProductID]; ok {
		o.Product = p
	}
	return o
}

func (t *tx) GetOrder(orderID uint) (*models.MarketOrder, error) {
	o, ok := t.st.orders[orderID]
	if !ok {
		return nil, apperrors.NotFound("order %d", orderID)
	}
	o = t.withProduct(o)
	return &o, nil
}

func (t *tx) LockOrder(orderID uint) (*models.MarketOrder, error) {
	return t.GetOrder(orderID)
}

func (t *tx) SaveOrder(order *models.MarketOrder) error {
	if _, ok := t.st.orders[order.ID]; !ok {
		return apperrors.NotFound("order %d", order.ID)
	}
	order.UpdatedAt = t.now()
	stored := *order
	stored.Product = models.MarketProduct{}
	t.st.orders[order.ID] = stored
	return nil
}

func (t *tx) sortedOrders(match func(models.MarketOrder) bool, limit int) []models.MarketOrder {
	var out []models.MarketOrder
	for _, o := range t.st.orders {
		if match(o) {
			out = append(out, t.withProduct(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return limitSlice(out, limit)
}

func (t *tx) ListOrders(status string, limit int) ([]models.MarketOrder, error) {
	return t.sortedOrders(func(o models.MarketOrder) bool {
		return status == "" || o.Status == status
	}, limit), nil
}

func (t *tx) ListUserOrders(userID int64, limit int) ([]models.MarketOrder, error) {
	return t.sortedOrders(func(o models.MarketOrder) bool {
		return o.UserID == userID
	}, limit), nil
}

func (t *tx) CountProductOrders(productID uint, status string) (int64, error) {
	var n int64
	for _, o := range t.st.orders {
		if o.ProductID == productID && (status == "" || o.Status == status) {
			n++
		}
	}
	return n, nil
}

// Custom commands

func (t *tx) CreateCustomCommand(cmd *models.CustomCommand) error {
	for _, c := range t.st.commands {
		if c.CommandName == cmd.CommandName {
			return apperrors.Conflict("command %s already exists", cmd.CommandName)
		}
	}
	cmd.ID = t.st.nextID()
	cmd.CreatedAt = t.now()
	t.st.commands[cmd.ID] = *cmd
	return nil
}

func (t *tx) GetCustomCommandByName(name string) (*models.CustomCommand, error) {
	for _, c := range t.st.commands {
		if c.CommandName == name {
			found := c
			return &found, nil
		}
	}
	return nil, apperrors.NotFound("command %s", name)
}

func (t *tx) ListCustomCommands() ([]models.CustomCommand, error) {
	out := make([]models.CustomCommand, 0, len(t.st.commands))
	for _, c := range t.st.commands {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) DeleteCustomCommand(id uint) error {
	if _, ok := t.st.commands[id]; !ok {
		return apperrors.NotFound("command %d", id)
	}
	delete(t.st.commands, id)
	return nil
}

// Scheduled profiles

func (t *tx) CreateProfile(profile *models.ScheduledProfile) error {
	for _, p := range t.st.profiles {
		if p.Name == profile.Name {
			return apperrors.Conflict("profile %s already exists", profile.Name)
		}
	}
	profile.ID = t.st.nextID()
	now := t.now()
	profile.CreatedAt = now
	profile.UpdatedAt = now
	t.st.profiles[profile.ID] = *profile
	return nil
}

func (t *tx) GetProfile(id uint) (*models.ScheduledProfile, error) {
	p, ok := t.st.profiles[id]
	if !ok {
		return nil, apperrors.NotFound("profile %d", id)
	}
	return &p, nil
}

func (t *tx) SaveProfile(profile *models.ScheduledProfile) error {
	if _, ok := t.st.profiles[profile.ID]; !ok {
		return apperrors.NotFound("profile %d", profile.ID)
	}
	profile.UpdatedAt = t.now()
	t.st.profiles[profile.ID] = *profile
	return nil
}

func (t *tx) DeleteProfile(id uint) error {
	if _, ok := t.st.profiles[id]; !ok {
		return apperrors.NotFound("profile %d", id)
	}
	delete(t.st.profiles, id)
	return nil
}

func (t *tx) ListProfiles(activeOnly bool) ([]models.ScheduledProfile, error) {
	var out []models.ScheduledProfile
	for _, p := range t.st.profiles {
		if !activeOnly || p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func limitSlice[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
