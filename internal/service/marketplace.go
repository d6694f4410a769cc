package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"KirveHubBot/internal/models"
	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Префиксы callback-данных маркета
const (
	CallbackBuy     = "mkt:buy:"
	CallbackApprove = "mkt:approve:"
	CallbackReject  = "mkt:reject:"
	CallbackDeliver = "mkt:deliver:"
	CallbackToggle  = "mkt:toggle:"
	CallbackDelete  = "mkt:delete:"
)

// ProductInput поля товара при создании и редактировании
type ProductInput struct {
	Name        string
	CompanyName string
	CompanyLink string
	Category    string
	Price       decimal.Decimal
	Stock       int
	Description string
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperrors.InvalidInput("product name is required")
	}
	if err := validateAmount(in.Price); err != nil {
		return err
	}
	if in.Stock < 0 {
		return apperrors.InvalidInput("stock must not be negative")
	}
	return nil
}

// OrderReceipt результат оформления заказа
type OrderReceipt struct {
	Order      *models.MarketOrder
	Product    *models.MarketProduct
	NewBalance decimal.Decimal
}

// Marketplace каталог и заказы
type Marketplace struct {
	store    repository.Store
	ledger   *Ledger
	platform Platform
	audit    *AuditLog
	logger   *zap.Logger
	now      func() time.Time
	// adminChatID получатель уведомлений о новых заказах
	adminChatID int64
	newNumber   func() string
}

// NewMarketplace создает новый экземпляр Marketplace
func NewMarketplace(deps Deps, ledger *Ledger, adminChatID int64) *Marketplace {
	deps = deps.withDefaults()
	return &Marketplace{
		store:       deps.Store,
		ledger:      ledger,
		platform:    deps.Platform,
		audit:       deps.Audit,
		logger:      deps.Logger,
		now:         deps.Now,
		adminChatID: adminChatID,
		newNumber:   newOrderNumber,
	}
}

func newOrderNumber() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "KH-" + strings.ToUpper(id[:8])
}

// CreateProduct добавляет товар в каталог
func (m *Marketplace) CreateProduct(ctx context.Context, actorID int64, in ProductInput) (*models.MarketProduct, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	product := &models.MarketProduct{
		Name:        strings.TrimSpace(in.Name),
		CompanyName: in.CompanyName,
		CompanyLink: in.CompanyLink,
		Category:    in.Category,
		Price:       in.Price,
		Stock:       in.Stock,
		Description: in.Description,
		IsActive:    true,
		CreatedBy:   actorID,
	}
	err := m.store.InTx(ctx, "market_create_product", func(tx repository.Tx) error {
		return tx.CreateProduct(product)
	})
	if err != nil {
		return nil, err
	}

	m.audit.Record(AuditMarket, SeverityInfo, "product %d %q created by %d", product.ID, product.Name, actorID)
	return product, nil
}

// UpdateProduct меняет поля товара
func (m *Marketplace) UpdateProduct(ctx context.Context, actorID int64, productID uint, in ProductInput) (*models.MarketProduct, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var product *models.MarketProduct
	err := m.store.InTx(ctx, "market_update_product", func(tx repository.Tx) error {
		var err error
		product, err = tx.LockProduct(productID)
		if err != nil {
			return err
		}
		product.Name = strings.TrimSpace(in.Name)
		product.CompanyName = in.CompanyName
		product.CompanyLink = in.CompanyLink
		product.Category = in.Category
		product.Price = in.Price
		product.Stock = in.Stock
		product.Description = in.Description
		return tx.SaveProduct(product)
	})
	if err != nil {
		return nil, err
	}

	m.audit.Record(AuditMarket, SeverityInfo, "product %d updated by %d", productID, actorID)
	return product, nil
}

// DeleteProduct удаляет товар, если по нему нет ожидающих заказов
func (m *Marketplace) DeleteProduct(ctx context.Context, actorID int64, productID uint) error {
	err := m.store.InTx(ctx, "market_delete_product", func(tx repository.Tx) error {
		if _, err := tx.LockProduct(productID); err != nil {
			return err
		}
		pending, err := tx.CountProductOrders(productID, models.OrderPending)
		if err != nil {
			return err
		}
		if pending > 0 {
			return apperrors.Conflict("product %d has %d pending orders", productID, pending)
		}
		return tx.DeleteProduct(productID)
	})
	if err != nil {
		return err
	}

	m.audit.Record(AuditMarket, SeverityWarning, "product %d deleted by %d", productID, actorID)
	return nil
}

// ToggleProduct переключает доступность товара
func (m *Marketplace) ToggleProduct(ctx context.Context, actorID int64, productID uint) (*models.MarketProduct, error) {
	var product *models.MarketProduct
	err := m.store.InTx(ctx, "market_toggle_product", func(tx repository.Tx) error {
		var err error
		product, err = tx.LockProduct(productID)
		if err != nil {
			return err
		}
		product.IsActive = !product.IsActive
		return tx.SaveProduct(product)
	})
	if err != nil {
		return nil, err
	}

	m.audit.Record(AuditMarket, SeverityInfo, "product %d active=%t by %d", productID, product.IsActive, actorID)
	return product, nil
}

// AdjustStock меняет остаток на delta; остаток не может стать отрицательным
func (m *Marketplace) AdjustStock(ctx context.Context, actorID int64, productID uint, delta int) (*models.MarketProduct, error) {
	var product *models.MarketProduct
	err := m.store.InTx(ctx, "market_adjust_stock", func(tx repository.Tx) error {
		var err error
		product, err = tx.LockProduct(productID)
		if err != nil {
			return err
		}
		if product.Stock+delta < 0 {
			return apperrors.InvalidInput("stock cannot go below zero (current %d)", product.Stock)
		}
		product.Stock += delta
		return tx.SaveProduct(product)
	})
	if err != nil {
		return nil, err
	}

	m.audit.Record(AuditMarket, SeverityInfo, "product %d stock %+d -> %d by %d", productID, delta, product.Stock, actorID)
	return product, nil
}

// ListProducts каталог; activeOnly скрывает выключенные товары
func (m *Marketplace) ListProducts(ctx context.Context, activeOnly bool) ([]models.MarketProduct, error) {
	var products []models.MarketProduct
	err := m.store.ReadTx(ctx, "market_list_products", func(tx repository.Tx) error {
		var err error
		products, err = tx.ListProducts(activeOnly)
		return err
	})
	return products, err
}

// PlaceOrder оформляет заказ: списывает баллы, уменьшает остаток и создает заказ в статусе pending
func (m *Marketplace) PlaceOrder(ctx context.Context, userID int64, productID uint, quantity int) (*OrderReceipt, error) {
	if quantity < 1 {
		return nil, apperrors.InvalidInput("quantity must be at least 1")
	}

	receipt := &OrderReceipt{}
	number := m.newNumber()

	err := m.store.InTx(ctx, "market_place_order", func(tx repository.Tx) error {
		user, err := tx.GetUser(userID)
		if apperrors.IsNotFound(err) || (err == nil && !user.IsRegistered) {
			return apperrors.NotRegistered("user %d is not registered", userID)
		}
		if err != nil {
			return err
		}

		// порядок блокировок: товар, затем пользователь (как в RejectOrder)
		product, err := tx.LockProduct(productID)
		if err != nil {
			return err
		}
		if !product.IsActive {
			return apperrors.InvalidInput("product %d is not available", productID)
		}
		if product.Stock < quantity {
			return apperrors.Conflict("product %d is out of stock", productID)
		}

		total := product.Price.Mul(decimal.NewFromInt(int64(quantity)))
		movement, err := m.ledger.Debit(tx, Entry{
			UserID: userID,
			Amount: total,
			Reason: "order " + number,
		})
		if err != nil {
			return err
		}

		product.Stock -= quantity
		if err := tx.SaveProduct(product); err != nil {
			return err
		}

		order := &models.MarketOrder{
			OrderNumber: number,
			UserID:      userID,
			ProductID:   productID,
			Quantity:    quantity,
			TotalPrice:  total,
			Status:      models.OrderPending,
			CreatedAt:   m.now(),
			UpdatedAt:   m.now(),
		}
		if err := tx.CreateOrder(order); err != nil {
			return err
		}
		order.Product = *product

		receipt.Order = order
		receipt.Product = product
		receipt.NewBalance = movement.NewBalance
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.audit.Record(AuditMarket, SeverityInfo, "order %s placed by %d: %s x%d = %s KP",
		number, userID, receipt.Product.Name, quantity, FormatPoints(receipt.Order.TotalPrice))
	m.notifyOrderPlaced(ctx, receipt)
	return receipt, nil
}

// OrderButtons кнопки модерации заказа
func OrderButtons(order *models.MarketOrder) [][]Button {
	switch order.Status {
	case models.OrderPending:
		return [][]Button{{
			{Text: "✅ Onayla", Data: fmt.Sprintf("%s%d", CallbackApprove, order.ID)},
			{Text: "❌ Reddet", Data: fmt.Sprintf("%s%d", CallbackReject, order.ID)},
		}}
	case models.OrderApproved:
		return [][]Button{{{Text: "📦 Teslim edildi", Data: fmt.Sprintf("%s%d", CallbackDeliver, order.ID)}}}
	}
	return nil
}

func (m *Marketplace) notifyOrderPlaced(ctx context.Context, receipt *OrderReceipt) {
	order := receipt.Order
	userText := fmt.Sprintf("🛒 Siparişin alındı!\n\nSipariş no: %s\nÜrün: %s\nTutar: %s KP\nKalan bakiye: %s KP\n\nOnaylandığında bilgilendirileceksin.",
		order.OrderNumber, receipt.Product.Name, FormatPoints(order.TotalPrice), FormatPoints(receipt.NewBalance))
	if _, err := m.platform.SendMessage(ctx, DM(order.UserID, userText)); err != nil {
		m.logger.Warn("Failed to notify buyer", zap.Int64("user_id", order.UserID), zap.Error(err))
	}

	if m.adminChatID == 0 {
		return
	}
	adminText := fmt.Sprintf("🆕 Yeni sipariş %s\n\nKullanıcı: %d\nÜrün: %s x%d\nTutar: %s KP",
		order.OrderNumber, order.UserID, receipt.Product.Name, order.Quantity, FormatPoints(order.TotalPrice))
	if _, err := m.platform.SendMessage(ctx, OutboundMessage{ChatID: m.adminChatID, Text: adminText, Buttons: OrderButtons(order)}); err != nil {
		m.logger.Warn("Failed to notify moderators about order", zap.String("order", order.OrderNumber), zap.Error(err))
	}
}

func (m *Marketplace) transition(ctx context.Context, operation string, orderID uint, from, to string, note string) (*models.MarketOrder, error) {
	var order *models.MarketOrder
	err := m.store.InTx(ctx, operation, func(tx repository.Tx) error {
		var err error
		order, err = tx.LockOrder(orderID)
		if err != nil {
			return err
		}
		if order.Status != from {
			return apperrors.Conflict("order %s is %s", order.OrderNumber, order.Status)
		}
		order.Status = to
		if note != "" {
			order.AdminNotes = note
		}
		order.UpdatedAt = m.now()
		if err := tx.SaveOrder(order); err != nil {
			return err
		}

		if product, err := tx.GetProduct(order.ProductID); err == nil {
			order.Product = *product
		} else if !apperrors.IsNotFound(err) {
			return err
		}
		return nil
	})
	return order, err
}

// ApproveOrder переводит заказ pending -> approved, баланс не меняется
func (m *Marketplace) ApproveOrder(ctx context.Context, actorID int64, orderID uint, note string) (*models.MarketOrder, error) {
	order, err := m.transition(ctx, "market_approve_order", orderID, models.OrderPending, models.OrderApproved, note)
	if err != nil {
		return nil, err
	}

	m.audit.Record(AuditMarket, SeverityInfo, "order %s approved by %d", order.OrderNumber, actorID)
	text := fmt.Sprintf("✅ Siparişin onaylandı!\n\nSipariş no: %s\nÜrün: %s", order.OrderNumber, order.Product.Name)
	if order.Product.CompanyLink != "" {
		text += "\n🔗 " + order.Product.CompanyLink
	}
	if note != "" {
		text += "\n📝 " + note
	}
	m.dmBuyer(ctx, order, text)
	return order, nil
}

// DeliverOrder переводит заказ approved -> delivered
func (m *Marketplace) DeliverOrder(ctx context.Context, actorID int64, orderID uint) (*models.MarketOrder, error) {
	order, err := m.transition(ctx, "market_deliver_order", orderID, models.OrderApproved, models.OrderDelivered, "")
	if err != nil {
		return nil, err
	}

	m.audit.Record(AuditMarket, SeverityInfo, "order %s delivered by %d", order.OrderNumber, actorID)
	m.dmBuyer(ctx, order, fmt.Sprintf("📦 Siparişin teslim edildi: %s", order.OrderNumber))
	return order, nil
}

// RejectOrder отклоняет заказ: возвращает баллы и остаток товара
func (m *Marketplace) RejectOrder(ctx context.Context, actorID int64, orderID uint, note string) (*models.MarketOrder, error) {
	var order *models.MarketOrder
	err := m.store.InTx(ctx, "market_reject_order", func(tx repository.Tx) error {
		var err error
		order, err = tx.LockOrder(orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderPending {
			return apperrors.Conflict("order %s is %s", order.OrderNumber, order.Status)
		}

		product, err := tx.LockProduct(order.ProductID)
		if err == nil {
			product.Stock += order.Quantity
			if err := tx.SaveProduct(product); err != nil {
				return err
			}
			order.Product = *product
		} else if !apperrors.IsNotFound(err) {
			return err
		}

		if _, err := m.ledger.Credit(tx, Entry{
			UserID:  order.UserID,
			Amount:  order.TotalPrice,
			Reason:  "order rejected " + order.OrderNumber,
			ActorID: Actor(actorID),
		}); err != nil {
			return err
		}

		order.Status = models.OrderRejected
		order.AdminNotes = note
		order.UpdatedAt = m.now()
		return tx.SaveOrder(order)
	})
	if err != nil {
		return nil, err
	}

	m.audit.Record(AuditMarket, SeverityWarning, "order %s rejected by %d, %s KP refunded",
		order.OrderNumber, actorID, FormatPoints(order.TotalPrice))
	text := fmt.Sprintf("❌ Siparişin reddedildi: %s\n%s KP bakiyene iade edildi.", order.OrderNumber, FormatPoints(order.TotalPrice))
	if note != "" {
		text += "\n📝 " + note
	}
	m.dmBuyer(ctx, order, text)
	return order, nil
}

func (m *Marketplace) dmBuyer(ctx context.Context, order *models.MarketOrder, text string) {
	if _, err := m.platform.SendMessage(ctx, DM(order.UserID, text)); err != nil {
		m.logger.Warn("Failed to notify buyer", zap.String("order", order.OrderNumber), zap.Error(err))
	}
}

// ListOrders заказы по статусу, новые первыми
func (m *Marketplace) ListOrders(ctx context.Context, status string, limit int) ([]models.MarketOrder, error) {
	var orders []models.MarketOrder
	err := m.store.ReadTx(ctx, "market_list_orders", func(tx repository.Tx) error {
		var err error
		orders, err = tx.ListOrders(status, limit)
		return err
	})
	return orders, err
}

// ListUserOrders заказы пользователя, новые первыми
func (m *Marketplace) ListUserOrders(ctx context.Context, userID int64, limit int) ([]models.MarketOrder, error) {
	var orders []models.MarketOrder
	err := m.store.ReadTx(ctx, "market_list_user_orders", func(tx repository.Tx) error {
		var err error
		orders, err = tx.ListUserOrders(userID, limit)
		return err
	})
	return orders, err
}
