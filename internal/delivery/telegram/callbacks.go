package telegram

import (
	"context"
	"fmt"
	"strings"

	"KirveHubBot/internal/service"
	"KirveHubBot/pkg/apperrors"
	"KirveHubBot/pkg/server"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Кнопки подтверждения рассылки
const (
	callbackBroadcast       = "bc:"
	callbackBroadcastSend   = callbackBroadcast + "send"
	callbackBroadcastCancel = callbackBroadcast + "cancel"
)

// callbackRoute обработчик кнопок с общим префиксом. Возвращает текст
// всплывающего подтверждения.
type callbackRoute struct {
	prefix     string
	capability service.Capability
	handle     func(ctx context.Context, req *request, arg string) (string, error)
}

func (d *Dispatcher) callbackRoutes() []callbackRoute {
	return []callbackRoute{
		{prefix: service.CallbackJoin, handle: d.cbJoin},
		{prefix: service.CallbackLeave, handle: d.cbLeave},
		{prefix: service.CallbackBuy, handle: d.cbBuy},
		{prefix: service.CallbackApprove, capability: service.CapManageMarket, handle: d.cbApprove},
		{prefix: service.CallbackReject, capability: service.CapManageMarket, handle: d.cbReject},
		{prefix: service.CallbackDeliver, capability: service.CapManageMarket, handle: d.cbDeliver},
		{prefix: service.CallbackToggle, capability: service.CapManageMarket, handle: d.cbToggleProduct},
		{prefix: service.CallbackDelete, capability: service.CapManageMarket, handle: d.cbDeleteProduct},
		{prefix: service.CallbackProfileToggle, capability: service.CapScheduledMessages, handle: d.cbToggleProfile},
		{prefix: service.CallbackProfileDelete, capability: service.CapScheduledMessages, handle: d.cbDeleteProfile},
		{prefix: callbackBroadcast, capability: service.CapBroadcast, handle: d.cbBroadcast},
		{prefix: callbackAdmin, capability: service.CapAdminPanel, handle: d.cbAdminPanel},
		{prefix: callbackMenu, handle: d.cbMenu},
	}
}

func (d *Dispatcher) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb.From == nil {
		return nil
	}
	logger := server.WithRequestID(ctx, d.logger).With(zap.Int64("user_id", cb.From.ID), zap.String("callback", cb.Data))

	user, err := d.svc.Users.Ensure(ctx, cb.From.ID, cb.From.FirstName, cb.From.UserName)
	if err != nil {
		d.logFailure(logger, "callback", err)
		d.answer(ctx, logger, cb.ID, callbackMessage(err), true)
		return systemError(err)
	}

	req := &request{user: user, logger: logger}
	if cb.Message != nil && cb.Message.Chat != nil {
		req.chatID = cb.Message.Chat.ID
		req.messageID = cb.Message.MessageID
	}

	if d.maintenance && !service.IsModerator(user.RankID) {
		d.answer(ctx, logger, cb.ID, maintenanceText, true)
		return nil
	}

	var route *callbackRoute
	for i := range d.callbacks {
		if strings.HasPrefix(cb.Data, d.callbacks[i].prefix) {
			route = &d.callbacks[i]
			break
		}
	}
	if route == nil {
		d.answer(ctx, logger, cb.ID, "", false)
		return nil
	}
	if !service.Allowed(user.RankID, route.capability) {
		d.answer(ctx, logger, cb.ID, userMessage(apperrors.ErrInsufficientPermission, ""), true)
		return nil
	}

	text, err := route.handle(ctx, req, strings.TrimPrefix(cb.Data, route.prefix))
	if err != nil {
		d.logFailure(logger, route.prefix, err)
		d.answer(ctx, logger, cb.ID, callbackMessage(err), true)
		if apperrors.Is(err, apperrors.KindInsufficientFunds) {
			d.reply(ctx, req, userMessage(err, ""))
		}
		return systemError(err)
	}
	d.answer(ctx, logger, cb.ID, text, false)
	return nil
}

func (d *Dispatcher) answer(ctx context.Context, logger *zap.Logger, callbackID, text string, alert bool) {
	if err := d.platform.AnswerCallback(ctx, callbackID, text, alert); err != nil {
		logger.Debug("Failed to answer callback", zap.Error(err))
	}
}

// edit обновляет сообщение с кнопкой; ошибка не мешает основному действию
func (d *Dispatcher) edit(ctx context.Context, req *request, text string, buttons [][]service.Button) {
	if req.messageID == 0 {
		return
	}
	if err := d.platform.EditMessage(ctx, req.chatID, req.messageID, text, buttons); err != nil {
		req.logger.Debug("Failed to edit message", zap.Error(err))
	}
}

func (d *Dispatcher) cbJoin(ctx context.Context, req *request, arg string) (string, error) {
	eventID, err := parseRecordID(arg)
	if err != nil {
		return "", err
	}
	participant, err := d.svc.Lottery.Join(ctx, eventID, req.user.UserID)
	if err != nil {
		return "", err
	}
	if participant.PaymentAmount.IsPositive() {
		return fmt.Sprintf("🎯 Çekilişe katıldın! %s KP ödendi.", service.FormatPoints(participant.PaymentAmount)), nil
	}
	return "🎯 Çekilişe katıldın!", nil
}

func (d *Dispatcher) cbLeave(ctx context.Context, req *request, arg string) (string, error) {
	eventID, err := parseRecordID(arg)
	if err != nil {
		return "", err
	}
	refund, err := d.svc.Lottery.Withdraw(ctx, eventID, req.user.UserID)
	if err != nil {
		return "", err
	}
	if refund.IsPositive() {
		return fmt.Sprintf("↩️ Çekilişten ayrıldın, %s KP iade edildi.", service.FormatPoints(refund)), nil
	}
	return "↩️ Çekilişten ayrıldın.", nil
}

func (d *Dispatcher) cbBuy(ctx context.Context, req *request, arg string) (string, error) {
	productID, err := parseRecordID(arg)
	if err != nil {
		return "", err
	}
	receipt, err := d.svc.Market.PlaceOrder(ctx, req.user.UserID, productID, 1)
	if err != nil {
		return "", err
	}
	return "🛒 Sipariş alındı: " + receipt.Order.OrderNumber, nil
}

func (d *Dispatcher) cbApprove(ctx context.Context, req *request, arg string) (string, error) {
	orderID, err := parseRecordID(arg)
	if err != nil {
		return "", err
	}
	order, err := d.svc.Market.ApproveOrder(ctx, req.user.UserID, orderID, "")
	if err != nil {
		return "", err
	}
	d.edit(ctx, req, orderText(order), service.OrderButtons(order))
	return "✅ Sipariş onaylandı", nil
}

func (d *Dispatcher) cbReject(ctx context.Context, req *request, arg string) (string, error) {
	orderID, err := parseRecordID(arg)
	if err != nil {
		return "", err
	}
	order, err := d.svc.Market.RejectOrder(ctx, req.user.UserID, orderID, "")
	if err != nil {
		return "", err
	}
	d.edit(ctx, req, orderText(order), nil)
	return "❌ Sipariş reddedildi, KP iade edildi", nil
}

func (d *Dispatcher) cbDeliver(ctx context.Context, req *request, arg string) (string, error) {
	orderID, err := parseRecordID(arg)
	if err != nil {
		return "", err
	}
	order, err := d.svc.Market.DeliverOrder(ctx, req.user.UserID, orderID)
	if err != nil {
		return "", err
	}
	d.edit(ctx, req, orderText(order), nil)
	return "📦 Teslim edildi olarak işaretlendi", nil
}

func (d *Dispatcher) cbToggleProduct(ctx context.Context, req *request, arg string) (string, error) {
	productID, err := parseRecordID(arg)
	if err != nil {
		return "", err
	}
	product, err := d.svc.Market.ToggleProduct(ctx, req.user.UserID, productID)
	if err != nil {
		return "", err
	}
	if product.IsActive {
		return fmt.Sprintf("▶️ %s satışa açıldı", product.Name), nil
	}
	return fmt.Sprintf("⏸ %s satıştan kaldırıldı", product.Name), nil
}

func (d *Dispatcher) cbDeleteProduct(ctx context.Context, req *request, arg string) (string, error) {
	productID, err := parseRecordID(arg)
	if err != nil {
		return "", err
	}
	if err := d.svc.Market.DeleteProduct(ctx, req.user.UserID, productID); err != nil {
		return "", err
	}
	return fmt.Sprintf("🗑 Ürün #%d silindi", productID), nil
}

func (d *Dispatcher) cbToggleProfile(ctx context.Context, req *request, arg string) (string, error) {
	profileID, err := parseRecordID(arg)
	if err != nil {
		return "", err
	}
	profile, err := d.svc.Scheduler.Toggle(ctx, req.user.UserID, profileID)
	if err != nil {
		return "", err
	}
	d.refreshProfiles(ctx, req)
	if profile.IsActive {
		return "▶️ Profil başlatıldı", nil
	}
	return "⏸ Profil durduruldu", nil
}

func (d *Dispatcher) cbDeleteProfile(ctx context.Context, req *request, arg string) (string, error) {
	profileID, err := parseRecordID(arg)
	if err != nil {
		return "", err
	}
	if err := d.svc.Scheduler.DeleteProfile(ctx, req.user.UserID, profileID); err != nil {
		return "", err
	}
	d.refreshProfiles(ctx, req)
	return "🗑 Profil silindi", nil
}

func (d *Dispatcher) refreshProfiles(ctx context.Context, req *request) {
	text, buttons, err := d.profilesView(ctx)
	if err != nil {
		req.logger.Debug("Failed to reload profiles", zap.Error(err))
		return
	}
	d.edit(ctx, req, text, buttons)
}

func (d *Dispatcher) cbBroadcast(ctx context.Context, req *request, arg string) (string, error) {
	state, err := d.states.Get(ctx, req.user.UserID)
	if err != nil {
		return "", err
	}
	if state == nil || state.Kind != dialogBroadcast || state.Data[fieldText] == "" {
		return "", apperrors.Conflict("broadcast draft expired")
	}
	if err := d.states.Clear(ctx, req.user.UserID); err != nil {
		return "", err
	}

	if arg != "send" {
		d.edit(ctx, req, "🚫 Duyuru iptal edildi.", nil)
		return "İptal edildi", nil
	}

	d.edit(ctx, req, "📤 Duyuru gönderiliyor...", nil)
	report, err := d.svc.Broadcast.Send(ctx, req.user.UserID, service.OutboundMessage{Text: state.Data[fieldText]})
	if report != nil {
		d.reply(ctx, req, fmt.Sprintf("📢 Duyuru tamamlandı.\nAlıcı: %d\nGönderildi: %d\nBaşarısız: %d",
			report.Recipients, report.Sent, report.Failed))
	}
	if err != nil {
		return "", err
	}
	return "📢 Gönderildi", nil
}

func (d *Dispatcher) cbAdminPanel(ctx context.Context, req *request, section string) (string, error) {
	switch section {
	case adminStats:
		return "", d.replyText(ctx, req, d.statsText, false)
	case adminEvents:
		return "", d.replyText(ctx, req, d.eventsText, false)
	case adminStaff:
		return "", d.replyText(ctx, req, d.staffText, true)
	case adminOrders:
		if !service.Allowed(req.user.RankID, service.CapManageMarket) {
			return "", apperrors.ErrInsufficientPermission
		}
		return "", d.cmdPendingOrders(ctx, req)
	}

	if !service.Allowed(req.user.RankID, service.CapRoot) {
		return "", apperrors.ErrInsufficientPermission
	}
	switch section {
	case adminSettings:
		return "", d.replyText(ctx, req, d.settingsText, true)
	case adminCommands:
		return "", d.replyText(ctx, req, d.customCommandsText, true)
	case adminProfiles:
		return "", d.cmdProfiles(ctx, req)
	}
	return "", apperrors.InvalidInput("unknown section %q", section)
}

// replyText отправляет в личку текст, собранный render; html включает разметку <pre>
func (d *Dispatcher) replyText(ctx context.Context, req *request, render func(ctx context.Context) (string, error), html bool) error {
	text, err := render(ctx)
	if err != nil {
		return err
	}
	if html {
		d.replyHTML(ctx, req, text, nil)
	} else {
		d.reply(ctx, req, text)
	}
	return nil
}

func (d *Dispatcher) cbMenu(ctx context.Context, req *request, section string) (string, error) {
	switch section {
	case menuHistory:
		if !req.user.IsRegistered {
			return "", apperrors.ErrNotRegistered
		}
		return "", d.cmdHistory(ctx, req)
	case menuOrders:
		return "", d.cmdMyOrders(ctx, req)
	case menuTop:
		return "", d.cmdLeaderboard(ctx, req)
	case menuMarket:
		return "", d.cmdMarket(ctx, &request{user: req.user, logger: req.logger})
	case menuEvents:
		return "", d.cmdEvents(ctx, req)
	}
	return "", apperrors.InvalidInput("unknown section %q", section)
}
