package telegram

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"KirveHubBot/internal/models"
	"KirveHubBot/internal/repository"
	"KirveHubBot/internal/service"
	"KirveHubBot/pkg/apperrors"
	"KirveHubBot/pkg/server"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const maintenanceText = "🛠 Bot şu anda bakımda. Kısa süre içinde geri döneceğiz."

// Services сервисы, к которым обращаются обработчики команд
type Services struct {
	Users     *service.UserService
	Groups    *service.GroupService
	Accrual   *service.AccrualEngine
	Replies   *service.ReplyEngine
	Recruiter *service.Recruiter
	Lottery   *service.LotteryService
	Market    *service.Marketplace
	Broadcast *service.Broadcaster
	Balance   *service.BalanceOps
	Scheduler *service.Scheduler
	Commands  *service.CustomCommands
	Settings  *service.SettingsService
	Bonus     *service.BonusService
}

// route обработчик slash-команды
type route struct {
	capability service.Capability
	// registered требует регистрации пользователя
	registered bool
	usage      string
	summary    string
	handle     func(ctx context.Context, req *request) error
}

// request команда, приведенная к личному чату пользователя
type request struct {
	user    *models.User
	command string
	args    []string
	// rest текст после команды без разбиения на слова
	rest string

	// chatID и messageID исходного сообщения; для групповых команд это группа
	chatID    int64
	messageID int
	fromGroup bool
	chatTitle string
	chatUser  string

	replyTo *tgbotapi.User
	logger  *zap.Logger
}

// Dispatcher маршрутизирует обновления: команды, кнопки, диалоги и текст групп
type Dispatcher struct {
	svc         Services
	platform    service.Platform
	states      repository.InputStateStore
	logger      *zap.Logger
	maintenance bool

	routes    map[string]route
	callbacks []callbackRoute
	dialogs   map[string]dialog
}

// NewDispatcher создает новый экземпляр Dispatcher
func NewDispatcher(svc Services, platform service.Platform, states repository.InputStateStore, logger *zap.Logger, maintenance bool) *Dispatcher {
	d := &Dispatcher{
		svc:         svc,
		platform:    platform,
		states:      states,
		logger:      logger,
		maintenance: maintenance,
	}
	d.routes = d.commandRoutes()
	d.callbacks = d.callbackRoutes()
	d.dialogs = d.dialogFlows()
	return d
}

// HandleUpdate обрабатывает одно обновление. Ошибки пользователя уже переведены
// в личные сообщения; наружу возвращаются только системные отказы.
func (d *Dispatcher) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	var (
		kind   string
		handle func(ctx context.Context) error
	)
	switch {
	case update.CallbackQuery != nil:
		kind = "callback"
		handle = func(ctx context.Context) error { return d.handleCallback(ctx, update.CallbackQuery) }
	case update.Message != nil:
		kind = "message"
		handle = func(ctx context.Context) error { return d.handleMessage(ctx, update.Message) }
	default:
		return nil
	}

	ctx, finish := server.TraceUpdate(ctx, d.logger, kind, update.UpdateID)
	err := handle(ctx)
	finish(err)
	return err
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil || msg.From.IsBot || msg.Chat == nil {
		return nil
	}
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if command, rest, ok := parseCommand(text); ok {
		return d.handleCommand(ctx, msg, command, rest)
	}
	if isGroupChat(msg.Chat) {
		return d.handleGroupText(ctx, msg, text)
	}
	if msg.Chat.IsPrivate() {
		return d.handlePrivateText(ctx, msg, text)
	}
	return nil
}

// parseCommand выделяет имя команды без "/" и "@bot". Разбор идет по тексту,
// а не по entity: Telegram не размечает команды с не-латинскими буквами.
func parseCommand(text string) (string, string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest := strings.TrimSpace(text[1:]), ""
	if i := strings.IndexAny(head, " \t\n"); i >= 0 {
		head, rest = head[:i], head[i+1:]
	}
	if at := strings.Index(head, "@"); at >= 0 {
		head = head[:at]
	}
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

func isGroupChat(chat *tgbotapi.Chat) bool {
	return chat != nil && (chat.IsGroup() || chat.IsSuperGroup())
}

func (d *Dispatcher) handleCommand(ctx context.Context, msg *tgbotapi.Message, command, rest string) error {
	logger := server.WithRequestID(ctx, d.logger).With(zap.Int64("user_id", msg.From.ID), zap.String("command", command))

	fromGroup := isGroupChat(msg.Chat)
	if fromGroup {
		if err := d.platform.DeleteMessage(ctx, msg.Chat.ID, msg.MessageID); err != nil {
			logger.Debug("Failed to delete group command", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
		}
	}

	user, err := d.svc.Users.Ensure(ctx, msg.From.ID, msg.From.FirstName, msg.From.UserName)
	if err != nil {
		d.logFailure(logger, command, err)
		d.send(ctx, logger, service.DM(msg.From.ID, userMessage(err, "")))
		return systemError(err)
	}

	if err := d.states.Clear(ctx, user.UserID); err != nil {
		logger.Warn("Failed to reset dialog state", zap.Error(err))
	}

	req := &request{
		user:      user,
		command:   command,
		args:      strings.Fields(rest),
		rest:      rest,
		chatID:    msg.Chat.ID,
		messageID: msg.MessageID,
		fromGroup: fromGroup,
		chatTitle: msg.Chat.Title,
		chatUser:  msg.Chat.UserName,
		logger:    logger,
	}
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil && !msg.ReplyToMessage.From.IsBot {
		req.replyTo = msg.ReplyToMessage.From
	}
	return d.dispatch(ctx, req)
}

func (d *Dispatcher) dispatch(ctx context.Context, req *request) error {
	r, ok := d.routes[req.command]
	if !ok {
		d.reply(ctx, req, d.helpText(req.user))
		return nil
	}
	if d.maintenance && !service.IsModerator(req.user.RankID) {
		d.reply(ctx, req, maintenanceText)
		return nil
	}
	if !service.Allowed(req.user.RankID, r.capability) {
		return d.fail(ctx, req, r, apperrors.Forbidden("/%s requires %s", req.command, r.capability))
	}
	if r.registered && !req.user.IsRegistered {
		return d.fail(ctx, req, r, apperrors.NotRegistered("user %d is not registered", req.user.UserID))
	}

	if err := r.handle(ctx, req); err != nil {
		return d.fail(ctx, req, r, err)
	}
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, req *request, r route, err error) error {
	d.logFailure(req.logger, req.command, err)
	d.reply(ctx, req, userMessage(err, r.usage))
	return systemError(err)
}

// helpText список команд, доступных рангу пользователя
func (d *Dispatcher) helpText(user *models.User) string {
	names := make([]string, 0, len(d.routes))
	for name, r := range d.routes {
		if r.summary == "" || !service.Allowed(user.RankID, r.capability) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("🤖 Bu komutu tanımıyorum. Kullanabileceğin komutlar:\n\n")
	for _, name := range names {
		r := d.routes[name]
		fmt.Fprintf(&b, "/%s: %s\n", name, r.summary)
	}
	return strings.TrimRight(b.String(), "\n")
}

// handleGroupText обычный текст группы: пользовательские команды, начисление,
// ответы на приветствия и приглашение к регистрации
func (d *Dispatcher) handleGroupText(ctx context.Context, msg *tgbotapi.Message, text string) error {
	logger := server.WithRequestID(ctx, d.logger)
	chatMsg := service.ChatMessage{
		UserID:    msg.From.ID,
		FirstName: msg.From.FirstName,
		Username:  msg.From.UserName,
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Text:      text,
	}

	if d.replyCustomCommand(ctx, logger, msg, text) {
		return nil
	}

	result, accrualErr := d.svc.Accrual.HandleMessage(ctx, chatMsg)
	if accrualErr != nil {
		logger.Warn("Accrual failed", zap.Int64("user_id", chatMsg.UserID), zap.Error(accrualErr))
	}

	reply, ok, err := d.svc.Replies.Reply(ctx, chatMsg)
	if err != nil {
		logger.Debug("Chat reply skipped", zap.Error(err))
	}
	if ok {
		d.send(ctx, logger, service.OutboundMessage{ChatID: msg.Chat.ID, Text: reply, ReplyTo: msg.MessageID})
	}

	if result != nil && result.Counted && !result.Registered && d.svc.Recruiter != nil {
		d.svc.Recruiter.Offer(chatMsg)
	}
	return systemError(accrualErr)
}

// replyCustomCommand отвечает на "!команду" в том же чате; false, если команды нет
func (d *Dispatcher) replyCustomCommand(ctx context.Context, logger *zap.Logger, msg *tgbotapi.Message, text string) bool {
	if !strings.HasPrefix(text, service.CustomCommandPrefix) {
		return false
	}
	cmd, err := d.svc.Commands.Match(ctx, text)
	if err != nil {
		logger.Warn("Custom command lookup failed", zap.Error(err))
	}
	if cmd == nil {
		return false
	}
	d.send(ctx, logger, d.svc.Commands.Reply(cmd, msg.Chat.ID, msg.MessageID))
	return true
}

// handlePrivateText текст в личке: пользовательская команда или шаг активного диалога
func (d *Dispatcher) handlePrivateText(ctx context.Context, msg *tgbotapi.Message, text string) error {
	logger := server.WithRequestID(ctx, d.logger).With(zap.Int64("user_id", msg.From.ID))

	if d.replyCustomCommand(ctx, logger, msg, text) {
		return nil
	}

	state, err := d.states.Get(ctx, msg.From.ID)
	if err != nil {
		d.logFailure(logger, "dialog", err)
		d.send(ctx, logger, service.DM(msg.From.ID, userMessage(err, "")))
		return systemError(err)
	}
	if state == nil {
		d.send(ctx, logger, service.DM(msg.From.ID, "ℹ️ Komutları görmek için /menu yazabilirsin."))
		return nil
	}

	user, err := d.svc.Users.Ensure(ctx, msg.From.ID, msg.From.FirstName, msg.From.UserName)
	if err != nil {
		d.logFailure(logger, "dialog", err)
		d.send(ctx, logger, service.DM(msg.From.ID, userMessage(err, "")))
		return systemError(err)
	}
	req := &request{user: user, chatID: msg.Chat.ID, messageID: msg.MessageID, logger: logger}
	if err := d.continueDialog(ctx, req, state, text); err != nil {
		d.logFailure(logger, state.Kind, err)
		d.reply(ctx, req, userMessage(err, ""))
		return systemError(err)
	}
	return nil
}

// reply отвечает в личку автору команды, даже если команда пришла из группы
func (d *Dispatcher) reply(ctx context.Context, req *request, text string) {
	d.send(ctx, req.logger, service.DM(req.user.UserID, text))
}

func (d *Dispatcher) replyWithButtons(ctx context.Context, req *request, text string, buttons [][]service.Button) {
	d.send(ctx, req.logger, service.OutboundMessage{ChatID: req.user.UserID, Text: text, Buttons: buttons})
}

func (d *Dispatcher) send(ctx context.Context, logger *zap.Logger, msg service.OutboundMessage) {
	if _, err := d.platform.SendMessage(ctx, msg); err != nil {
		logger.Warn("Failed to send message", zap.Int64("chat_id", msg.ChatID), zap.Error(err))
	}
}
