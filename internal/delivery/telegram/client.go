package telegram

import (
	"context"
	"errors"
	"net/http"
	"time"

	"KirveHubBot/internal/service"
	"KirveHubBot/pkg/apperrors"
	"KirveHubBot/pkg/resilience"
	"KirveHubBot/pkg/server"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// BotAPI часть *tgbotapi.BotAPI, через которую идут исходящие вызовы
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// ClientOptions настройки клиента
type ClientOptions struct {
	SendTimeout      time.Duration
	FailureThreshold int
	ResetTimeout     time.Duration
}

// Client реализует service.Platform поверх Bot API.
// Все вызовы проходят через один circuit breaker.
type Client struct {
	api     BotAPI
	breaker *resilience.CircuitBreaker
	logger  *zap.Logger
	timeout time.Duration
}

var _ service.Platform = (*Client)(nil)

// NewClient создает новый экземпляр Client
func NewClient(api BotAPI, opts ClientOptions, logger *zap.Logger) *Client {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	breaker := resilience.NewCircuitBreaker(resilience.BreakerOptions{
		Name:             "telegram",
		FailureThreshold: opts.FailureThreshold,
		ResetTimeout:     opts.ResetTimeout,
		OnStateChange:    server.RecordCircuitBreakerStateChange,
	}, logger)

	return &Client{api: api, breaker: breaker, logger: logger, timeout: opts.SendTimeout}
}

// SendMessage отправляет текст или фото с подписью и возвращает id сообщения
func (c *Client) SendMessage(ctx context.Context, msg service.OutboundMessage) (int, error) {
	var chattable tgbotapi.Chattable
	if msg.PhotoURL != "" {
		photo := tgbotapi.NewPhoto(msg.ChatID, tgbotapi.FileURL(msg.PhotoURL))
		photo.Caption = msg.Text
		photo.ParseMode = msg.ParseMode
		photo.ReplyToMessageID = msg.ReplyTo
		if keyboard := inlineKeyboard(msg.Buttons); keyboard != nil {
			photo.ReplyMarkup = *keyboard
		}
		chattable = photo
	} else {
		text := tgbotapi.NewMessage(msg.ChatID, msg.Text)
		text.ReplyToMessageID = msg.ReplyTo
		text.ParseMode = msg.ParseMode
		text.DisableWebPagePreview = true
		if keyboard := inlineKeyboard(msg.Buttons); keyboard != nil {
			text.ReplyMarkup = *keyboard
		}
		chattable = text
	}

	var sent tgbotapi.Message
	err := c.call(ctx, "send_message", func() error {
		var err error
		sent, err = c.api.Send(chattable)
		return err
	})
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// EditMessage меняет текст и клавиатуру; nil-кнопки убирают клавиатуру
func (c *Client) EditMessage(ctx context.Context, chatID int64, messageID int, text string, buttons [][]service.Button) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.DisableWebPagePreview = true
	if keyboard := inlineKeyboard(buttons); keyboard != nil {
		edit.ReplyMarkup = keyboard
	}
	return c.call(ctx, "edit_message", func() error {
		_, err := c.api.Request(edit)
		return err
	})
}

// DeleteMessage удаляет сообщение
func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return c.call(ctx, "delete_message", func() error {
		_, err := c.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
		return err
	})
}

// AnswerCallback подтверждает нажатие кнопки
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	answer := tgbotapi.NewCallback(callbackID, text)
	answer.ShowAlert = alert
	return c.call(ctx, "answer_callback", func() error {
		_, err := c.api.Request(answer)
		return err
	})
}

// call выполняет вызов с таймаутом под circuit breaker. Отказы конкретного
// получателя (бот заблокирован, чат не найден) не открывают breaker.
func (c *Client) call(ctx context.Context, method string, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var callErr error
	err := c.breaker.Execute(ctx, method, func(ctx context.Context) error {
		done := make(chan error, 1)
		go func() { done <- fn() }()

		select {
		case callErr = <-done:
		case <-ctx.Done():
			callErr = ctx.Err()
		}
		if isRecipientError(callErr) {
			return nil
		}
		return callErr
	})
	if err == nil {
		err = callErr
	}

	server.RecordPlatformCall(method, err)
	if err != nil {
		return apperrors.Platform(err, "telegram %s failed", method)
	}
	return nil
}

func isRecipientError(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusBadRequest || apiErr.Code == http.StatusForbidden
}

func inlineKeyboard(buttons [][]service.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, row := range buttons {
		line := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				line = append(line, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			} else {
				line = append(line, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		rows = append(rows, line)
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &keyboard
}
