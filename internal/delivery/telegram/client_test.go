package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"KirveHubBot/internal/service"
	"KirveHubBot/pkg/apperrors"
	"KirveHubBot/pkg/resilience"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// fakeBotAPI запоминает вызовы и возвращает заданную ошибку
type fakeBotAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	err      error
	calls    int
}

func (f *fakeBotAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: 500 + len(f.sent)}, nil
}

func (f *fakeBotAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func newTestClient(api BotAPI) *Client {
	return NewClient(api, ClientOptions{SendTimeout: time.Second, FailureThreshold: 2, ResetTimeout: time.Minute}, zap.NewNop())
}

func TestClientSendMessage(t *testing.T) {
	api := &fakeBotAPI{}
	client := newTestClient(api)

	id, err := client.SendMessage(context.Background(), service.OutboundMessage{
		ChatID:    42,
		Text:      "<b>merhaba</b>",
		ReplyTo:   7,
		ParseMode: "HTML",
		Buttons:   [][]service.Button{{{Text: "Katıl", Data: "evt:join:1"}, {Text: "Site", URL: "https://example.com"}}},
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if id != 501 {
		t.Errorf("expected message id 501, got %d", id)
	}

	msg, ok := api.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("expected MessageConfig, got %T", api.sent[0])
	}
	if msg.ChatID != 42 || msg.ReplyToMessageID != 7 || msg.ParseMode != "HTML" {
		t.Errorf("unexpected message config: %+v", msg)
	}
	keyboard, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(keyboard.InlineKeyboard) != 1 || len(keyboard.InlineKeyboard[0]) != 2 {
		t.Fatalf("unexpected keyboard: %#v", msg.ReplyMarkup)
	}
	if data := keyboard.InlineKeyboard[0][0].CallbackData; data == nil || *data != "evt:join:1" {
		t.Errorf("expected callback button, got %+v", keyboard.InlineKeyboard[0][0])
	}
	if url := keyboard.InlineKeyboard[0][1].URL; url == nil || *url != "https://example.com" {
		t.Errorf("expected url button, got %+v", keyboard.InlineKeyboard[0][1])
	}
}

func TestClientSendPhoto(t *testing.T) {
	api := &fakeBotAPI{}
	client := newTestClient(api)

	if _, err := client.SendMessage(context.Background(), service.OutboundMessage{ChatID: 1, Text: "caption", PhotoURL: "https://example.com/a.png"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	photo, ok := api.sent[0].(tgbotapi.PhotoConfig)
	if !ok {
		t.Fatalf("expected PhotoConfig, got %T", api.sent[0])
	}
	if photo.Caption != "caption" {
		t.Errorf("expected caption, got %q", photo.Caption)
	}
}

func TestClientRecipientErrorsKeepBreakerClosed(t *testing.T) {
	api := &fakeBotAPI{err: &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}}
	client := newTestClient(api)

	for i := 0; i < 5; i++ {
		_, err := client.SendMessage(context.Background(), service.DM(int64(i+1), "selam"))
		if !apperrors.Is(err, apperrors.KindPlatform) {
			t.Fatalf("attempt %d: expected platform error, got %v", i, err)
		}
	}
	if api.calls != 5 {
		t.Errorf("expected every call to reach the API, got %d", api.calls)
	}
	if state := client.breaker.State(); state != resilience.CircuitClosed {
		t.Errorf("expected breaker to stay closed, got %s", state)
	}
}

func TestClientOutageOpensBreaker(t *testing.T) {
	api := &fakeBotAPI{err: errors.New("connection reset by peer")}
	client := newTestClient(api)

	for i := 0; i < 2; i++ {
		if err := client.DeleteMessage(context.Background(), -100, i); err == nil {
			t.Fatalf("attempt %d: expected error", i)
		}
	}

	err := client.AnswerCallback(context.Background(), "cb", "ok", false)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if api.calls != 2 {
		t.Errorf("expected open breaker to skip the API, got %d calls", api.calls)
	}
}

func TestClientEditMessageWithoutButtons(t *testing.T) {
	api := &fakeBotAPI{}
	client := newTestClient(api)

	if err := client.EditMessage(context.Background(), 5, 9, "yeni", nil); err != nil {
		t.Fatalf("EditMessage: %v", err)
	}
	edit, ok := api.requests[0].(tgbotapi.EditMessageTextConfig)
	if !ok {
		t.Fatalf("expected EditMessageTextConfig, got %T", api.requests[0])
	}
	if edit.ReplyMarkup != nil {
		t.Errorf("expected keyboard to be removed, got %+v", edit.ReplyMarkup)
	}
	if edit.Text != "yeni" || edit.MessageID != 9 {
		t.Errorf("unexpected edit: %+v", edit)
	}
}
