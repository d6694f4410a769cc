package service

import "context"

// Button кнопка встроенной клавиатуры: либо callback-данные, либо ссылка
type Button struct {
	Text string
	Data string
	URL  string
}

// OutboundMessage исходящее сообщение
type OutboundMessage struct {
	ChatID   int64
	Text     string
	ReplyTo  int
	Buttons  [][]Button
	PhotoURL string
	// ParseMode режим разметки Bot API; пустая строка означает обычный текст
	ParseMode string
}

// Platform клиент мессенджера
type Platform interface {
	SendMessage(ctx context.Context, msg OutboundMessage) (int, error)
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, buttons [][]Button) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}

// DM короткий вариант отправки личного сообщения
func DM(userID int64, text string) OutboundMessage {
	return OutboundMessage{ChatID: userID, Text: text}
}
