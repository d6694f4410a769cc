package telegram

import (
	"errors"
	"fmt"

	"KirveHubBot/internal/service"
	"KirveHubBot/pkg/apperrors"

	"go.uber.org/zap"
)

// userMessage переводит ошибку в текст для личного сообщения.
// usage подставляется для ошибок ввода, если команда его задает.
func userMessage(err error, usage string) string {
	var appErr *apperrors.Error
	errors.As(err, &appErr)

	switch apperrors.KindOf(err) {
	case apperrors.KindNotRegistered:
		return "📝 Bu işlem için önce kayıt olmalısın: /kirvekayit"
	case apperrors.KindInsufficientPermission:
		return "⛔ Bu işlem için yetkin yok."
	case apperrors.KindInsufficientFunds:
		if appErr != nil {
			return fmt.Sprintf("💸 Yetersiz bakiye.\nGerekli: %s KP\nMevcut: %s KP",
				service.FormatPoints(appErr.Required), service.FormatPoints(appErr.Available))
		}
		return "💸 Yetersiz bakiye."
	case apperrors.KindInvalidInput:
		text := "⚠️ Geçersiz giriş"
		if appErr != nil && appErr.Message != "" {
			text += ": " + appErr.Message
		}
		if usage != "" {
			text += "\nKullanım: " + usage
		}
		return text
	case apperrors.KindConflict:
		if appErr != nil && appErr.Message != "" {
			return "⚠️ İşlem yapılamadı: " + appErr.Message
		}
		return "⚠️ İşlem yapılamadı, durum değişmiş olabilir."
	case apperrors.KindNotFound:
		return "🔍 Kayıt bulunamadı."
	case apperrors.KindRateLimited:
		return "⏳ Çok hızlısın, biraz bekleyip tekrar dene."
	case apperrors.KindTransientStore:
		return "🔄 Geçici bir sorun oluştu, birazdan tekrar dene."
	case apperrors.KindPlatform:
		return "📡 Telegram'a ulaşılamadı, birazdan tekrar dene."
	default:
		return "❌ Beklenmeyen bir hata oluştu."
	}
}

// callbackMessage короткий текст для всплывающего ответа на кнопку
func callbackMessage(err error) string {
	if apperrors.Is(err, apperrors.KindInsufficientFunds) {
		return "💸 Yetersiz bakiye, detaylar özel mesajda."
	}
	return userMessage(err, "")
}

// systemError оставляет только системные ошибки: их пишут в метрики как отказ
func systemError(err error) error {
	switch apperrors.KindOf(err) {
	case apperrors.KindInternal, apperrors.KindTransientStore, apperrors.KindPlatform:
		return err
	}
	return nil
}

func (d *Dispatcher) logFailure(logger *zap.Logger, operation string, err error) {
	switch apperrors.KindOf(err) {
	case apperrors.KindInternal:
		logger.Error("Handler failed", zap.String("operation", operation), zap.Error(err), zap.Stack("stack"))
	case apperrors.KindTransientStore, apperrors.KindPlatform:
		logger.Warn("Handler failed", zap.String("operation", operation), zap.Error(err))
	default:
		logger.Debug("Handler rejected request", zap.String("operation", operation), zap.Error(err))
	}
}
