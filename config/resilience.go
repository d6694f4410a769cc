package config

import (
	"time"
)

// ResilienceConfig содержит настройки для механизмов отказоустойчивости
type ResilienceConfig struct {
	// Store настройки транзакций хранилища
	Store struct {
		// TxTimeout ограничение на одну транзакцию; по истечении транзакция откатывается
		TxTimeout time.Duration
		// ReadRetries число повторов для операций только на чтение
		ReadRetries int
	}

	// Platform настройки circuit breaker для Telegram API
	Platform struct {
		FailureThreshold int
		ResetTimeout     time.Duration
		// SendTimeout таймаут одного вызова Bot API
		SendTimeout time.Duration
	}

	// Redis содержит настройки механизмов отказоустойчивости для Redis
	Redis struct {
		CommandTimeout time.Duration
	}

	// Fanout задержка между отправками при рассылках
	Fanout struct {
		SendDelay time.Duration
	}
}

// DefaultResilienceConfig возвращает конфигурацию отказоустойчивости по умолчанию
func DefaultResilienceConfig() ResilienceConfig {
	config := ResilienceConfig{}

	config.Store.TxTimeout = 4 * time.Second
	config.Store.ReadRetries = 2

	config.Platform.FailureThreshold = 5
	config.Platform.ResetTimeout = 30 * time.Second
	config.Platform.SendTimeout = 10 * time.Second

	config.Redis.CommandTimeout = 1 * time.Second

	config.Fanout.SendDelay = 100 * time.Millisecond

	return config
}
