package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config содержит все настройки приложения
type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Features FeatureConfig  `mapstructure:"features"`
	Store    StoreConfig    `mapstructure:"store"`
	Timezone string         `mapstructure:"timezone"`
}

// TelegramConfig содержит учетные данные бота и служебные идентификаторы
type TelegramConfig struct {
	Token        string `mapstructure:"token"`
	AdminUserID  int64  `mapstructure:"admin_user_id"`
	OwnerUserID  int64  `mapstructure:"owner_user_id"`
	LogChannelID int64  `mapstructure:"log_channel_id"`
	// PollTimeout таймаут long polling в секундах
	PollTimeout int `mapstructure:"poll_timeout"`
}

// PostgresConfig содержит настройки для PostgreSQL
type PostgresConfig struct {
	DSN          string `mapstructure:"dsn"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// RedisConfig содержит настройки для Redis
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// Disabled переключает реестры кулдаунов на память процесса
	Disabled bool `mapstructure:"disabled"`
}

// HTTPConfig содержит настройки сервера здоровья и метрик
type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

// FeatureConfig флаги окружения
type FeatureConfig struct {
	MaintenanceMode bool `mapstructure:"maintenance_mode"`
	DetailedLogging bool `mapstructure:"detailed_logging"`
}

// StoreConfig выбирает реализацию хранилища
type StoreConfig struct {
	// Driver: postgres или memory
	Driver string `mapstructure:"driver"`
}

// ErrMissingToken возвращается, если не задан токен бота
var ErrMissingToken = errors.New("BOT_TOKEN is not set")

// LoadConfig загружает настройки из .env, файла и переменных окружения
func LoadConfig() (*Config, error) {
	// .env необязателен, переменные окружения процесса имеют приоритет
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	loadFromEnv(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.Telegram.Token == "" {
		return nil, ErrMissingToken
	}

	return &config, nil
}

// Location возвращает часовой пояс бота для суточных и недельных периодов
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.poll_timeout", 60)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.username", "postgres")
	v.SetDefault("postgres.password", "postgres")
	v.SetDefault("postgres.dbname", "kirvehub")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 25)
	v.SetDefault("postgres.max_idle_conns", 10)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.disabled", false)

	v.SetDefault("http.port", 8080)
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("timezone", "Europe/Istanbul")
}

func loadFromEnv(v *viper.Viper) {
	setString(v, "BOT_TOKEN", "telegram.token")
	setInt64(v, "ADMIN_USER_ID", "telegram.admin_user_id")
	setInt64(v, "OWNER_USER_ID", "telegram.owner_user_id")
	setInt64(v, "LOG_CHANNEL_ID", "telegram.log_channel_id")

	setString(v, "DATABASE_URL", "postgres.dsn")
	setString(v, "DB_HOST", "postgres.host")
	setInt64(v, "DB_PORT", "postgres.port")
	setString(v, "DB_USER", "postgres.username")
	setString(v, "DB_PASSWORD", "postgres.password")
	setString(v, "DB_NAME", "postgres.dbname")

	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		redisPort := "6379"
		if port := os.Getenv("REDIS_PORT"); port != "" {
			redisPort = port
		}
		v.Set("redis.addr", redisHost+":"+redisPort)
	}
	setBool(v, "REDIS_DISABLED", "redis.disabled")

	setInt64(v, "HTTP_PORT", "http.port")
	setBool(v, "MAINTENANCE_MODE", "features.maintenance_mode")
	setBool(v, "DETAILED_LOGGING", "features.detailed_logging")
	setString(v, "STORE_DRIVER", "store.driver")
	setString(v, "BOT_TIMEZONE", "timezone")
}

func setString(v *viper.Viper, env, key string) {
	if value := os.Getenv(env); value != "" {
		v.Set(key, value)
	}
}

func setInt64(v *viper.Viper, env, key string) {
	if value := os.Getenv(env); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			v.Set(key, parsed)
		}
	}
}

func setBool(v *viper.Viper, env, key string) {
	if value := os.Getenv(env); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			v.Set(key, parsed)
		}
	}
}
