package service

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"KirveHubBot/internal/models"
	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"

	"github.com/shopspring/decimal"
)

type settingField struct {
	apply func(s *models.SystemSettings, value string) error
	show  func(s *models.SystemSettings) string
}

func decimalField(get func(s *models.SystemSettings) *decimal.Decimal) settingField {
	return settingField{
		apply: func(s *models.SystemSettings, value string) error {
			amount, err := ParseAmount(value)
			if err != nil {
				return err
			}
			*get(s) = amount
			return nil
		},
		show: func(s *models.SystemSettings) string { return get(s).StringFixed(2) },
	}
}

func intField(min int, get func(s *models.SystemSettings) *int) settingField {
	return settingField{
		apply: func(s *models.SystemSettings, value string) error {
			n, err := strconv.Atoi(value)
			if err != nil || n < min {
				return apperrors.InvalidInput("expected an integer >= %d", min)
			}
			*get(s) = n
			return nil
		},
		show: func(s *models.SystemSettings) string { return strconv.Itoa(*get(s)) },
	}
}

func boolField(get func(s *models.SystemSettings) *bool) settingField {
	return settingField{
		apply: func(s *models.SystemSettings, value string) error {
			b, ok := parseToggle(value)
			if !ok {
				return apperrors.InvalidInput("expected on/off")
			}
			*get(s) = b
			return nil
		},
		show: func(s *models.SystemSettings) string {
			if *get(s) {
				return "açık"
			}
			return "kapalı"
		},
	}
}

func parseToggle(value string) (bool, bool) {
	switch strings.ToLower(value) {
	case "on", "true", "1", "acik", "açık", "evet":
		return true, true
	case "off", "false", "0", "kapali", "kapalı", "hayir", "hayır":
		return false, true
	}
	return false, false
}

var settingFields = map[string]settingField{
	"points_per_message": decimalField(func(s *models.SystemSettings) *decimal.Decimal { return &s.PointsPerMessage }),
	"daily_limit":        decimalField(func(s *models.SystemSettings) *decimal.Decimal { return &s.DailyLimit }),
	"weekly_limit":       decimalField(func(s *models.SystemSettings) *decimal.Decimal { return &s.WeeklyLimit }),
	"messages_for_point": intField(1, func(s *models.SystemSettings) *int { return &s.MessagesForPoint }),
	"min_message_length": intField(1, func(s *models.SystemSettings) *int { return &s.MinMessageLength }),
	"flood_interval":     intField(0, func(s *models.SystemSettings) *int { return &s.FloodIntervalSeconds }),
	"recruitment":        boolField(func(s *models.SystemSettings) *bool { return &s.RecruitmentEnabled }),
	"scheduled_messages": boolField(func(s *models.SystemSettings) *bool { return &s.ScheduledMessagesEnabled }),
	"chat_replies":       boolField(func(s *models.SystemSettings) *bool { return &s.ChatRepliesEnabled }),
}

// SettingKeys имена настраиваемых параметров
func SettingKeys() []string {
	keys := make([]string, 0, len(settingFields))
	for k := range settingFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SettingValue текстовое значение параметра
func SettingValue(s *models.SystemSettings, key string) string {
	if f, ok := settingFields[key]; ok {
		return f.show(s)
	}
	return ""
}

// ParseAmount разбирает сумму в KP; допускается запятая как десятичный разделитель
func ParseAmount(value string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(value), ",", "."))
	if err != nil {
		return decimal.Zero, apperrors.InvalidInput("invalid amount %q", value)
	}
	if err := validateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// SettingsService чтение и изменение строки настроек
type SettingsService struct {
	store repository.Store
	audit *AuditLog
	now   func() time.Time
}

// NewSettingsService создает новый экземпляр SettingsService
func NewSettingsService(deps Deps) *SettingsService {
	deps = deps.withDefaults()
	return &SettingsService{store: deps.Store, audit: deps.Audit, now: deps.Now}
}

// Get текущие настройки
func (s *SettingsService) Get(ctx context.Context) (*models.SystemSettings, error) {
	var settings *models.SystemSettings
	err := s.store.ReadTx(ctx, "settings_get", func(tx repository.Tx) error {
		var err error
		settings, err = tx.GetSettings()
		return err
	})
	return settings, err
}

// Update меняет один параметр
func (s *SettingsService) Update(ctx context.Context, actorID int64, key, value string) (*models.SystemSettings, error) {
	field, ok := settingFields[key]
	if !ok {
		return nil, apperrors.InvalidInput("unknown setting %q, expected one of: %s", key, strings.Join(SettingKeys(), ", "))
	}

	var settings *models.SystemSettings
	err := s.store.InTx(ctx, "settings_update", func(tx repository.Tx) error {
		var err error
		settings, err = tx.GetSettings()
		if err != nil {
			return err
		}
		if err := field.apply(settings, value); err != nil {
			return err
		}
		if settings.DailyLimit.GreaterThan(settings.WeeklyLimit) {
			return apperrors.InvalidInput("daily limit cannot exceed weekly limit")
		}
		settings.UpdatedAt = s.now()
		return tx.SaveSettings(settings)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(AuditAdmin, SeverityInfo, "setting %s = %s by %d", key, field.show(settings), actorID)
	return settings, nil
}
