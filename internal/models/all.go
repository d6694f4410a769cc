package models

// All перечисляет модели для автомиграции в порядке зависимостей
func All() []interface{} {
	return []interface{}{
		&Rank{},
		&User{},
		&Group{},
		&SystemSettings{},
		&DailyStat{},
		&BalanceLog{},
		&Event{},
		&EventParticipant{},
		&MarketProduct{},
		&MarketOrder{},
		&CustomCommand{},
		&ScheduledProfile{},
	}
}
