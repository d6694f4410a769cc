package service

import (
	"KirveHubBot/internal/models"
)

// Capability административное право
type Capability string

const (
	CapNone              Capability = ""
	CapAdminPanel        Capability = "admin_panel"
	CapRegisterGroup     Capability = "register_group"
	CapManageEvents      Capability = "manage_events"
	CapManageMarket      Capability = "manage_market"
	CapManageBalances    Capability = "manage_balances"
	CapBroadcast         Capability = "broadcast"
	CapScheduledMessages Capability = "scheduled_messages"
	CapDeleteCommands    Capability = "delete_commands"
	CapManageRanks       Capability = "manage_ranks"
	// CapRoot есть только у ранга 4
	CapRoot Capability = "root"
)

var rankCapabilities = map[int][]Capability{
	models.RankMember: {},
	models.RankAdmin1: {CapAdminPanel, CapBroadcast},
	models.RankAdmin2: {
		CapAdminPanel, CapBroadcast,
		CapManageEvents, CapManageMarket, CapManageBalances, CapRegisterGroup, CapManageRanks,
	},
	models.RankSuperAdmin: {
		CapAdminPanel, CapBroadcast,
		CapManageEvents, CapManageMarket, CapManageBalances, CapRegisterGroup, CapManageRanks,
		CapScheduledMessages, CapDeleteCommands, CapRoot,
	},
}

// RankNames отображаемые названия рангов
var RankNames = map[int]string{
	models.RankMember:     "Üye",
	models.RankAdmin1:     "Admin 1",
	models.RankAdmin2:     "Admin 2",
	models.RankSuperAdmin: "Süper Admin",
}

// Allowed сообщает, есть ли у ранга право
func Allowed(rank int, capability Capability) bool {
	if capability == CapNone {
		return true
	}
	for _, c := range rankCapabilities[rank] {
		if c == capability {
			return true
		}
	}
	return false
}

// IsModerator ранг 2 и выше
func IsModerator(rank int) bool {
	return rank >= models.RankAdmin1
}
