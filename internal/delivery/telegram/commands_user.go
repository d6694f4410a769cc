package telegram

import (
	"context"
	"fmt"
	"strings"

	"KirveHubBot/internal/models"
	"KirveHubBot/internal/service"
)

const (
	leaderboardSize = 10
	historySize     = 10
	userOrdersSize  = 10
)

// Префиксы кнопок личного меню
const (
	callbackMenu = "menu:"

	menuHistory = "history"
	menuOrders  = "orders"
	menuTop     = "top"
	menuMarket  = "market"
	menuEvents  = "events"
)

func menuButtons() [][]service.Button {
	return [][]service.Button{
		{
			{Text: "📜 Geçmiş", Data: callbackMenu + menuHistory},
			{Text: "🛒 Market", Data: callbackMenu + menuMarket},
		},
		{
			{Text: "🏆 Sıralama", Data: callbackMenu + menuTop},
			{Text: "📦 Siparişlerim", Data: callbackMenu + menuOrders},
		},
		{{Text: "🎉 Çekilişler", Data: callbackMenu + menuEvents}},
	}
}

func (d *Dispatcher) cmdStart(ctx context.Context, req *request) error {
	// deep link t.me/<bot>?start=kayit
	if len(req.args) > 0 && strings.EqualFold(req.args[0], "kayit") {
		return d.cmdRegister(ctx, req)
	}

	name := req.user.FirstName
	if name == "" {
		name = "dostum"
	}
	if req.user.IsRegistered {
		d.replyWithButtons(ctx, req, fmt.Sprintf("👋 Tekrar hoş geldin %s!\nBakiyen: %s KP", name, service.FormatPoints(req.user.Points)), menuButtons())
		return nil
	}
	d.reply(ctx, req, fmt.Sprintf("👋 Merhaba %s!\n\nKirveHub'da mesaj yazarak Kirve Point (KP) kazanabilir, çekilişlere katılabilir ve marketten alışveriş yapabilirsin.\n\nKayıt olmak için: /kirvekayit", name))
	return nil
}

func (d *Dispatcher) cmdRegister(ctx context.Context, req *request) error {
	user, already, err := d.svc.Users.Register(ctx, req.user.UserID, req.user.FirstName, req.user.Username)
	if err != nil {
		return err
	}
	if already {
		d.replyWithButtons(ctx, req, "✅ Zaten kayıtlısın. Bakiyen: "+service.FormatPoints(user.Points)+" KP", menuButtons())
		return nil
	}
	d.replyWithButtons(ctx, req, "🎉 Kaydın tamamlandı! Artık kayıtlı gruplarda yazdığın mesajlar KP kazandırır.", menuButtons())
	return nil
}

func (d *Dispatcher) cmdUnregister(ctx context.Context, req *request) error {
	if err := d.svc.Users.Unregister(ctx, req.user.UserID); err != nil {
		return err
	}
	d.reply(ctx, req, "👋 Kaydın silindi. Bakiyen korunuyor; tekrar kayıt olmak için /kirvekayit")
	return nil
}

func (d *Dispatcher) cmdMenu(ctx context.Context, req *request) error {
	profile, err := d.svc.Users.Profile(ctx, req.user.UserID)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👤 %s\n", profile.User.DisplayName())
	fmt.Fprintf(&b, "🎖 Rütbe: %s\n", profile.RankName)
	if profile.User.IsRegistered {
		b.WriteString("✅ Kayıtlı\n\n")
	} else {
		b.WriteString("❌ Kayıtlı değil (/kirvekayit)\n\n")
	}
	fmt.Fprintf(&b, "💰 Bakiye: %s KP\n", service.FormatPoints(profile.Balance.Points))
	fmt.Fprintf(&b, "📅 Bugün: %s KP\n", service.FormatPoints(profile.Balance.Daily))
	fmt.Fprintf(&b, "🗓 Bu hafta: %s KP\n\n", service.FormatPoints(profile.Balance.Weekly))
	fmt.Fprintf(&b, "💬 Bugünkü mesaj: %s\n", service.FormatCount(profile.MessagesToday))
	fmt.Fprintf(&b, "💬 Son 7 gün: %s\n", service.FormatCount(profile.MessagesWeek))
	fmt.Fprintf(&b, "📨 Toplam mesaj: %s", service.FormatCount(profile.User.TotalMessages))

	d.replyWithButtons(ctx, req, b.String(), menuButtons())
	return nil
}

func (d *Dispatcher) leaderboardText(ctx context.Context) (string, error) {
	users, err := d.svc.Users.Leaderboard(ctx, leaderboardSize)
	if err != nil {
		return "", err
	}
	if len(users) == 0 {
		return "🏆 Henüz sıralamada kimse yok.", nil
	}

	rows := make([][]string, 0, len(users))
	for i, u := range users {
		rows = append(rows, []string{fmt.Sprintf("%d.", i+1), service.Truncate(u.DisplayName(), 20), service.FormatPoints(u.Points)})
	}
	return preformatted("🏆 KP Sıralaması", service.Table([]string{"#", "Kullanıcı", "KP"}, rows)), nil
}

func (d *Dispatcher) cmdLeaderboard(ctx context.Context, req *request) error {
	text, err := d.leaderboardText(ctx)
	if err != nil {
		return err
	}
	d.replyHTML(ctx, req, text, nil)
	return nil
}

func (d *Dispatcher) historyText(ctx context.Context, userID int64) (string, error) {
	logs, err := d.svc.Users.History(ctx, userID, historySize)
	if err != nil {
		return "", err
	}
	if len(logs) == 0 {
		return "📜 Henüz bakiye hareketin yok.", nil
	}

	rows := make([][]string, 0, len(logs))
	for _, l := range logs {
		sign := "+"
		if l.Action == models.ActionDebit {
			sign = "-"
		}
		rows = append(rows, []string{
			l.CreatedAt.Format("02.01 15:04"),
			sign + service.FormatPoints(l.Amount),
			service.FormatPoints(l.BalanceAfter),
			service.Truncate(l.Reason, 24),
		})
	}
	return preformatted("📜 Son bakiye hareketlerin", service.Table([]string{"Tarih", "Tutar", "Bakiye", "Sebep"}, rows)), nil
}

func (d *Dispatcher) cmdHistory(ctx context.Context, req *request) error {
	text, err := d.historyText(ctx, req.user.UserID)
	if err != nil {
		return err
	}
	d.replyHTML(ctx, req, text, nil)
	return nil
}

func (d *Dispatcher) userOrdersText(ctx context.Context, userID int64) (string, error) {
	orders, err := d.svc.Market.ListUserOrders(ctx, userID, userOrdersSize)
	if err != nil {
		return "", err
	}
	if len(orders) == 0 {
		return "📦 Henüz siparişin yok. Ürünler için /market", nil
	}

	var b strings.Builder
	b.WriteString("📦 Siparişlerin\n")
	for _, o := range orders {
		fmt.Fprintf(&b, "\n%s %s\n%s x%d, %s KP", orderStatusIcon(o.Status), o.OrderNumber,
			productName(o.Product), o.Quantity, service.FormatPoints(o.TotalPrice))
	}
	return b.String(), nil
}

func (d *Dispatcher) cmdMyOrders(ctx context.Context, req *request) error {
	text, err := d.userOrdersText(ctx, req.user.UserID)
	if err != nil {
		return err
	}
	d.reply(ctx, req, text)
	return nil
}

func (d *Dispatcher) eventsText(ctx context.Context) (string, error) {
	events, err := d.svc.Lottery.ListActive(ctx)
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return "🎉 Şu anda aktif çekiliş yok.", nil
	}

	var b strings.Builder
	b.WriteString("🎉 Aktif çekilişler\n")
	for _, e := range events {
		title := e.Event.Title
		if title == "" {
			title = "Çekiliş"
		}
		cost := "ücretsiz"
		if e.Event.EntryCost.IsPositive() {
			cost = service.FormatPoints(e.Event.EntryCost) + " KP"
		}
		fmt.Fprintf(&b, "\n#%d %s\n💰 %s · 🏆 %d kazanan · 👥 %d katılımcı", e.Event.ID, title, cost, e.Event.MaxWinners, e.Participants)
	}
	return b.String(), nil
}

func (d *Dispatcher) cmdEvents(ctx context.Context, req *request) error {
	text, err := d.eventsText(ctx)
	if err != nil {
		return err
	}
	d.reply(ctx, req, text)
	return nil
}

func orderStatusIcon(status string) string {
	switch status {
	case models.OrderPending:
		return "⏳"
	case models.OrderApproved:
		return "✅"
	case models.OrderDelivered:
		return "📦"
	case models.OrderRejected:
		return "❌"
	}
	return "•"
}

func productName(p models.MarketProduct) string {
	if p.Name == "" {
		return fmt.Sprintf("Ürün #%d", p.ID)
	}
	return p.Name
}
