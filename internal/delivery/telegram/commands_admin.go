package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"KirveHubBot/internal/models"
	"KirveHubBot/internal/service"
	"KirveHubBot/pkg/apperrors"
)

// Разделы админ-панели
const (
	callbackAdmin = "adm:"

	adminStats    = "stats"
	adminOrders   = "orders"
	adminEvents   = "events"
	adminStaff    = "staff"
	adminSettings = "settings"
	adminProfiles = "profiles"
	adminCommands = "commands"
)

func adminPanelButtons(rank int) [][]service.Button {
	rows := [][]service.Button{
		{{Text: "📊 İstatistik", Data: callbackAdmin + adminStats}, {Text: "👮 Yetkililer", Data: callbackAdmin + adminStaff}},
		{{Text: "🎉 Çekilişler", Data: callbackAdmin + adminEvents}},
	}
	if service.Allowed(rank, service.CapManageMarket) {
		rows[1] = append(rows[1], service.Button{Text: "📦 Siparişler", Data: callbackAdmin + adminOrders})
	}
	if service.Allowed(rank, service.CapRoot) {
		rows = append(rows, []service.Button{
			{Text: "⚙️ Ayarlar", Data: callbackAdmin + adminSettings},
			{Text: "⏰ Zamanlı", Data: callbackAdmin + adminProfiles},
			{Text: "❗ Komutlar", Data: callbackAdmin + adminCommands},
		})
	}
	return rows
}

func (d *Dispatcher) cmdAdminPanel(ctx context.Context, req *request) error {
	d.replyWithButtons(ctx, req, fmt.Sprintf("🛠 Yönetim paneli\nRütbe: %s", service.RankNames[req.user.RankID]), adminPanelButtons(req.user.RankID))
	return nil
}

func (d *Dispatcher) statsText(ctx context.Context) (string, error) {
	registered, err := d.svc.Users.Stats(ctx)
	if err != nil {
		return "", err
	}
	groups, err := d.svc.Groups.ListActive(ctx)
	if err != nil {
		return "", err
	}
	pending, err := d.svc.Market.ListOrders(ctx, models.OrderPending, 0)
	if err != nil {
		return "", err
	}
	events, err := d.svc.Lottery.ListActive(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("📊 İstatistik\n\n👥 Kayıtlı kullanıcı: %s\n💬 Aktif grup: %d\n🎉 Aktif çekiliş: %d\n📦 Bekleyen sipariş: %d",
		service.FormatCount(registered), len(groups), len(events), len(pending)), nil
}

func (d *Dispatcher) staffText(ctx context.Context) (string, error) {
	staff, err := d.svc.Users.ListStaff(ctx)
	if err != nil {
		return "", err
	}
	if len(staff) == 0 {
		return "👮 Yetkili yok.", nil
	}
	rows := make([][]string, 0, len(staff))
	for _, u := range staff {
		rows = append(rows, []string{service.Truncate(u.DisplayName(), 20), strconv.FormatInt(u.UserID, 10), service.RankNames[u.RankID]})
	}
	return preformatted("👮 Yetkililer", service.Table([]string{"Kullanıcı", "ID", "Rütbe"}, rows)), nil
}

func (d *Dispatcher) cmdAdminList(ctx context.Context, req *request) error {
	text, err := d.staffText(ctx)
	if err != nil {
		return err
	}
	d.replyHTML(ctx, req, text, nil)
	return nil
}

func (d *Dispatcher) cmdBroadcast(ctx context.Context, req *request) error {
	data := map[string]string{}
	if text := strings.TrimSpace(req.rest); text != "" {
		data[fieldText] = text
	}
	return d.startDialog(ctx, req, dialogBroadcast, data)
}

// resolveTarget цель команды: автор сообщения, на которое ответили, либо @username или id в первом аргументе
func (d *Dispatcher) resolveTarget(ctx context.Context, req *request) (int64, []string, error) {
	if req.replyTo != nil {
		if _, err := d.svc.Users.Ensure(ctx, req.replyTo.ID, req.replyTo.FirstName, req.replyTo.UserName); err != nil {
			return 0, nil, err
		}
		return req.replyTo.ID, req.args, nil
	}
	if len(req.args) == 0 {
		return 0, nil, apperrors.InvalidInput("target user is required")
	}
	if strings.HasPrefix(req.args[0], "@") {
		user, err := d.svc.Users.FindByUsername(ctx, req.args[0])
		if err != nil {
			return 0, nil, err
		}
		return user.UserID, req.args[1:], nil
	}
	id, err := parseUserID(req.args[0])
	if err != nil {
		return 0, nil, err
	}
	return id, req.args[1:], nil
}

func (d *Dispatcher) cmdPromote(ctx context.Context, req *request) error {
	targetID, rest, err := d.resolveTarget(ctx, req)
	if err != nil {
		return err
	}
	rank := models.RankAdmin1
	if len(rest) > 0 {
		if rank, err = strconv.Atoi(rest[0]); err != nil {
			return apperrors.InvalidInput("invalid rank %q", rest[0])
		}
	}
	return d.setRank(ctx, req, targetID, rank)
}

func (d *Dispatcher) cmdDemote(ctx context.Context, req *request) error {
	targetID, _, err := d.resolveTarget(ctx, req)
	if err != nil {
		return err
	}
	return d.setRank(ctx, req, targetID, models.RankMember)
}

func (d *Dispatcher) setRank(ctx context.Context, req *request, targetID int64, rank int) error {
	target, err := d.svc.Users.SetRank(ctx, req.user, targetID, rank)
	if err != nil {
		return err
	}
	d.reply(ctx, req, fmt.Sprintf("✅ %s artık %s.", target.DisplayName(), service.RankNames[target.RankID]))
	d.send(ctx, req.logger, service.DM(target.UserID, fmt.Sprintf("🎖 Rütben güncellendi: %s", service.RankNames[target.RankID])))
	return nil
}

func (d *Dispatcher) profilesView(ctx context.Context) (string, [][]service.Button, error) {
	profiles, err := d.svc.Scheduler.ListProfiles(ctx)
	if err != nil {
		return "", nil, err
	}
	if len(profiles) == 0 {
		return "⏰ Zamanlı mesaj profili yok. Eklemek için /zamanliekle", nil, nil
	}

	var (
		b       strings.Builder
		buttons [][]service.Button
	)
	b.WriteString("⏰ Zamanlı mesajlar\n")
	for _, p := range profiles {
		state, toggle := "▶️", "⏸ Durdur"
		if !p.IsActive {
			state, toggle = "⏸", "▶️ Başlat"
		}
		fmt.Fprintf(&b, "\n%s #%d %s\nGrup: %d · her %d sn", state, p.ID, p.Name, p.GroupID, p.IntervalSeconds)
		buttons = append(buttons, []service.Button{
			{Text: fmt.Sprintf("%s #%d", toggle, p.ID), Data: fmt.Sprintf("%s%d", service.CallbackProfileToggle, p.ID)},
			{Text: fmt.Sprintf("🗑 Sil #%d", p.ID), Data: fmt.Sprintf("%s%d", service.CallbackProfileDelete, p.ID)},
		})
	}
	return b.String(), buttons, nil
}

func (d *Dispatcher) cmdProfiles(ctx context.Context, req *request) error {
	text, buttons, err := d.profilesView(ctx)
	if err != nil {
		return err
	}
	d.replyWithButtons(ctx, req, text, buttons)
	return nil
}

func (d *Dispatcher) cmdAddProfile(ctx context.Context, req *request) error {
	if err := requireArgs(req, 3); err != nil {
		return err
	}
	groupID, err := parseUserID(req.args[0])
	if err != nil {
		return err
	}
	interval, err := strconv.Atoi(req.args[1])
	if err != nil {
		return apperrors.InvalidInput("invalid interval %q", req.args[1])
	}

	in := service.ProfileInput{GroupID: groupID, IntervalSeconds: interval}
	var words []string
	for _, word := range req.args[2:] {
		switch {
		case strings.HasPrefix(word, "link="):
			in.Link = strings.TrimPrefix(word, "link=")
		case strings.HasPrefix(word, "foto="):
			in.ImageURL = strings.TrimPrefix(word, "foto=")
		default:
			words = append(words, word)
		}
	}
	in.MessageText = strings.Join(words, " ")
	in.Name = service.Truncate(in.MessageText, 32)

	profile, err := d.svc.Scheduler.CreateProfile(ctx, req.user.UserID, in)
	if err != nil {
		return err
	}
	d.reply(ctx, req, fmt.Sprintf("✅ Zamanlı mesaj #%d eklendi: grup %d, her %d saniyede bir.", profile.ID, profile.GroupID, profile.IntervalSeconds))
	return nil
}

func (d *Dispatcher) cmdCreateCustomCommand(ctx context.Context, req *request) error {
	name, body := strings.TrimSpace(req.rest), ""
	if i := strings.IndexAny(name, " \t\n"); i >= 0 {
		name, body = name[:i], name[i+1:]
	}
	parts := strings.Split(body, "|")
	reply := strings.TrimSpace(parts[0])
	buttonText, buttonURL := "", ""
	if len(parts) == 3 {
		buttonText, buttonURL = strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2])
	} else if len(parts) != 1 {
		return apperrors.InvalidInput("button needs both text and link")
	}

	cmd, err := d.svc.Commands.Create(ctx, req.user.UserID, name, reply, buttonText, buttonURL)
	if err != nil {
		return err
	}
	d.reply(ctx, req, fmt.Sprintf("✅ %s komutu oluşturuldu (#%d).", cmd.CommandName, cmd.ID))
	return nil
}

func (d *Dispatcher) customCommandsText(ctx context.Context) (string, error) {
	cmds, err := d.svc.Commands.List(ctx)
	if err != nil {
		return "", err
	}
	if len(cmds) == 0 {
		return "❗ Özel komut yok. Oluşturmak için /komutolustur", nil
	}
	rows := make([][]string, 0, len(cmds))
	for _, c := range cmds {
		rows = append(rows, []string{fmt.Sprintf("#%d", c.ID), c.CommandName, service.Truncate(c.ReplyText, 30)})
	}
	return preformatted("❗ Özel komutlar", service.Table([]string{"ID", "Komut", "Yanıt"}, rows)), nil
}

func (d *Dispatcher) cmdListCustomCommands(ctx context.Context, req *request) error {
	text, err := d.customCommandsText(ctx)
	if err != nil {
		return err
	}
	d.replyHTML(ctx, req, text, nil)
	return nil
}

func (d *Dispatcher) cmdDeleteCustomCommand(ctx context.Context, req *request) error {
	if err := requireArgs(req, 1); err != nil {
		return err
	}
	id, err := parseRecordID(req.args[0])
	if err != nil {
		return err
	}
	if err := d.svc.Commands.Delete(ctx, req.user.UserID, id); err != nil {
		return err
	}
	d.reply(ctx, req, fmt.Sprintf("🗑 Komut #%d silindi.", id))
	return nil
}

func (d *Dispatcher) settingsText(ctx context.Context) (string, error) {
	settings, err := d.svc.Settings.Get(ctx)
	if err != nil {
		return "", err
	}
	keys := service.SettingKeys()
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{key, service.SettingValue(settings, key)})
	}
	return preformatted("⚙️ Sistem ayarları", service.Table([]string{"Anahtar", "Değer"}, rows)) +
		"\n\nDeğiştirmek için: /ayarlar &lt;anahtar&gt; &lt;değer&gt;", nil
}

func (d *Dispatcher) cmdSettings(ctx context.Context, req *request) error {
	if len(req.args) == 0 {
		text, err := d.settingsText(ctx)
		if err != nil {
			return err
		}
		d.replyHTML(ctx, req, text, nil)
		return nil
	}
	if err := requireArgs(req, 2); err != nil {
		return err
	}

	key := strings.ToLower(req.args[0])
	settings, err := d.svc.Settings.Update(ctx, req.user.UserID, key, req.args[1])
	if err != nil {
		return err
	}
	d.reply(ctx, req, fmt.Sprintf("✅ %s = %s", key, service.SettingValue(settings, key)))
	return nil
}

func (d *Dispatcher) cmdDeleteAccount(ctx context.Context, req *request) error {
	if err := requireArgs(req, 1); err != nil {
		return err
	}
	targetID, err := parseUserID(req.args[0])
	if err != nil {
		return err
	}
	if err := d.svc.Users.DeleteAccount(ctx, req.user.UserID, targetID); err != nil {
		return err
	}
	d.reply(ctx, req, fmt.Sprintf("🗑 %d hesabı ve tüm kayıtları silindi.", targetID))
	return nil
}
