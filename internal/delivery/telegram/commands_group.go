package telegram

import (
	"context"
	"fmt"
	"strings"

	"KirveHubBot/internal/service"
	"KirveHubBot/pkg/apperrors"
)

func (d *Dispatcher) cmdRegisterGroup(ctx context.Context, req *request) error {
	groupID, err := targetGroup(req, 0)
	if err != nil {
		return err
	}
	title, username := "", ""
	if req.fromGroup {
		title, username = req.chatTitle, req.chatUser
	}

	group, reactivated, err := d.svc.Groups.Register(ctx, req.user.UserID, groupID, title, username)
	if err != nil {
		return err
	}
	name := group.Title
	if name == "" {
		name = fmt.Sprintf("%d", group.GroupID)
	}
	if reactivated {
		d.reply(ctx, req, fmt.Sprintf("♻️ %s grubu yeniden etkinleştirildi.", name))
		return nil
	}
	d.reply(ctx, req, fmt.Sprintf("✅ %s grubu kaydedildi. Bu gruptaki mesajlar artık KP kazandırır.", name))
	return nil
}

func (d *Dispatcher) cmdGroupInfo(ctx context.Context, req *request) error {
	groupID, err := targetGroup(req, 0)
	if err != nil {
		return err
	}
	info, err := d.svc.Groups.Info(ctx, groupID)
	if err != nil {
		return err
	}

	g := info.Group
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Grup bilgisi\n\nAd: %s\nID: %d\n", g.Title, g.GroupID)
	if g.Username != "" {
		fmt.Fprintf(&b, "Kullanıcı adı: @%s\n", g.Username)
	}
	status := "aktif"
	if !g.IsActive {
		status = "pasif"
	}
	fmt.Fprintf(&b, "Durum: %s\nKP çarpanı: x%s\nKayıt: %s\nBugünkü mesaj: %s",
		status, g.PointMultiplier.String(), g.CreatedAt.Format("02.01.2006"), service.FormatCount(info.MessagesToday))
	d.reply(ctx, req, b.String())
	return nil
}

func (d *Dispatcher) cmdUnregisterGroup(ctx context.Context, req *request) error {
	groupID, err := targetGroup(req, 0)
	if err != nil {
		return err
	}
	if err := d.svc.Groups.Unregister(ctx, req.user.UserID, groupID); err != nil {
		return err
	}
	d.reply(ctx, req, fmt.Sprintf("🗑 Grup %d kaydı kaldırıldı.", groupID))
	return nil
}

func (d *Dispatcher) cmdGroupMultiplier(ctx context.Context, req *request) error {
	if err := requireArgs(req, 1); err != nil {
		return err
	}
	multiplier, err := service.ParseAmount(req.args[0])
	if err != nil {
		return apperrors.InvalidInput("invalid multiplier %q", req.args[0])
	}
	groupID, err := targetGroup(req, 1)
	if err != nil {
		return err
	}

	group, err := d.svc.Groups.SetMultiplier(ctx, req.user.UserID, groupID, multiplier)
	if err != nil {
		return err
	}
	d.reply(ctx, req, fmt.Sprintf("✅ Grup %d KP çarpanı x%s olarak ayarlandı.", group.GroupID, group.PointMultiplier.String()))
	return nil
}
