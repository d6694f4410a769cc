package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"KirveHubBot/internal/service"
	"KirveHubBot/pkg/apperrors"
)

func (d *Dispatcher) cmdCreateLottery(ctx context.Context, req *request) error {
	data := map[string]string{}
	switch {
	case req.fromGroup:
		data[fieldGroup] = strconv.FormatInt(req.chatID, 10)
	case len(req.args) > 0:
		groupID, err := parseUserID(req.args[0])
		if err != nil {
			return err
		}
		data[fieldGroup] = strconv.FormatInt(groupID, 10)
	default:
		groups, err := d.svc.Groups.ListActive(ctx)
		if err != nil {
			return err
		}
		if len(groups) == 0 {
			return apperrors.InvalidInput("no active groups, register one with /kirvegrup")
		}
		if len(groups) == 1 {
			data[fieldGroup] = strconv.FormatInt(groups[0].GroupID, 10)
		}
	}
	return d.startDialog(ctx, req, dialogLottery, data)
}

func (d *Dispatcher) finishLottery(ctx context.Context, req *request, data map[string]string) error {
	groupID, err := parseUserID(data[fieldGroup])
	if err != nil {
		return err
	}
	cost, err := parseCost(data[fieldCost])
	if err != nil {
		return err
	}
	winners, err := strconv.Atoi(data[fieldWinners])
	if err != nil {
		return apperrors.InvalidInput("invalid winner count %q", data[fieldWinners])
	}

	description := data[fieldDescription]
	title, body, _ := strings.Cut(description, "\n")
	event, err := d.svc.Lottery.CreateLottery(ctx, req.user.UserID, service.LotteryDraft{
		GroupID:     groupID,
		EntryCost:   cost,
		MaxWinners:  winners,
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(body),
	})
	if err != nil {
		return err
	}

	text := fmt.Sprintf("✅ Çekiliş #%d oluşturuldu ve gruba duyuruldu.\nBitirmek için: /cekilisbitir %d\nİptal için: /etkinlikiptal %d", event.ID, event.ID, event.ID)
	if event.MessageID == 0 {
		text += "\n⚠️ Duyuru gruba gönderilemedi, botun grupta yazma izni olduğundan emin ol."
	}
	d.reply(ctx, req, text)
	return nil
}

func (d *Dispatcher) cmdEndLottery(ctx context.Context, req *request) error {
	if err := requireArgs(req, 1); err != nil {
		return err
	}
	eventID, err := parseRecordID(req.args[0])
	if err != nil {
		return err
	}

	settlement, err := d.svc.Lottery.End(ctx, eventID, req.user.UserID)
	if err != nil {
		return err
	}
	// итог уже отправлен создателю; другому модератору дублируем
	if settlement.Event.CreatorID != req.user.UserID {
		d.replyHTML(ctx, req, service.ResultText(settlement), nil)
	}
	return nil
}

func (d *Dispatcher) cmdCancelLottery(ctx context.Context, req *request) error {
	if err := requireArgs(req, 1); err != nil {
		return err
	}
	eventID, err := parseRecordID(req.args[0])
	if err != nil {
		return err
	}

	refunded, err := d.svc.Lottery.Cancel(ctx, eventID, req.user.UserID)
	if err != nil {
		return err
	}
	d.reply(ctx, req, fmt.Sprintf("🚫 Çekiliş #%d iptal edildi. %d katılımcıya iade yapıldı.", eventID, refunded))
	return nil
}

func (d *Dispatcher) cmdStartBonus(ctx context.Context, req *request) error {
	if err := requireArgs(req, 2); err != nil {
		return err
	}
	multiplier, err := service.ParseAmount(req.args[0])
	if err != nil {
		return apperrors.InvalidInput("invalid multiplier %q", req.args[0])
	}
	minutes, err := strconv.Atoi(req.args[1])
	if err != nil {
		return apperrors.InvalidInput("invalid duration %q", req.args[1])
	}
	title := strings.Join(req.args[2:], " ")

	event, err := d.svc.Bonus.StartBonus(ctx, req.user.UserID, multiplier, minutes, title)
	if err != nil {
		return err
	}
	d.reply(ctx, req, fmt.Sprintf("🚀 %s başladı: x%s, %d dakika.",
		event.Title, event.Multiplier.String(), event.DurationMinutes))
	return nil
}

func (d *Dispatcher) cmdEndBonus(ctx context.Context, req *request) error {
	ended, err := d.svc.Bonus.EndBonus(ctx, req.user.UserID)
	if err != nil {
		return err
	}
	d.reply(ctx, req, fmt.Sprintf("⏹ %d bonus etkinliği sonlandırıldı.", ended))
	return nil
}
