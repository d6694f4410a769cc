package telegram

import (
	"context"
	"fmt"
	"strings"

	"KirveHubBot/internal/service"
	"KirveHubBot/pkg/apperrors"

	"github.com/shopspring/decimal"
)

// defaultSurpriseAmount сумма /surpriz без аргументов
var defaultSurpriseAmount = decimal.NewFromInt(1)

type balanceDirection int

const (
	balanceCredit balanceDirection = iota
	balanceDebit
)

func (d *Dispatcher) cmdCreditByReply(ctx context.Context, req *request) error {
	return d.adjustByReply(ctx, req, balanceCredit)
}

func (d *Dispatcher) cmdDebitByReply(ctx context.Context, req *request) error {
	return d.adjustByReply(ctx, req, balanceDebit)
}

func (d *Dispatcher) cmdCreditByID(ctx context.Context, req *request) error {
	return d.adjustByID(ctx, req, balanceCredit)
}

func (d *Dispatcher) cmdDebitByID(ctx context.Context, req *request) error {
	return d.adjustByID(ctx, req, balanceDebit)
}

func (d *Dispatcher) adjustByReply(ctx context.Context, req *request, dir balanceDirection) error {
	if req.replyTo == nil {
		return apperrors.InvalidInput("reply to the user's message")
	}
	if err := requireArgs(req, 1); err != nil {
		return err
	}
	if _, err := d.svc.Users.Ensure(ctx, req.replyTo.ID, req.replyTo.FirstName, req.replyTo.UserName); err != nil {
		return err
	}
	return d.adjust(ctx, req, dir, req.replyTo.ID, req.args[0], strings.Join(req.args[1:], " "))
}

func (d *Dispatcher) adjustByID(ctx context.Context, req *request, dir balanceDirection) error {
	if err := requireArgs(req, 2); err != nil {
		return err
	}
	userID, err := parseUserID(req.args[0])
	if err != nil {
		return err
	}
	return d.adjust(ctx, req, dir, userID, req.args[1], strings.Join(req.args[2:], " "))
}

func (d *Dispatcher) adjust(ctx context.Context, req *request, dir balanceDirection, userID int64, rawAmount, reason string) error {
	amount, err := service.ParseAmount(rawAmount)
	if err != nil {
		return err
	}

	var movement *service.Movement
	if dir == balanceCredit {
		movement, err = d.svc.Balance.Credit(ctx, req.user.UserID, userID, amount, reason)
	} else {
		movement, err = d.svc.Balance.Debit(ctx, req.user.UserID, userID, amount, reason)
	}
	if err != nil {
		return err
	}

	if dir == balanceCredit {
		d.reply(ctx, req, fmt.Sprintf("✅ %d kullanıcısına %s KP eklendi.\nYeni bakiye: %s KP",
			userID, service.FormatPoints(movement.Amount), service.FormatPoints(movement.NewBalance)))
		return nil
	}

	text := fmt.Sprintf("✅ %d kullanıcısından %s KP düşüldü.\nYeni bakiye: %s KP",
		userID, service.FormatPoints(movement.Amount), service.FormatPoints(movement.NewBalance))
	if movement.Amount.LessThan(amount) {
		text += fmt.Sprintf("\nℹ️ Bakiye yetersiz olduğu için %s yerine %s KP düşüldü.",
			service.FormatPoints(amount), service.FormatPoints(movement.Amount))
	}
	d.reply(ctx, req, text)
	return nil
}

func (d *Dispatcher) cmdSurprise(ctx context.Context, req *request) error {
	amount := defaultSurpriseAmount
	if len(req.args) > 0 {
		var err error
		if amount, err = service.ParseAmount(req.args[0]); err != nil {
			return err
		}
	}
	reason := ""
	if len(req.args) > 1 {
		reason = strings.Join(req.args[1:], " ")
	}

	report, err := d.svc.Balance.Surprise(ctx, req.user.UserID, amount, reason)
	if err != nil {
		return err
	}
	d.reply(ctx, req, fmt.Sprintf("🎁 Sürpriz tamamlandı.\nTutar: %s KP\nAlıcı: %d\nYüklenen: %d\nBildirim: %d",
		service.FormatPoints(report.Amount), report.Recipients, report.Credited, report.Notified))
	return nil
}
