package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"KirveHubBot/internal/models"
	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Префиксы callback-данных лотереи
const (
	CallbackJoin  = "evt:join:"
	CallbackLeave = "evt:leave:"
)

// LotteryDraft параметры новой лотереи
type LotteryDraft struct {
	GroupID     int64
	EntryCost   decimal.Decimal
	MaxWinners  int
	Title       string
	Description string
}

// Winner победитель розыгрыша
type Winner struct {
	UserID int64
	Name   string
	Share  decimal.Decimal
}

// Settlement итог розыгрыша
type Settlement struct {
	Event        *models.Event
	Participants int
	Pool         decimal.Decimal
	Winners      []Winner
}

// EventSummary событие со счетчиком участников
type EventSummary struct {
	Event        models.Event
	Participants int64
}

// LotteryService жизненный цикл лотерей
type LotteryService struct {
	store    repository.Store
	ledger   *Ledger
	sampler  *Sampler
	platform Platform
	audit    *AuditLog
	logger   *zap.Logger
	now      func() time.Time
}

// NewLotteryService создает новый экземпляр LotteryService
func NewLotteryService(deps Deps, ledger *Ledger, sampler *Sampler) *LotteryService {
	deps = deps.withDefaults()
	if sampler == nil {
		sampler = NewCryptoSampler()
	}
	return &LotteryService{
		store:    deps.Store,
		ledger:   ledger,
		sampler:  sampler,
		platform: deps.Platform,
		audit:    deps.Audit,
		logger:   deps.Logger,
		now:      deps.Now,
	}
}

// JoinButtons клавиатура объявления с живым счетчиком участников
func JoinButtons(eventID uint, participants int64) [][]Button {
	return [][]Button{
		{{Text: fmt.Sprintf("🎯 Katıl (%d)", participants), Data: fmt.Sprintf("%s%d", CallbackJoin, eventID)}},
		{{Text: "↩️ Ayrıl", Data: fmt.Sprintf("%s%d", CallbackLeave, eventID)}},
	}
}

func announcementText(event *models.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎉 Çekiliş #%d", event.ID)
	if event.Title != "" {
		fmt.Fprintf(&b, ": %s", event.Title)
	}
	b.WriteString("\n\n")
	if event.Description != "" {
		b.WriteString(event.Description)
		b.WriteString("\n\n")
	}
	if event.EntryCost.IsPositive() {
		fmt.Fprintf(&b, "💰 Katılım: %s KP\n", FormatPoints(event.EntryCost))
	} else {
		b.WriteString("💰 Katılım: ücretsiz\n")
	}
	fmt.Fprintf(&b, "🏆 Kazanan sayısı: %d", event.MaxWinners)
	return b.String()
}

// CreateLottery создает активную лотерею и публикует объявление в группе
func (s *LotteryService) CreateLottery(ctx context.Context, actorID int64, draft LotteryDraft) (*models.Event, error) {
	if draft.EntryCost.IsNegative() || !draft.EntryCost.Round(2).Equal(draft.EntryCost) {
		return nil, apperrors.InvalidInput("entry cost must be a non-negative amount with at most two decimals")
	}
	if draft.MaxWinners < 1 {
		return nil, apperrors.InvalidInput("max winners must be at least 1")
	}

	event := &models.Event{
		Type:        models.EventTypeLottery,
		Title:       draft.Title,
		Description: draft.Description,
		EntryCost:   draft.EntryCost,
		MaxWinners:  draft.MaxWinners,
		Status:      models.EventStatusActive,
		CreatorID:   actorID,
		GroupID:     draft.GroupID,
		Multiplier:  decimal.NewFromInt(1),
		CreatedAt:   s.now(),
	}

	err := s.store.InTx(ctx, "lottery_create", func(tx repository.Tx) error {
		group, err := tx.GetGroup(draft.GroupID)
		if err != nil {
			return err
		}
		if !group.IsActive {
			return apperrors.InvalidInput("group %d is not active", draft.GroupID)
		}
		return tx.CreateEvent(event)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(AuditLottery, SeverityInfo, "lottery %d created by %d (cost %s, winners %d)",
		event.ID, actorID, FormatPoints(event.EntryCost), event.MaxWinners)

	messageID, err := s.platform.SendMessage(ctx, OutboundMessage{
		ChatID:  event.GroupID,
		Text:    announcementText(event),
		Buttons: JoinButtons(event.ID, 0),
	})
	if err != nil {
		s.logger.Warn("Failed to post lottery announcement", zap.Uint("event_id", event.ID), zap.Error(err))
		return event, nil
	}

	event.MessageID = messageID
	err = s.store.InTx(ctx, "lottery_set_message", func(tx repository.Tx) error {
		locked, err := tx.LockEvent(event.ID)
		if err != nil {
			return err
		}
		locked.MessageID = messageID
		return tx.SaveEvent(locked)
	})
	if err != nil {
		s.logger.Warn("Failed to store announcement message id", zap.Uint("event_id", event.ID), zap.Error(err))
	}
	return event, nil
}

func lockActiveLottery(tx repository.Tx, eventID uint) (*models.Event, error) {
	event, err := tx.LockEvent(eventID)
	if err != nil {
		return nil, err
	}
	if event.Type != models.EventTypeLottery {
		return nil, apperrors.NotFound("lottery %d", eventID)
	}
	if event.Status != models.EventStatusActive {
		return nil, apperrors.Conflict("lottery %d is %s", eventID, event.Status)
	}
	return event, nil
}

// Join записывает пользователя в лотерею и списывает стоимость участия
func (s *LotteryService) Join(ctx context.Context, eventID uint, userID int64) (*models.EventParticipant, error) {
	var (
		participant *models.EventParticipant
		event       *models.Event
		count       int64
	)

	err := s.store.InTx(ctx, "lottery_join", func(tx repository.Tx) error {
		var err error
		event, err = lockActiveLottery(tx, eventID)
		if err != nil {
			return err
		}

		user, err := tx.GetUser(userID)
		if apperrors.IsNotFound(err) || (err == nil && !user.IsRegistered) {
			return apperrors.NotRegistered("user %d is not registered", userID)
		}
		if err != nil {
			return err
		}

		participant, err = tx.GetParticipant(eventID, userID)
		switch {
		case err == nil && participant.Status == models.ParticipantActive:
			return apperrors.Conflict("already participating in lottery %d", eventID)
		case err == nil:
		case apperrors.IsNotFound(err):
			participant = &models.EventParticipant{EventID: eventID, UserID: userID}
		default:
			return err
		}

		if event.EntryCost.IsPositive() {
			if _, err := s.ledger.Debit(tx, Entry{
				UserID: userID,
				Amount: event.EntryCost,
				Reason: fmt.Sprintf("lottery entry %d", eventID),
			}); err != nil {
				return err
			}
		}

		participant.Status = models.ParticipantActive
		participant.PaymentAmount = event.EntryCost
		participant.JoinedAt = s.now()
		participant.WithdrewAt = nil
		if err := tx.SaveParticipant(participant); err != nil {
			return err
		}

		count, err = tx.CountParticipants(eventID, models.ParticipantActive)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.refreshCounter(ctx, event, count)
	return participant, nil
}

// Withdraw возвращает участнику оплату и снимает его с розыгрыша
func (s *LotteryService) Withdraw(ctx context.Context, eventID uint, userID int64) (decimal.Decimal, error) {
	var (
		refund decimal.Decimal
		event  *models.Event
		count  int64
	)

	err := s.store.InTx(ctx, "lottery_withdraw", func(tx repository.Tx) error {
		var err error
		event, err = lockActiveLottery(tx, eventID)
		if err != nil {
			return err
		}

		participant, err := tx.GetParticipant(eventID, userID)
		if apperrors.IsNotFound(err) || (err == nil && participant.Status != models.ParticipantActive) {
			return apperrors.NotFound("no active participation in lottery %d", eventID)
		}
		if err != nil {
			return err
		}

		refund = participant.PaymentAmount
		if refund.IsPositive() {
			if _, err := s.ledger.Credit(tx, Entry{
				UserID: userID,
				Amount: refund,
				Reason: fmt.Sprintf("lottery withdraw %d", eventID),
			}); err != nil {
				return err
			}
		}

		now := s.now()
		participant.Status = models.ParticipantWithdrawn
		participant.WithdrewAt = &now
		if err := tx.SaveParticipant(participant); err != nil {
			return err
		}

		count, err = tx.CountParticipants(eventID, models.ParticipantActive)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}

	s.refreshCounter(ctx, event, count)
	return refund, nil
}

// Cancel отменяет лотерею и возвращает оплату всем активным участникам
func (s *LotteryService) Cancel(ctx context.Context, eventID uint, actorID int64) (int, error) {
	var (
		event    *models.Event
		refunded []models.EventParticipant
	)

	err := s.store.InTx(ctx, "lottery_cancel", func(tx repository.Tx) error {
		var err error
		event, err = lockActiveLottery(tx, eventID)
		if err != nil {
			return err
		}

		refunded, err = tx.ListParticipants(eventID, models.ParticipantActive)
		if err != nil {
			return err
		}

		now := s.now()
		for i := range refunded {
			p := &refunded[i]
			if p.PaymentAmount.IsPositive() {
				if _, err := s.ledger.Credit(tx, Entry{
					UserID:  p.UserID,
					Amount:  p.PaymentAmount,
					Reason:  fmt.Sprintf("lottery cancel refund %d", eventID),
					ActorID: Actor(actorID),
				}); err != nil {
					return err
				}
			}
			p.Status = models.ParticipantWithdrawn
			p.WithdrewAt = &now
			if err := tx.SaveParticipant(p); err != nil {
				return err
			}
		}

		event.Status = models.EventStatusCancelled
		event.CompletedAt = &now
		return tx.SaveEvent(event)
	})
	if err != nil {
		return 0, err
	}

	s.audit.Record(AuditLottery, SeverityWarning, "lottery %d cancelled by %d, %d refunds", eventID, actorID, len(refunded))

	if event.MessageID != 0 {
		text := announcementText(event) + "\n\n❌ Çekiliş iptal edildi, katılım ücretleri iade edildi."
		if err := s.platform.EditMessage(ctx, event.GroupID, event.MessageID, text, nil); err != nil {
			s.logger.Warn("Failed to update cancelled lottery announcement", zap.Uint("event_id", eventID), zap.Error(err))
		}
	}
	for _, p := range refunded {
		if !p.PaymentAmount.IsPositive() {
			continue
		}
		text := fmt.Sprintf("❌ Çekiliş #%d iptal edildi. %s KP bakiyene iade edildi.", eventID, FormatPoints(p.PaymentAmount))
		if _, err := s.platform.SendMessage(ctx, DM(p.UserID, text)); err != nil {
			s.logger.Warn("Failed to notify refund", zap.Int64("user_id", p.UserID), zap.Error(err))
		}
	}

	return len(refunded), nil
}

// End завершает лотерею: выбирает победителей и распределяет пул
func (s *LotteryService) End(ctx context.Context, eventID uint, actorID int64) (*Settlement, error) {
	var settlement *Settlement

	err := s.store.InTx(ctx, "lottery_end", func(tx repository.Tx) error {
		event, err := lockActiveLottery(tx, eventID)
		if err != nil {
			return err
		}

		now := s.now()
		event.Status = models.EventStatusCompleted
		event.CompletedAt = &now
		if err := tx.SaveEvent(event); err != nil {
			return err
		}

		participants, err := tx.ListParticipants(eventID, models.ParticipantActive)
		if err != nil {
			return err
		}

		pool := decimal.Zero
		for _, p := range participants {
			pool = pool.Add(p.PaymentAmount)
		}

		settlement = &Settlement{Event: event, Participants: len(participants), Pool: pool}

		selected := s.sampler.Select(participants, event.MaxWinners)
		shares := SplitPool(pool, len(selected))
		for i, p := range selected {
			winner := Winner{UserID: p.UserID, Share: shares[i]}
			if user, err := tx.GetUser(p.UserID); err == nil {
				winner.Name = user.DisplayName()
			}
			if shares[i].IsPositive() {
				if _, err := s.ledger.Credit(tx, Entry{
					UserID: p.UserID,
					Amount: shares[i],
					Reason: fmt.Sprintf("lottery win %d", eventID),
				}); err != nil {
					return err
				}
			}
			settlement.Winners = append(settlement.Winners, winner)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(AuditLottery, SeverityInfo, "lottery %d settled by %d: %d participants, pool %s, %d winners",
		eventID, actorID, settlement.Participants, FormatPoints(settlement.Pool), len(settlement.Winners))
	s.publishResult(ctx, settlement)
	return settlement, nil
}

// ResultText текст итогов розыгрыша в HTML-разметке с упоминаниями победителей
func ResultText(settlement *Settlement) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🏁 Çekiliş #%d sonuçlandı!\n\n", settlement.Event.ID)
	fmt.Fprintf(&b, "👥 Katılımcı: %d\n💰 Toplam havuz: %s KP\n", settlement.Participants, FormatPoints(settlement.Pool))

	if len(settlement.Winners) == 0 {
		b.WriteString("\nKatılımcı olmadığı için kazanan yok.")
		return b.String()
	}

	b.WriteString("\n🏆 Kazananlar:\n")
	for i, w := range settlement.Winners {
		fmt.Fprintf(&b, "%d. %s: %s KP\n", i+1, Mention(w.UserID, w.Name), FormatPoints(w.Share))
	}
	return b.String()
}

func (s *LotteryService) publishResult(ctx context.Context, settlement *Settlement) {
	text := ResultText(settlement)
	event := settlement.Event

	if _, err := s.platform.SendMessage(ctx, OutboundMessage{ChatID: event.GroupID, Text: text, ReplyTo: event.MessageID, ParseMode: "HTML"}); err != nil {
		s.logger.Warn("Failed to post lottery result to group", zap.Uint("event_id", event.ID), zap.Error(err))
	}
	creatorDM := DM(event.CreatorID, text)
	creatorDM.ParseMode = "HTML"
	if _, err := s.platform.SendMessage(ctx, creatorDM); err != nil {
		s.logger.Warn("Failed to send lottery result to creator", zap.Uint("event_id", event.ID), zap.Error(err))
	}
	if event.MessageID != 0 {
		if err := s.platform.EditMessage(ctx, event.GroupID, event.MessageID, announcementText(event)+"\n\n✅ Çekiliş sona erdi.", nil); err != nil {
			s.logger.Debug("Failed to close lottery announcement", zap.Uint("event_id", event.ID), zap.Error(err))
		}
	}
	for _, w := range settlement.Winners {
		dm := fmt.Sprintf("🏆 Tebrikler! Çekiliş #%d kazandın: %s KP", event.ID, FormatPoints(w.Share))
		if _, err := s.platform.SendMessage(ctx, DM(w.UserID, dm)); err != nil {
			s.logger.Warn("Failed to notify winner", zap.Int64("user_id", w.UserID), zap.Error(err))
		}
	}
}

func (s *LotteryService) refreshCounter(ctx context.Context, event *models.Event, count int64) {
	if event == nil || event.MessageID == 0 {
		return
	}
	if err := s.platform.EditMessage(ctx, event.GroupID, event.MessageID, announcementText(event), JoinButtons(event.ID, count)); err != nil {
		s.logger.Debug("Failed to refresh participant counter", zap.Uint("event_id", event.ID), zap.Error(err))
	}
}

// ListActive активные лотереи со счетчиками участников
func (s *LotteryService) ListActive(ctx context.Context) ([]EventSummary, error) {
	var out []EventSummary
	err := s.store.ReadTx(ctx, "lottery_list_active", func(tx repository.Tx) error {
		out = nil
		events, err := tx.ListEvents(models.EventTypeLottery, models.EventStatusActive)
		if err != nil {
			return err
		}
		for _, event := range events {
			count, err := tx.CountParticipants(event.ID, models.ParticipantActive)
			if err != nil {
				return err
			}
			out = append(out, EventSummary{Event: event, Participants: count})
		}
		return nil
	})
	return out, err
}
