package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"KirveHubBot/internal/models"
	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"
)

const lotteryCreator int64 = 900

func newTestLottery(t *testing.T, f *fixture, cost string, winners int) (*LotteryService, *models.Event) {
	t.Helper()
	f.seedGroup(t, testGroupID)
	svc := NewLotteryService(f.deps, f.ledger, NewSampler(42))
	event, err := svc.CreateLottery(f.ctx, lotteryCreator, LotteryDraft{
		GroupID:     testGroupID,
		EntryCost:   amount(cost),
		MaxWinners:  winners,
		Description: "Haftalık çekiliş",
	})
	if err != nil {
		t.Fatalf("CreateLottery failed: %v", err)
	}
	return svc, event
}

func (f *fixture) participant(t *testing.T, eventID uint, userID int64) *models.EventParticipant {
	t.Helper()
	var p *models.EventParticipant
	err := f.store.ReadTx(f.ctx, "participant", func(tx repository.Tx) error {
		var err error
		p, err = tx.GetParticipant(eventID, userID)
		return err
	})
	if err != nil {
		t.Fatalf("get participant: %v", err)
	}
	return p
}

func (f *fixture) event(t *testing.T, eventID uint) *models.Event {
	t.Helper()
	var e *models.Event
	err := f.store.ReadTx(f.ctx, "event", func(tx repository.Tx) error {
		var err error
		e, err = tx.GetEvent(eventID)
		return err
	})
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	return e
}

func TestLottery_CreatePostsAnnouncement(t *testing.T) {
	f := newFixture(t)
	_, event := newTestLottery(t, f, "10.00", 2)

	msgs := f.platform.to(testGroupID)
	if len(msgs) != 1 {
		t.Fatalf("Expected one announcement, got %d", len(msgs))
	}
	if len(msgs[0].Buttons) == 0 || !strings.HasPrefix(msgs[0].Buttons[0][0].Data, CallbackJoin) {
		t.Errorf("Expected join button, got %+v", msgs[0].Buttons)
	}
	if stored := f.event(t, event.ID); stored.MessageID == 0 {
		t.Error("Expected announcement message id to be stored")
	}
}

func TestLottery_SettlementSplitsPool(t *testing.T) {
	f := newFixture(t)
	svc, event := newTestLottery(t, f, "10.00", 2)
	for _, id := range []int64{1, 2, 3} {
		f.seedUser(t, id, "10.00", true)
		if _, err := svc.Join(f.ctx, event.ID, id); err != nil {
			t.Fatalf("Join %d failed: %v", id, err)
		}
		f.clock.Advance(time.Second)
	}

	settlement, err := svc.End(f.ctx, event.ID, lotteryCreator)
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if !settlement.Pool.Equal(amount("30")) || settlement.Participants != 3 {
		t.Errorf("Expected pool 30 from 3 participants, got %s / %d", settlement.Pool, settlement.Participants)
	}
	if len(settlement.Winners) != 2 || settlement.Winners[0].UserID == settlement.Winners[1].UserID {
		t.Fatalf("Expected two distinct winners, got %+v", settlement.Winners)
	}

	winners := map[int64]bool{}
	for _, w := range settlement.Winners {
		winners[w.UserID] = true
		if !w.Share.Equal(amount("15")) {
			t.Errorf("Expected share 15.00, got %s", w.Share)
		}
	}
	for _, id := range []int64{1, 2, 3} {
		if winners[id] {
			f.expectBalance(t, id, "15.00")
		} else {
			f.expectBalance(t, id, "0")
		}
		f.expectLedgerConsistent(t, id, "10.00")
		if p := f.participant(t, event.ID, id); p.Status != models.ParticipantActive {
			t.Errorf("Expected participant %d to stay active, got %s", id, p.Status)
		}
	}

	if status := f.event(t, event.ID).Status; status != models.EventStatusCompleted {
		t.Errorf("Expected completed event, got %s", status)
	}
	if f.platform.countContaining(testGroupID, "sonuçlandı") != 1 {
		t.Error("Expected result posted to the group")
	}
	if f.platform.countContaining(lotteryCreator, "sonuçlandı") != 1 {
		t.Error("Expected result sent to the creator")
	}
	for _, msg := range f.platform.to(testGroupID) {
		if !strings.Contains(msg.Text, "sonuçlandı") {
			continue
		}
		if msg.ParseMode != "HTML" {
			t.Errorf("Expected HTML result message, got parse mode %q", msg.ParseMode)
		}
		for _, w := range settlement.Winners {
			if mention := fmt.Sprintf("tg://user?id=%d", w.UserID); !strings.Contains(msg.Text, mention) {
				t.Errorf("Expected result to mention winner %d, got %q", w.UserID, msg.Text)
			}
		}
	}

	if _, err := svc.End(f.ctx, event.ID, lotteryCreator); !apperrors.Is(err, apperrors.KindConflict) {
		t.Errorf("Expected conflict when settling twice, got %v", err)
	}
}

func TestLottery_CancelRefundsEveryone(t *testing.T) {
	f := newFixture(t)
	svc, event := newTestLottery(t, f, "5.00", 1)
	for _, id := range []int64{10, 11} {
		f.seedUser(t, id, "5.00", true)
		if _, err := svc.Join(f.ctx, event.ID, id); err != nil {
			t.Fatalf("Join %d failed: %v", id, err)
		}
	}

	refunded, err := svc.Cancel(f.ctx, event.ID, lotteryCreator)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if refunded != 2 {
		t.Errorf("Expected 2 refunds, got %d", refunded)
	}
	for _, id := range []int64{10, 11} {
		f.expectBalance(t, id, "5.00")
		f.expectLedgerConsistent(t, id, "5.00")
		p := f.participant(t, event.ID, id)
		if p.Status != models.ParticipantWithdrawn || p.WithdrewAt == nil {
			t.Errorf("Expected participant %d withdrawn, got %s", id, p.Status)
		}
	}
	if status := f.event(t, event.ID).Status; status != models.EventStatusCancelled {
		t.Errorf("Expected cancelled event, got %s", status)
	}
}

func TestLottery_JoinBoundaries(t *testing.T) {
	f := newFixture(t)
	svc, event := newTestLottery(t, f, "10.00", 1)
	f.seedUser(t, 1, "9.99", true)
	f.seedUser(t, 2, "10.00", true)
	f.seedUser(t, 3, "50.00", false)

	_, err := svc.Join(f.ctx, event.ID, 1)
	if !apperrors.Is(err, apperrors.KindInsufficientFunds) {
		t.Errorf("Expected insufficient_funds at cost - 0.01, got %v", err)
	}
	f.expectBalance(t, 1, "9.99")
	if logs := f.logs(t, 1); len(logs) != 0 {
		t.Errorf("Expected no ledger rows after failed join, got %d", len(logs))
	}

	if _, err := svc.Join(f.ctx, event.ID, 2); err != nil {
		t.Errorf("Expected join at exact cost to succeed, got %v", err)
	}
	f.expectBalance(t, 2, "0")

	if _, err := svc.Join(f.ctx, event.ID, 2); !apperrors.Is(err, apperrors.KindConflict) {
		t.Errorf("Expected conflict on duplicate join, got %v", err)
	}
	if _, err := svc.Join(f.ctx, event.ID, 3); !apperrors.Is(err, apperrors.KindNotRegistered) {
		t.Errorf("Expected not_registered, got %v", err)
	}
}

func TestLottery_WithdrawAndRejoin(t *testing.T) {
	f := newFixture(t)
	svc, event := newTestLottery(t, f, "4.00", 1)
	f.seedUser(t, 1, "4.00", true)

	if _, err := svc.Join(f.ctx, event.ID, 1); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	refund, err := svc.Withdraw(f.ctx, event.ID, 1)
	if err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}
	if !refund.Equal(amount("4")) {
		t.Errorf("Expected refund 4.00, got %s", refund)
	}
	f.expectBalance(t, 1, "4.00")

	if _, err := svc.Withdraw(f.ctx, event.ID, 1); !apperrors.IsNotFound(err) {
		t.Errorf("Expected not_found on second withdraw, got %v", err)
	}

	p, err := svc.Join(f.ctx, event.ID, 1)
	if err != nil {
		t.Fatalf("Rejoin failed: %v", err)
	}
	if p.Status != models.ParticipantActive || p.WithdrewAt != nil {
		t.Errorf("Expected reactivated participant, got %+v", p)
	}

	summaries, err := svc.ListActive(f.ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Participants != 1 {
		t.Errorf("Expected one active lottery with one participant, got %+v", summaries)
	}

	f.platform.mu.Lock()
	edits := len(f.platform.edits)
	f.platform.mu.Unlock()
	if edits < 3 {
		t.Errorf("Expected participant counter refreshed on every change, got %d edits", edits)
	}
}

func TestLottery_FreeLotteryWithoutParticipants(t *testing.T) {
	f := newFixture(t)
	svc, event := newTestLottery(t, f, "0", 3)

	settlement, err := svc.End(f.ctx, event.ID, lotteryCreator)
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if len(settlement.Winners) != 0 || !settlement.Pool.IsZero() {
		t.Errorf("Expected empty settlement, got %+v", settlement)
	}
}

func TestLottery_InvalidDraft(t *testing.T) {
	f := newFixture(t)
	f.seedGroup(t, testGroupID)
	svc := NewLotteryService(f.deps, f.ledger, NewSampler(1))

	cases := map[string]LotteryDraft{
		"negative cost": {GroupID: testGroupID, EntryCost: amount("-1"), MaxWinners: 1},
		"no winners":    {GroupID: testGroupID, EntryCost: amount("1"), MaxWinners: 0},
	}
	for name, draft := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.CreateLottery(f.ctx, 1, draft); !apperrors.Is(err, apperrors.KindInvalidInput) {
				t.Errorf("Expected invalid_input, got %v", err)
			}
		})
	}

	_, err := svc.CreateLottery(f.ctx, 1, LotteryDraft{GroupID: -1, EntryCost: amount("1"), MaxWinners: 1})
	if !apperrors.IsNotFound(err) {
		t.Errorf("Expected not_found for unknown group, got %v", err)
	}
}

func TestLottery_ResultTextMentions(t *testing.T) {
	settlement := &Settlement{
		Event:        &models.Event{ID: 12},
		Participants: 3,
		Pool:         amount("9.00"),
		Winners: []Winner{
			{UserID: 5, Name: "@ayse", Share: amount("4.50")},
			{UserID: 6, Name: "<Ali & Veli>", Share: amount("4.50")},
			{UserID: 7, Share: amount("0")},
		},
	}

	text := ResultText(settlement)
	for _, want := range []string{
		`<a href="tg://user?id=5">@ayse</a>: 4,50 KP`,
		`<a href="tg://user?id=6">&lt;Ali &amp; Veli&gt;</a>`,
		`<a href="tg://user?id=7">7</a>`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in result, got %q", want, text)
		}
	}
}
