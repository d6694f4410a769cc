package service

import (
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestAuditLog_FlushInBatches(t *testing.T) {
	f := newFixture(t)
	const channel int64 = -100500
	audit := NewAuditLog(zap.NewNop(), f.platform, channel, 2)

	audit.Record(AuditPoints, SeverityInfo, "credit %d", 1)
	audit.Record(AuditMarket, SeverityWarning, "reject %s", "KH-1")
	audit.Record(AuditSecurity, SeverityError, "delete %d", 3)
	if audit.Pending() != 3 {
		t.Fatalf("Expected 3 pending, got %d", audit.Pending())
	}

	if err := audit.Flush(f.ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	msgs := f.platform.to(channel)
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 batches, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Text, "🟢 [points]") || !strings.Contains(msgs[0].Text, "🟡 [market]") {
		t.Errorf("Unexpected first batch %q", msgs[0].Text)
	}
	if !strings.Contains(msgs[1].Text, "🔴 [security]") {
		t.Errorf("Unexpected second batch %q", msgs[1].Text)
	}
	if audit.Pending() != 0 {
		t.Errorf("Expected nothing pending, got %d", audit.Pending())
	}
}

func TestAuditLog_KeepsEntriesOnFailure(t *testing.T) {
	f := newFixture(t)
	const channel int64 = -100500
	f.platform.failChats[channel] = true
	audit := NewAuditLog(zap.NewNop(), f.platform, channel, 10)

	audit.Record(AuditAdmin, SeverityInfo, "broadcast")
	if err := audit.Flush(f.ctx); err == nil {
		t.Error("Expected flush error")
	}
	if audit.Pending() != 1 {
		t.Errorf("Expected entry kept for retry, got %d", audit.Pending())
	}
}

func TestAuditLog_LogOnly(t *testing.T) {
	var nilAudit *AuditLog
	nilAudit.Record(AuditSystem, SeverityInfo, "ignored")

	audit := NewAuditLog(zap.NewNop(), nil, 0, 0)
	audit.Record(AuditSystem, SeverityInfo, "started")
	if audit.Pending() != 0 {
		t.Errorf("Expected no channel buffering, got %d", audit.Pending())
	}
}
