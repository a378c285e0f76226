package intake

import (
	"context"
	"testing"
)

func TestMemoryAuditLog(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := NewMemoryAuditLog()
	a, b := "link-a", "link-b"

	for _, e := range []AuditEvent{
		{Action: AuditLinkCreated, LinkID: &a},
		{Action: AuditLinkCreated, LinkID: &b},
		{Action: AuditSubmissionCreated, LinkID: &a},
	} {
		if err := log.Record(ctx, e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := log.Record(ctx, AuditEvent{Action: "  "}); err == nil {
		t.Fatalf("expected error for blank action")
	}

	got, err := log.List(ctx, AuditFilter{LinkID: a})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Action != AuditSubmissionCreated || got[1].Action != AuditLinkCreated {
		t.Fatalf("unexpected events: %+v", got)
	}
	if got[0].CreatedAt.IsZero() {
		t.Fatalf("CreatedAt should default to now")
	}

	got, err = log.List(ctx, AuditFilter{Limit: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Action != AuditSubmissionCreated {
		t.Fatalf("limit: %+v", got)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := log.Record(cctx, AuditEvent{Action: AuditLinkDeleted}); err == nil {
		t.Fatalf("expected context error")
	}
}
