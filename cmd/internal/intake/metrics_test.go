package intake

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountOutcomes(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	svc, _, _ := newTestService(t, WithMetrics(m))
	ctx := context.Background()
	created := mustCreateLink(t, svc, CreateLinkInput{})

	if _, err := svc.Validate(ctx, created.Token, created.AccessCode, time.Time{}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, err := svc.Validate(ctx, "unknown", created.AccessCode, time.Time{}); err != nil {
		t.Fatalf("validate unknown: %v", err)
	}
	sub := mustSubmit(t, svc, created, clientData())
	if _, err := svc.Submit(ctx, SubmitInput{Token: created.Token, AccessCode: created.AccessCode, Data: clientData()}); err == nil {
		t.Fatalf("expected exhausted second submit")
	}
	if _, err := svc.Review(ctx, ReviewInput{SubmissionID: sub.ID, Action: "approve", ReviewedBy: "alice"}); err != nil {
		t.Fatalf("review: %v", err)
	}

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"validation ok", m.validations.WithLabelValues("ok"), 1},
		{"validation invalid link", m.validations.WithLabelValues("invalid_link"), 1},
		{"submission ok", m.submissions.WithLabelValues("ok"), 1},
		{"submission exhausted", m.submissions.WithLabelValues("link_exhausted"), 1},
		{"review approve ok", m.reviews.WithLabelValues("approve", "ok"), 1},
	}
	for _, tc := range checks {
		if got := testutil.ToFloat64(tc.c); got != tc.want {
			t.Fatalf("%s = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMetrics_NilIsSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.validation(nil)
	m.submission(ErrExpired)
	m.review(ActionApprove, nil)
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	if _, err := NewMetrics(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := NewMetrics(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}
