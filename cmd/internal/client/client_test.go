package client

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestProfileFromData(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		data      map[string]any
		wantName  string
		wantEmail string
		wantErr   bool
		wantCause error
	}{
		{
			name:      "camel case keys",
			data:      map[string]any{"companyName": " Acme Ltd ", "email": "Ops@Acme.example", "phone": "+1 555"},
			wantName:  "Acme Ltd",
			wantEmail: "Ops@Acme.example",
		},
		{
			name:     "snake case keys",
			data:     map[string]any{"company_name": "Beta LLC"},
			wantName: "Beta LLC",
		},
		{
			name:     "plain name fallback",
			data:     map[string]any{"name": "Gamma"},
			wantName: "Gamma",
		},
		{
			name:      "missing name",
			data:      map[string]any{"email": "x@example.com"},
			wantErr:   true,
			wantCause: ErrNameRequired,
		},
		{
			name:      "non-string name ignored",
			data:      map[string]any{"name": 42},
			wantErr:   true,
			wantCause: ErrNameRequired,
		},
		{
			name:      "invalid email",
			data:      map[string]any{"name": "Delta", "email": "not-an-email"},
			wantErr:   true,
			wantCause: ErrInvalidEmail,
		},
		{
			name:    "empty",
			data:    nil,
			wantErr: true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, err := ProfileFromData(tc.data)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("expected ErrInvalidInput, got %v", err)
				}
				if tc.wantCause != nil && !errors.Is(err, tc.wantCause) {
					t.Fatalf("expected %v, got %v", tc.wantCause, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ProfileFromData: %v", err)
			}
			if p.Name != tc.wantName {
				t.Fatalf("name=%q want=%q", p.Name, tc.wantName)
			}
			gotEmail := ""
			if p.Email != nil {
				gotEmail = *p.Email
			}
			if gotEmail != tc.wantEmail {
				t.Fatalf("email=%q want=%q", gotEmail, tc.wantEmail)
			}
		})
	}
}

func TestMemoryDirectory_CreateThenUpdateByEmail(t *testing.T) {
	t.Parallel()

	d := NewMemoryDirectory()
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	first, err := d.Promote(ctx, PromoteInput{
		SubmissionID: "sub-1",
		Data:         map[string]any{"companyName": "Acme", "email": "ops@acme.example", "phone": "111"},
		PromotedBy:   "alice",
		Now:          now,
	})
	if err != nil {
		t.Fatalf("promote 1: %v", err)
	}
	if !first.Created {
		t.Fatalf("expected first promotion to create")
	}

	second, err := d.Promote(ctx, PromoteInput{
		SubmissionID: "sub-2",
		Data:         map[string]any{"companyName": "Acme Group", "email": "OPS@acme.example", "industry": "retail"},
		PromotedBy:   "bob",
		Now:          now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("promote 2: %v", err)
	}
	if second.Created {
		t.Fatalf("expected second promotion to update")
	}
	if second.Client.ID != first.Client.ID {
		t.Fatalf("expected same client id, got %q and %q", first.Client.ID, second.Client.ID)
	}
	if second.Client.Name != "Acme Group" {
		t.Fatalf("expected updated name, got %q", second.Client.Name)
	}
	if second.Client.Phone == nil || *second.Client.Phone != "111" {
		t.Fatalf("expected phone kept from first promotion")
	}
	if second.Client.Profile["industry"] != "retail" || second.Client.Profile["phone"] != "111" {
		t.Fatalf("expected merged profile, got %v", second.Client.Profile)
	}
	if d.Len() != 1 {
		t.Fatalf("expected one client, got %d", d.Len())
	}

	got, err := d.Get(ctx, first.Client.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.UpdatedAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected updated_at %v", got.UpdatedAt)
	}
}

func TestMemoryDirectory_NoEmailAlwaysCreates(t *testing.T) {
	t.Parallel()

	d := NewMemoryDirectory()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		res, err := d.Promote(ctx, PromoteInput{Data: map[string]any{"name": "Walk-in"}})
		if err != nil {
			t.Fatalf("promote: %v", err)
		}
		if !res.Created {
			t.Fatalf("expected create")
		}
	}
	if d.Len() != 2 {
		t.Fatalf("expected two clients, got %d", d.Len())
	}
	if _, err := d.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
