package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

func TestOpportunityUpdateStatus_OnlyLeavesPending(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		from domain.OpportunityStatus
		to   domain.OpportunityStatus
		want error
	}{
		{"pending to approved", domain.OpportunityPending, domain.OpportunityApproved, nil},
		{"pending to rejected", domain.OpportunityPending, domain.OpportunityRejected, nil},
		{"rejected to approved", domain.OpportunityRejected, domain.OpportunityApproved, domain.ErrInvalidTransition},
		{"rejected to failed", domain.OpportunityRejected, domain.OpportunityFailed, domain.ErrInvalidTransition},
		{"approved to expired", domain.OpportunityApproved, domain.OpportunityExpired, domain.ErrInvalidTransition},
		{"expired to approved", domain.OpportunityExpired, domain.OpportunityApproved, domain.ErrInvalidTransition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewOpportunityStore()
			if err := s.Create(ctx, domain.Opportunity{ID: "o1", AccountID: "a1", Status: tc.from}); err != nil {
				t.Fatalf("Create: %v", err)
			}

			err := s.UpdateStatus(ctx, "a1", "o1", tc.to)
			if !errors.Is(err, tc.want) {
				t.Fatalf("UpdateStatus err=%v want %v", err, tc.want)
			}

			got, _ := s.GetByID(ctx, "a1", "o1")
			wantStatus := tc.to
			if tc.want != nil {
				wantStatus = tc.from
			}
			if got.Status != wantStatus {
				t.Fatalf("status=%s want %s", got.Status, wantStatus)
			}
		})
	}
}

func TestOpportunityUpdateStatus_Missing(t *testing.T) {
	s := NewOpportunityStore()
	if err := s.UpdateStatus(context.Background(), "a1", "nope", domain.OpportunityApproved); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestTransitionPending_LeavesDecidedAlone(t *testing.T) {
	ctx := context.Background()
	s := NewOpportunityStore()
	for id, st := range map[string]domain.OpportunityStatus{
		"p1": domain.OpportunityPending,
		"p2": domain.OpportunityPending,
		"a1": domain.OpportunityApproved,
	} {
		if err := s.Create(ctx, domain.Opportunity{ID: id, AccountID: "acct", Status: st}); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	n, err := s.TransitionPending(ctx, "acct", domain.OpportunityRejected)
	if err != nil || n != 2 {
		t.Fatalf("n=%d err=%v want 2", n, err)
	}
	if got, _ := s.GetByID(ctx, "acct", "a1"); got.Status != domain.OpportunityApproved {
		t.Fatalf("approved row became %s", got.Status)
	}
	if err := s.UpdateStatus(ctx, "acct", "p1", domain.OpportunityApproved); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("approve swept row err=%v want ErrInvalidTransition", err)
	}
}
