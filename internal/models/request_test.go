package models

import (
	"testing"
	"time"
)

func TestCanTransitionToTable(t *testing.T) {
	cases := []struct {
		from    RequestStatus
		to      RequestStatus
		allowed bool
	}{
		{RequestStatusPending, RequestStatusApproved, true},
		{RequestStatusPending, RequestStatusDenied, true},
		{RequestStatusPending, RequestStatusCancelled, true},
		{RequestStatusPending, RequestStatusExpired, true},
		{RequestStatusApproved, RequestStatusProvisioning, true},
		{RequestStatusProvisioning, RequestStatusCompleted, true},
		{RequestStatusProvisioning, RequestStatusProvisioningFailed, true},

		// Completed/failed/denied/cancelled/expired are terminal.
		{RequestStatusCompleted, RequestStatusPending, false},
		{RequestStatusProvisioningFailed, RequestStatusProvisioning, false},
		{RequestStatusDenied, RequestStatusApproved, false},
		{RequestStatusCancelled, RequestStatusPending, false},
		{RequestStatusExpired, RequestStatusApproved, false},

		// Skipping provisioning is illegal.
		{RequestStatusApproved, RequestStatusCompleted, false},
		{RequestStatusPending, RequestStatusCompleted, false},
		{RequestStatusPending, RequestStatusProvisioning, false},
		// Cancellation after approval is illegal.
		{RequestStatusApproved, RequestStatusCancelled, false},
		{RequestStatusProvisioning, RequestStatusCancelled, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestValidateTransitionError(t *testing.T) {
	err := ValidateTransition(RequestStatusDenied, RequestStatusApproved)
	if err == nil {
		t.Fatal("expected invalid transition error")
	}
	appErr, ok := err.(*AppError)
	if !ok || appErr.Code != "INVALID_TRANSITION" {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := ValidateTransition(RequestStatusPending, RequestStatusApproved); err != nil {
		t.Fatalf("expected legal transition, got %v", err)
	}
}

func TestTerminalAndActiveSets(t *testing.T) {
	terminal := []RequestStatus{
		RequestStatusCompleted,
		RequestStatusProvisioningFailed,
		RequestStatusDenied,
		RequestStatusCancelled,
		RequestStatusExpired,
	}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
		if s.IsActive() {
			t.Errorf("%s should not count against the admission cap", s)
		}
	}

	for _, s := range ActiveStatuses() {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
		if !s.IsActive() {
			t.Errorf("%s should count against the admission cap", s)
		}
	}
}

func TestRequestAge(t *testing.T) {
	now := time.Now()
	r := &Request{CreatedAt: now.Add(-25 * time.Hour)}
	if age := r.Age(now); age < 25*time.Hour || age > 25*time.Hour+time.Second {
		t.Fatalf("unexpected age %v", age)
	}
}
