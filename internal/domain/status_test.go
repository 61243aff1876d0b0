package domain

import (
	"errors"
	"testing"
)

func TestCanTransitionTable(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusDraft, StatusApproved}:  true,
		{StatusDraft, StatusCancelled}: true,
		{StatusDraft, StatusExpired}:   true,
		{StatusApproved, StatusClosed}: true,
	}
	for _, from := range Statuses {
		for _, to := range Statuses {
			want := allowed[[2]Status{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s)=%v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanTransitionRejectsUnknownStatus(t *testing.T) {
	if CanTransition("PENDING", StatusApproved) {
		t.Fatalf("expected unknown source to be rejected")
	}
	if CanTransition(StatusDraft, "PENDING") {
		t.Fatalf("expected unknown target to be rejected")
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range Statuses {
		terminal := s == StatusCancelled || s == StatusClosed || s == StatusExpired
		if s.Terminal() != terminal {
			t.Fatalf("%s.Terminal()=%v, want %v", s, s.Terminal(), terminal)
		}
		if terminal {
			for _, next := range Statuses {
				if CanTransition(s, next) {
					t.Fatalf("terminal %s must not transition to %s", s, next)
				}
			}
		}
	}
}

func TestValidateTransition(t *testing.T) {
	if err := ValidateTransition(StatusDraft, StatusApproved); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateTransition(StatusApproved, StatusApproved); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if err := ValidateTransition("bogus", StatusApproved); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	got, err := ParseStatus(" approved ")
	if err != nil || got != StatusApproved {
		t.Fatalf("ParseStatus()=%q, %v", got, err)
	}
	if _, err := ParseStatus("signed"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{Validationf("x"), false},
		{ErrConflict, false},
		{ErrNotFound, false},
		{&StateError{PropertyID: "p", Expected: StatusDraft, Current: StatusClosed}, false},
		{ErrStore, true},
		{errors.New("connection reset"), true},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Fatalf("Retryable(%v)=%v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestCurrentStatus(t *testing.T) {
	err := &StateError{PropertyID: "p", Expected: StatusDraft, Current: StatusApproved}
	got, ok := CurrentStatus(err)
	if !ok || got != StatusApproved {
		t.Fatalf("CurrentStatus()=%q, %v", got, ok)
	}
	if _, ok := CurrentStatus(ErrConflict); ok {
		t.Fatalf("expected no status for conflict")
	}
}
