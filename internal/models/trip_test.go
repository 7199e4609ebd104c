package models

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to TripStatus
		want     bool
	}{
		{TripCreated, TripLookingForDriver, true},
		{TripCreated, TripReadyForContract, true},
		{TripLookingForDriver, TripReadyForContract, true},
		{TripReadyForContract, TripLookingForDriver, false},
		{TripReadyForContract, TripAwaitingContractSignature, true},
		{TripReadyForContract, TripLoading, false},
		{TripReturningVehicle, TripCompleted, true},
		{TripCompleted, TripCancelled, false},
		{TripInTransit, TripCancelled, true},
		{TripInTransit, TripDeleted, false},
		{TripCancelled, TripDeleted, true},
		{TripCancelled, TripCreated, false},
		{TripCreated, TripCreated, false},
		{TripStatus("BOGUS"), TripCreated, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestAssignmentStatusTerminal(t *testing.T) {
	for _, s := range NonTerminalAssignmentStatuses {
		if s.Terminal() {
			t.Errorf("%s should hold a headcount slot", s)
		}
	}
	for _, s := range []AssignmentStatus{AssignmentRejected, AssignmentCompleted, AssignmentCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestMoneyString(t *testing.T) {
	if got := Money(1234567).String(); got != "₹12345.67" {
		t.Errorf("unexpected format %q", got)
	}
	if got := Money(-5).String(); got != "-₹0.05" {
		t.Errorf("unexpected format %q", got)
	}
}
