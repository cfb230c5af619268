package orchestrator

import (
	"errors"
	"testing"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from    State
		trigger Trigger
		want    State
		ok      bool
	}{
		{StateAIActive, TriggerEscalated, StateHumanActive, true},
		{StateAIActive, TriggerHelpRequested, StateAIActive, false},
		{StateAIActive, TriggerAssistDone, StateAIActive, false},
		{StateAIActive, TriggerHumanLeft, StateAIActive, false},
		{StateHumanActive, TriggerHelpRequested, StateHumanAssisting, true},
		{StateHumanActive, TriggerHumanLeft, StateAIActive, true},
		{StateHumanActive, TriggerEscalated, StateHumanActive, false},
		{StateHumanActive, TriggerAssistDone, StateHumanActive, false},
		{StateHumanAssisting, TriggerHelpRequested, StateHumanAssisting, true},
		{StateHumanAssisting, TriggerAssistDone, StateHumanActive, true},
		{StateHumanAssisting, TriggerHumanLeft, StateAIActive, true},
		{StateHumanAssisting, TriggerEscalated, StateHumanAssisting, false},
	}
	for _, tc := range cases {
		got, err := Transition(tc.from, tc.trigger)
		if got != tc.want {
			t.Fatalf("%s on %s: expected %s, got %s", tc.from, tc.trigger, tc.want, got)
		}
		if tc.ok && err != nil {
			t.Fatalf("%s on %s: unexpected error %v", tc.from, tc.trigger, err)
		}
		if !tc.ok {
			var ite *InvalidTransitionError
			if !errors.As(err, &ite) {
				t.Fatalf("%s on %s: expected InvalidTransitionError, got %v", tc.from, tc.trigger, err)
			}
		}
	}
}

func TestStateString(t *testing.T) {
	if StateHumanAssisting.String() != "HUMAN_ACTIVE_AI_ASSISTING" {
		t.Fatalf("unexpected name %s", StateHumanAssisting)
	}
	if State(42).String() != "UNKNOWN" {
		t.Fatalf("expected UNKNOWN for out of range state")
	}
}
