package orchestrator

// State is the session-level ownership state: who answers the user.
type State int32

const (
	StateAIActive State = iota
	StateHumanActive
	StateHumanAssisting
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateAIActive:
		return "AI_ACTIVE"
	case StateHumanActive:
		return "HUMAN_ACTIVE"
	case StateHumanAssisting:
		return "HUMAN_ACTIVE_AI_ASSISTING"
	default:
		return "UNKNOWN"
	}
}

// Trigger is an input that may move the session between states.
type Trigger string

const (
	TriggerEscalated     Trigger = "escalated"
	TriggerHelpRequested Trigger = "help_requested"
	TriggerAssistDone    Trigger = "assist_done"
	TriggerHumanLeft     Trigger = "human_left"
)

var transitions = map[State]map[Trigger]State{
	StateAIActive: {
		TriggerEscalated: StateHumanActive,
	},
	StateHumanActive: {
		TriggerHelpRequested: StateHumanAssisting,
		TriggerHumanLeft:     StateAIActive,
	},
	StateHumanAssisting: {
		TriggerHelpRequested: StateHumanAssisting,
		TriggerAssistDone:    StateHumanActive,
		TriggerHumanLeft:     StateAIActive,
	},
}

// Transition returns the state reached from `from` on `trigger`.
func Transition(from State, trigger Trigger) (State, error) {
	if next, ok := transitions[from][trigger]; ok {
		return next, nil
	}
	return from, &InvalidTransitionError{From: from, Trigger: trigger}
}

// InvalidTransitionError represents a trigger that does not apply to the current state.
type InvalidTransitionError struct {
	From    State
	Trigger Trigger
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " on " + string(e.Trigger)
}
