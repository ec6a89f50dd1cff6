package workflows

import "fmt"

// TransitionError reports a move the transition table does not allow
type TransitionError[S comparable] struct {
	From S
	To   S
}

func (e *TransitionError[S]) Error() string {
	return fmt.Sprintf("transition %v -> %v is not allowed", e.From, e.To)
}

// StateMachine enforces transitions between states and records the path taken
type StateMachine[S comparable] struct {
	allowedTransitions map[S][]S
	current            S
	history            []S
}

// NewStateMachine creates a state machine positioned at initial
func NewStateMachine[S comparable](initial S, transitions map[S][]S) *StateMachine[S] {
	return &StateMachine[S]{
		allowedTransitions: transitions,
		current:            initial,
		history:            []S{initial},
	}
}

// CanTransition checks if a transition is allowed
func (sm *StateMachine[S]) CanTransition(from, to S) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// GetAllowedTransitions returns the allowed next states for a given state
func (sm *StateMachine[S]) GetAllowedTransitions(from S) []S {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []S{}
	}
	return allowed
}

// Current returns the state the machine is in
func (sm *StateMachine[S]) Current() S {
	return sm.current
}

// Transition moves to the next state, or fails leaving the state unchanged
func (sm *StateMachine[S]) Transition(to S) error {
	if !sm.CanTransition(sm.current, to) {
		return &TransitionError[S]{From: sm.current, To: to}
	}
	sm.current = to
	sm.history = append(sm.history, to)
	return nil
}

// History returns every state visited, starting with the initial one
func (sm *StateMachine[S]) History() []S {
	return append([]S(nil), sm.history...)
}

// Terminal reports whether the current state has no outgoing transitions
func (sm *StateMachine[S]) Terminal() bool {
	return len(sm.allowedTransitions[sm.current]) == 0
}

// ReportStatus is the lifecycle of a generated disclosure report
type ReportStatus string

const (
	ReportPending   ReportStatus = "PENDING"
	ReportBuilding  ReportStatus = "BUILDING"
	ReportBuilt     ReportStatus = "BUILT"
	ReportPublished ReportStatus = "PUBLISHED"
	ReportFailed    ReportStatus = "FAILED"
)

// NewReportLifecycle creates the state machine tracking one report generation
func NewReportLifecycle() *StateMachine[ReportStatus] {
	return NewStateMachine(ReportPending, map[ReportStatus][]ReportStatus{
		ReportPending:   {ReportBuilding, ReportFailed},
		ReportBuilding:  {ReportBuilt, ReportFailed},
		ReportBuilt:     {ReportPublished, ReportFailed},
		ReportPublished: {},
		ReportFailed:    {},
	})
}
