package workflow

import "fmt"

// TransitionTable answers which edges of the workflow are legal
type TransitionTable interface {
	// Lookup returns the transition for (from, role, action) or ErrInvalidTransition
	Lookup(from Status, role Role, action Action) (Transition, error)

	// ActionsFor returns the actions role may perform on a claim in status from
	ActionsFor(from Status, role Role) []Action

	// Edges returns every transition in workflow order
	Edges() []Transition

	// IsEdge reports whether some role and action lead from one status to the other
	IsEdge(from, to Status) bool
}

type transitionTable struct {
	transitions map[transitionKey]Transition
	ordered     []Transition
	edges       map[Status]map[Status]bool
}

// Lookup returns the transition for (from, role, action) or ErrInvalidTransition
func (t *transitionTable) Lookup(from Status, role Role, action Action) (Transition, error) {
	tr, ok := t.transitions[transitionKey{from: from, role: role, action: action}]
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s cannot %s a claim in status %q", ErrInvalidTransition, role, action, from)
	}
	return tr, nil
}

// ActionsFor returns the actions role may perform on a claim in status from
func (t *transitionTable) ActionsFor(from Status, role Role) []Action {
	actions := make([]Action, 0, 2)
	for _, tr := range t.ordered {
		if tr.From == from && tr.Role == role {
			actions = append(actions, tr.Action)
		}
	}
	return actions
}

// Edges returns every transition in workflow order
func (t *transitionTable) Edges() []Transition {
	return append([]Transition(nil), t.ordered...)
}

// IsEdge reports whether some role and action lead from one status to the other
func (t *transitionTable) IsEdge(from, to Status) bool {
	return t.edges[from][to]
}
