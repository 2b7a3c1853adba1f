package workflow

import (
	"fmt"
	"sort"
)

// Effect is a side effect applied to the claim when a transition commits
type Effect uint8

const (
	// EffectStampApproval sets ApprovedDate and ApprovedBy
	EffectStampApproval Effect = 1 << iota

	// EffectRejectionNote prefixes the claim notes with the rejection marker
	EffectRejectionNote

	// EffectOwnerOnly restricts the action to the claim's owner
	EffectOwnerOnly

	// EffectStampSubmission sets SubmittedDate
	EffectStampSubmission
)

// Has reports whether e includes flag
func (e Effect) Has(flag Effect) bool {
	return e&flag != 0
}

// Transition is one legal edge of the workflow
type Transition struct {
	From    Status
	Role    Role
	Action  Action
	To      Status
	Effects Effect
}

// TableBuilder builds a transition table
type TableBuilder interface {
	// Configure returns the configuration for transitions leaving status
	Configure(status Status) StatusConfiguration

	// Build creates an immutable transition table
	Build() TransitionTable
}

// StatusConfiguration configures transitions for a specific status
type StatusConfiguration interface {
	// Permit allows role to perform action, moving the claim to next
	Permit(role Role, action Action, next Status) StatusConfiguration

	// PermitWith is Permit with side effects attached
	PermitWith(role Role, action Action, next Status, effects Effect) StatusConfiguration
}

type transitionKey struct {
	from   Status
	role   Role
	action Action
}

type statusConfig struct {
	builder *tableBuilder
	from    Status
}

type tableBuilder struct {
	transitions map[transitionKey]Transition
	order       []transitionKey
}

// NewTableBuilder creates a new transition table builder
func NewTableBuilder() TableBuilder {
	return &tableBuilder{
		transitions: make(map[transitionKey]Transition),
	}
}

// Configure returns the configuration for transitions leaving status
func (b *tableBuilder) Configure(status Status) StatusConfiguration {
	if !status.IsValid() {
		panic(fmt.Sprintf("invalid status: %s", status))
	}
	return &statusConfig{builder: b, from: status}
}

// Build creates an immutable transition table
func (b *tableBuilder) Build() TransitionTable {
	t := &transitionTable{
		transitions: make(map[transitionKey]Transition, len(b.transitions)),
		edges:       make(map[Status]map[Status]bool),
	}

	for _, key := range b.order {
		tr := b.transitions[key]
		t.transitions[key] = tr
		t.ordered = append(t.ordered, tr)

		if t.edges[tr.From] == nil {
			t.edges[tr.From] = make(map[Status]bool)
		}
		t.edges[tr.From][tr.To] = true
	}

	sort.SliceStable(t.ordered, func(i, j int) bool {
		return statusIndex(t.ordered[i].From) < statusIndex(t.ordered[j].From)
	})

	return t
}

// Permit allows role to perform action, moving the claim to next
func (c *statusConfig) Permit(role Role, action Action, next Status) StatusConfiguration {
	return c.PermitWith(role, action, next, 0)
}

// PermitWith is Permit with side effects attached
func (c *statusConfig) PermitWith(role Role, action Action, next Status, effects Effect) StatusConfiguration {
	if !role.IsValid() {
		panic(fmt.Sprintf("invalid role: %s", role))
	}
	if !action.IsValid() {
		panic(fmt.Sprintf("invalid action: %s", action))
	}
	if !next.IsValid() {
		panic(fmt.Sprintf("invalid target status: %s", next))
	}

	key := transitionKey{from: c.from, role: role, action: action}
	if _, exists := c.builder.transitions[key]; exists {
		panic(fmt.Sprintf("duplicate transition: %s/%s/%s", c.from, role, action))
	}

	c.builder.transitions[key] = Transition{
		From:    c.from,
		Role:    role,
		Action:  action,
		To:      next,
		Effects: effects,
	}
	c.builder.order = append(c.builder.order, key)

	return c
}

func statusIndex(s Status) int {
	for i, st := range allStatuses {
		if st == s {
			return i
		}
	}
	return len(allStatuses)
}
