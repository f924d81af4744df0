// Package transcript folds streaming transcription fragments into chat turns.
//
// User transcription arrives as a cumulative hypothesis, so each fragment
// replaces the open turn's text. Model transcription arrives as increments,
// so each fragment is appended. A turn-complete signal finalizes the open
// turn of both roles.
//
// A Reconciler is not safe for concurrent use; it is owned by the session's
// event loop.
package transcript

import (
	"github.com/google/uuid"

	"github.com/satriahrh/studylive/domain/entities"
)

// EventKind describes a change to a turn
type EventKind string

const (
	TurnStarted   EventKind = "started"
	TurnUpdated   EventKind = "updated"
	TurnFinalized EventKind = "finalized"
)

// Event reports one change to one turn
type Event struct {
	Kind     EventKind
	Turn     entities.TranscriptTurn
	Fragment string
}

// IDGenerator allocates turn ids
type IDGenerator func() string

type openTurn struct {
	id   string
	text string
}

// Reconciler holds at most one open turn per role
type Reconciler struct {
	newID IDGenerator
	open  map[entities.Role]*openTurn
}

// NewReconciler creates a reconciler with uuid turn ids
func NewReconciler() *Reconciler {
	return NewReconcilerWithIDs(uuid.NewString)
}

// NewReconcilerWithIDs creates a reconciler with a custom id generator
func NewReconcilerWithIDs(newID IDGenerator) *Reconciler {
	return &Reconciler{
		newID: newID,
		open:  make(map[entities.Role]*openTurn, 2),
	}
}

// Apply folds one fragment into the open turn for role, starting a new turn
// if none is open. It returns false if the fragment produced no change.
func (r *Reconciler) Apply(role entities.Role, text string) (Event, bool) {
	if text == "" {
		return Event{}, false
	}

	turn, ok := r.open[role]
	if !ok {
		turn = &openTurn{id: r.newID(), text: text}
		r.open[role] = turn
		return r.event(TurnStarted, role, turn, text), true
	}

	if role == entities.RoleUser {
		turn.text = text
	} else {
		turn.text += text
	}
	return r.event(TurnUpdated, role, turn, text), true
}

// Complete finalizes every open turn, user first, and clears both roles
func (r *Reconciler) Complete() []Event {
	var events []Event
	for _, role := range []entities.Role{entities.RoleUser, entities.RoleModel} {
		if turn, ok := r.open[role]; ok {
			events = append(events, r.event(TurnFinalized, role, turn, ""))
		}
	}
	r.open = make(map[entities.Role]*openTurn, 2)
	return events
}

// Open returns the currently open turn for role
func (r *Reconciler) Open(role entities.Role) (entities.TranscriptTurn, bool) {
	turn, ok := r.open[role]
	if !ok {
		return entities.TranscriptTurn{}, false
	}
	return entities.TranscriptTurn{ID: turn.id, Role: role, Text: turn.text}, true
}

func (r *Reconciler) event(kind EventKind, role entities.Role, turn *openTurn, fragment string) Event {
	return Event{
		Kind: kind,
		Turn: entities.TranscriptTurn{
			ID:        turn.id,
			Role:      role,
			Text:      turn.text,
			Completed: kind == TurnFinalized,
		},
		Fragment: fragment,
	}
}
