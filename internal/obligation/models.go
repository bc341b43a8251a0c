// Package obligation implements the obligation queue engine: a
// fixed-capacity, position-ordered collection of delivery commitments plus
// an unordered set of meeting commitments, where queue position is computed
// from the relationship-token economy and reordering burns tokens from the
// displaced parties. All countdowns are in segments (see internal/clock).
package obligation

import (
	"github.com/google/uuid"

	"github.com/talgya/courier/internal/npc"
)

// Stakes is the emotional-weight classification of a commitment. Critical
// stakes are one of the automatic-displacement triggers.
type Stakes uint8

const (
	StakesCasual Stakes = iota
	StakesPersonal
	StakesCritical
)

var stakesNames = [...]string{"casual", "personal", "critical"}

// String returns the stakes' display name.
func (s Stakes) String() string {
	if int(s) >= len(stakesNames) {
		return "unknown"
	}
	return stakesNames[s]
}

// Multiplier scales position-dependent token costs by how much the sender
// cares about the commitment.
func (s Stakes) Multiplier() int {
	switch s {
	case StakesPersonal:
		return 2
	case StakesCritical:
		return 3
	default:
		return 1
	}
}

// PositionReason records why an obligation landed where it did at
// insertion. Kept on the obligation for analytics only.
type PositionReason string

const (
	ReasonFirstEmpty    PositionReason = "first_empty"
	ReasonLeverage      PositionReason = "leverage"
	ReasonStanding      PositionReason = "standing_obligation"
	ReasonDiplomacyDebt PositionReason = "diplomacy_debt"
	ReasonForced        PositionReason = "forced"
)

// Delivery is an obligation to carry a letter from a sender to a recipient.
// Position is 1-based; 0 means unqueued.
type Delivery struct {
	ID         uuid.UUID      `json:"id"`
	Sender     npc.ID         `json:"sender"`
	Recipient  npc.ID         `json:"recipient"`
	Connection npc.Connection `json:"connection"`
	Stakes     Stakes         `json:"stakes"`

	// Remaining is the deadline countdown in segments.
	Remaining int `json:"remaining"`

	// Position bookkeeping. OriginalPosition and LeverageBoost are stamped
	// once at insertion and kept for analytics.
	Position         int            `json:"position"`
	OriginalPosition int            `json:"original_position"`
	LeverageBoost    int            `json:"leverage_boost"`
	Reason           PositionReason `json:"reason"`

	// FailedNegotiation marks obligations granted after a negotiation the
	// player lost; these force themselves to the front of the queue.
	FailedNegotiation bool `json:"failed_negotiation,omitempty"`
}

// Expired reports whether the countdown has run out.
func (d *Delivery) Expired() bool {
	return d.Remaining <= 0
}

// Meeting is an unordered commitment: the player agreed to meet a
// requester before the deadline. No queue position applies.
type Meeting struct {
	ID        uuid.UUID `json:"id"`
	Requester npc.ID    `json:"requester"`
	Remaining int       `json:"remaining"` // segments
	Stakes    Stakes    `json:"stakes"`
}

// Expired reports whether the countdown has run out.
func (m *Meeting) Expired() bool {
	return m.Remaining <= 0
}

// Letter is the physical representation of a delivery obligation in the
// player's satchel. The satchel mirrors the queue: one letter per queued
// delivery obligation.
type Letter struct {
	ID           uuid.UUID `json:"id"`
	ObligationID uuid.UUID `json:"obligation_id"`
	Sender       npc.ID    `json:"sender"`
	Recipient    npc.ID    `json:"recipient"`
}

// Event is a notable engine occurrence, mirrored to the event log for
// persistence and the API tail.
type Event struct {
	Segment     uint64 `json:"segment"`
	Description string `json:"description"`
	Category    string `json:"category"` // "delivery", "expiry", "displacement", ...
}

// maxEventBacklog bounds the in-memory event tail.
const maxEventBacklog = 1000

// EventLog is a bounded in-memory tail of engine events.
type EventLog struct {
	events []Event
}

// Emit appends an event, trimming the oldest past the backlog bound.
func (l *EventLog) Emit(e Event) {
	l.events = append(l.events, e)
	if len(l.events) > maxEventBacklog {
		l.events = l.events[len(l.events)-maxEventBacklog:]
	}
}

// Recent returns the most recent n events, newest last.
func (l *EventLog) Recent(n int) []Event {
	if n <= 0 || n > len(l.events) {
		n = len(l.events)
	}
	out := make([]Event, n)
	copy(out, l.events[len(l.events)-n:])
	return out
}

// Drain returns all buffered events and clears the log. The driver calls
// this when flushing events to the database.
func (l *EventLog) Drain() []Event {
	out := l.events
	l.events = nil
	return out
}
