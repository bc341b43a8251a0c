// Delivery execution and the physical letter satchel. Only the obligation
// at queue position 1 is deliverable, and only when the player is standing
// where the recipient is scheduled to be right now.
package obligation

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/talgya/courier/internal/clock"
	"github.com/talgya/courier/internal/ledger"
	"github.com/talgya/courier/internal/npc"
	"github.com/talgya/courier/internal/tuning"
)

// Satchel is the carried-letters collection, mirroring the queue one
// letter per delivery obligation.
type Satchel struct {
	letters []*Letter
}

// Add creates and carries the letter for a delivery obligation.
func (s *Satchel) Add(d *Delivery) *Letter {
	l := &Letter{
		ID:           uuid.New(),
		ObligationID: d.ID,
		Sender:       d.Sender,
		Recipient:    d.Recipient,
	}
	s.letters = append(s.letters, l)
	return l
}

// RemoveByObligation drops the letter tied to an obligation, if carried.
func (s *Satchel) RemoveByObligation(obligationID uuid.UUID) *Letter {
	for i, l := range s.letters {
		if l.ObligationID == obligationID {
			s.letters = append(s.letters[:i], s.letters[i+1:]...)
			return l
		}
	}
	return nil
}

// Letters returns the carried letters in acquisition order.
func (s *Satchel) Letters() []*Letter {
	out := make([]*Letter, len(s.letters))
	copy(out, s.letters)
	return out
}

// Count returns how many letters the player carries.
func (s *Satchel) Count() int {
	return len(s.letters)
}

// DeliveryManager validates and executes terminal delivery transitions.
type DeliveryManager struct {
	queue   *Queue
	satchel *Satchel
	ledger  *ledger.Ledger
	npcs    *npc.Directory
	cfg     tuning.Config
	log     *EventLog
}

// NewDeliveryManager wires a delivery manager to the engine state.
func NewDeliveryManager(q *Queue, satchel *Satchel, l *ledger.Ledger, npcs *npc.Directory, cfg tuning.Config, log *EventLog) *DeliveryManager {
	return &DeliveryManager{queue: q, satchel: satchel, ledger: l, npcs: npcs, cfg: cfg, log: log}
}

// Validate checks whether the obligation at position 1 can be delivered
// right now: not expired, and the player co-located with the recipient in
// the current time-of-day band.
func (m *DeliveryManager) Validate(playerLoc npc.Location, band clock.Band) *OpError {
	d := m.queue.At(1)
	if d == nil {
		return errPositionEmpty(1)
	}
	if d.Expired() {
		return &OpError{
			Code:   CodeAlreadyExpired,
			Reason: "the deadline has already passed",
		}
	}
	where := m.npcs.LocationAt(d.Recipient, band)
	if where == "" || where != playerLoc {
		name := fmt.Sprintf("npc %d", d.Recipient)
		if n := m.npcs.Lookup(d.Recipient); n != nil {
			name = n.Name
		}
		return &OpError{
			Code:   CodeWrongLocation,
			Reason: fmt.Sprintf("%s is not here", name),
			Hint:   fmt.Sprintf("find %s at %s during the %s", name, where, band),
		}
	}
	return nil
}

// Deliver executes the delivery at position 1: reward the sender
// relationship, drop the letter, remove from the queue, record history.
func (m *DeliveryManager) Deliver(playerLoc npc.Location, band clock.Band, segment uint64) (*Delivery, *OpError) {
	if err := m.Validate(playerLoc, band); err != nil {
		return nil, err
	}

	d, err := m.queue.Remove(1)
	if err != nil {
		panic(fmt.Sprintf("remove after successful validate: %v", err))
	}

	m.ledger.Add(d.Sender, d.Connection, m.cfg.DeliveryRewardTokens)
	m.ledger.HistoryOf(d.Sender).Delivered++
	m.satchel.RemoveByObligation(d.ID)

	m.log.Emit(Event{
		Segment:     segment,
		Description: fmt.Sprintf("letter delivered, %d %s token earned", m.cfg.DeliveryRewardTokens, d.Connection),
		Category:    "delivery",
	})
	return d, nil
}

// TrySkip abandons an obligation without delivery: one token of its
// connection type is forfeited, the obligation is removed, and the skip is
// recorded separately from expiries.
func (m *DeliveryManager) TrySkip(position int, segment uint64) (*Delivery, *OpError) {
	if position < 1 || position > m.queue.Capacity() {
		return nil, errInvalidPosition(position, m.queue.Capacity())
	}
	d := m.queue.At(position)
	if d == nil {
		return nil, errPositionEmpty(position)
	}

	cost := m.cfg.SkipCostTokens
	if m.ledger.Balance(d.Sender, d.Connection) < cost {
		return nil, errInsufficientTokens(d.Connection, cost, m.ledger.Balance(d.Sender, d.Connection))
	}
	if err := m.ledger.Spend(d.Sender, d.Connection, cost); err != nil {
		panic(fmt.Sprintf("skip spend after balance check: %v", err))
	}

	if _, err := m.queue.Remove(position); err != nil {
		panic(fmt.Sprintf("remove after occupancy check: %v", err))
	}
	m.ledger.HistoryOf(d.Sender).Skipped++
	m.satchel.RemoveByObligation(d.ID)

	m.log.Emit(Event{
		Segment:     segment,
		Description: fmt.Sprintf("obligation at position %d abandoned", position),
		Category:    "skip",
	})
	return d, nil
}
