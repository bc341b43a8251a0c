// Displacement: moving an obligation to an earlier queue position by
// cascading everything between the target and the old slot one position
// later. The token cost is charged to the displaced parties, never to the
// moving obligation's sender and never to a player-held resource.
package obligation

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/talgya/courier/internal/ledger"
	"github.com/talgya/courier/internal/tuning"
)

// Shift is one displaced obligation inside a plan.
type Shift struct {
	Obligation *Delivery
	From       int
	To         int
	Cost       int // tokens burned from the displaced sender, in the obligation's own connection type
}

// Plan is a displacement preview: computed before commitment, shown to the
// caller, then handed back for execution.
type Plan struct {
	Moving *Delivery
	From   int
	Target int
	Jump   int // positions the moving obligation advances
	Shifts []Shift
}

// TotalCost sums the token burns across all displaced parties.
func (p *Plan) TotalCost() int {
	total := 0
	for _, s := range p.Shifts {
		total += s.Cost
	}
	return total
}

// OutcomeKind tags the result of a leveraged or forced insertion.
type OutcomeKind uint8

const (
	OutcomePlaced    OutcomeKind = iota // target slot was empty
	OutcomeDisplaced                    // occupants cascaded one slot later
	OutcomeEvicted                      // full queue: the last slot fell off
)

// Outcome reports how an insertion landed.
type Outcome struct {
	Kind        OutcomeKind
	Position    int
	Shifts      []Shift
	Evicted     *Delivery
	EvictedBurn int
}

// Displacer computes and executes queue repositioning against the ledger.
type Displacer struct {
	queue  *Queue
	ledger *ledger.Ledger
	cfg    tuning.Config
	log    *EventLog
}

// NewDisplacer wires a displacer to its queue and ledger.
func NewDisplacer(q *Queue, l *ledger.Ledger, cfg tuning.Config, log *EventLog) *Displacer {
	return &Displacer{queue: q, ledger: l, cfg: cfg, log: log}
}

// Calculate builds a read-only displacement preview for moving an
// obligation to an earlier position. Every occupied slot from target to
// current−1 shifts one later; each displaced sender is charged the moving
// obligation's full jump distance in that displaced obligation's own
// connection type.
func (dc *Displacer) Calculate(id uuid.UUID, target int) (*Plan, *OpError) {
	d, current := dc.queue.Find(id)
	if d == nil {
		return nil, errObligationNotFound(id.String())
	}
	if target < 1 || target > dc.queue.Capacity() {
		return nil, errInvalidPosition(target, dc.queue.Capacity())
	}
	if target >= current {
		return nil, &OpError{
			Code:   CodeBackwardDisplacement,
			Reason: fmt.Sprintf("target %d is not earlier than current position %d", target, current),
			Hint:   "displacement only ever moves an obligation toward the front",
		}
	}

	jump := current - target
	plan := &Plan{Moving: d, From: current, Target: target, Jump: jump}

	for pos := target; pos < current; pos++ {
		victim := dc.queue.At(pos)
		if victim == nil {
			continue
		}
		cost := jump
		if dc.ledger.Balance(victim.Sender, victim.Connection) < cost {
			return nil, errInsufficientTokens(victim.Connection, cost, dc.ledger.Balance(victim.Sender, victim.Connection))
		}
		plan.Shifts = append(plan.Shifts, Shift{Obligation: victim, From: pos, To: pos + 1, Cost: cost})
	}

	return plan, nil
}

// Execute commits a voluntary displacement plan: all token burns succeed
// or nothing is committed. Each displaced sender is debited, marked with a
// burden, and recorded as displaced; then the physical cascade runs and
// the moving obligation lands at the target.
func (dc *Displacer) Execute(plan *Plan, segment uint64) *OpError {
	if d, current := dc.queue.Find(plan.Moving.ID); d == nil || current != plan.From {
		return errObligationNotFound(plan.Moving.ID.String())
	}

	// Every victim must still occupy its planned slot; a reordering between
	// preview and commit would otherwise charge senders that are no longer
	// being displaced.
	for _, s := range plan.Shifts {
		if dc.queue.At(s.From) != s.Obligation {
			return &OpError{
				Code:   CodeObligationNotFound,
				Reason: "the queue changed since the displacement was planned",
				Hint:   "recalculate the displacement",
			}
		}
	}

	// Re-check affordability before touching anything; the plan may be stale.
	for _, s := range plan.Shifts {
		if dc.ledger.Balance(s.Obligation.Sender, s.Obligation.Connection) < s.Cost {
			return errInsufficientTokens(s.Obligation.Connection, s.Cost, dc.ledger.Balance(s.Obligation.Sender, s.Obligation.Connection))
		}
	}

	for _, s := range plan.Shifts {
		if err := dc.ledger.Spend(s.Obligation.Sender, s.Obligation.Connection, s.Cost); err != nil {
			panic(fmt.Sprintf("displacement spend after affordability check: %v", err))
		}
		dc.ledger.AddBurden(s.Obligation.Sender)
		dc.ledger.HistoryOf(s.Obligation.Sender).Displaced++
	}

	// Lift the mover out, cascade the gap forward, drop the mover in.
	dc.queue.slots[plan.From-1] = nil
	dc.cascade(plan.Target, plan.From-1)
	if err := dc.queue.MoveToPosition(plan.Moving, plan.Target); err != nil {
		panic(fmt.Sprintf("displacement target occupied after cascade: %v", err))
	}

	dc.log.Emit(Event{
		Segment:     segment,
		Description: fmt.Sprintf("obligation jumped from position %d to %d, displacing %d parties", plan.From, plan.Target, len(plan.Shifts)),
		Category:    "displacement",
	})
	return nil
}

// ExecuteAutomatic forces a new obligation into the queue at forcedPos,
// overriding queue fullness. Mid-cascade burns are capped; the evicted
// obligation, if any, suffers the overflow penalty. Never blocked by
// affordability — senders with nothing to burn are logged and skipped.
func (dc *Displacer) ExecuteAutomatic(d *Delivery, forcedPos int, reason PositionReason, segment uint64) Outcome {
	if forcedPos < 1 || forcedPos > dc.queue.Capacity() {
		panic(fmt.Sprintf("forced position %d outside queue [1,%d]", forcedPos, dc.queue.Capacity()))
	}
	d.Reason = reason

	if dc.queue.At(forcedPos) == nil {
		dc.queue.place(d, forcedPos)
		dc.queue.compact()
		return Outcome{Kind: OutcomePlaced, Position: d.Position}
	}

	// Entry slot: where the cascade drains to, or past the end when full.
	entry := 0
	for pos := forcedPos + 1; pos <= dc.queue.Capacity(); pos++ {
		if dc.queue.At(pos) == nil {
			entry = pos
			break
		}
	}

	var out Outcome
	if entry == 0 {
		// Full queue: the last slot is evicted entirely.
		evicted := dc.queue.At(dc.queue.Capacity())
		burn := dc.ledger.BurnUpTo(evicted.Sender, evicted.Connection, dc.cfg.AutoBurnCap)
		if burn == 0 {
			slog.Warn("eviction with nothing to burn", "sender", evicted.Sender, "connection", evicted.Connection.String())
		}
		dc.ledger.AddBurden(evicted.Sender)
		dc.ledger.HistoryOf(evicted.Sender).Expired++
		dc.queue.slots[dc.queue.Capacity()-1] = nil
		evicted.Position = 0
		entry = dc.queue.Capacity()
		out = Outcome{Kind: OutcomeEvicted, Evicted: evicted, EvictedBurn: burn}

		dc.log.Emit(Event{
			Segment:     segment,
			Description: fmt.Sprintf("an obligation was pushed off the queue entirely (%d %s tokens burned)", burn, evicted.Connection),
			Category:    "eviction",
		})
	} else {
		out = Outcome{Kind: OutcomeDisplaced}
	}

	// Charge each surviving displaced party, capped regardless of distance.
	jump := entry - forcedPos
	cost := jump
	if cost > dc.cfg.AutoBurnCap {
		cost = dc.cfg.AutoBurnCap
	}
	for pos := forcedPos; pos < entry; pos++ {
		victim := dc.queue.At(pos)
		burned := dc.ledger.BurnUpTo(victim.Sender, victim.Connection, cost)
		if burned == 0 {
			slog.Warn("forced displacement with nothing to burn", "sender", victim.Sender, "connection", victim.Connection.String())
		}
		dc.ledger.HistoryOf(victim.Sender).Displaced++
		out.Shifts = append(out.Shifts, Shift{Obligation: victim, From: pos, To: pos + 1, Cost: burned})
	}

	dc.cascade(forcedPos, entry-1)
	if err := dc.queue.MoveToPosition(d, forcedPos); err != nil {
		panic(fmt.Sprintf("forced slot occupied after cascade: %v", err))
	}
	out.Position = forcedPos

	dc.log.Emit(Event{
		Segment:     segment,
		Description: fmt.Sprintf("an obligation forced its way to position %d (%s)", forcedPos, reason),
		Category:    "displacement",
	})
	return out
}

// cascade shifts every occupied slot in [from, to] one position later,
// back to front. The slot past `to` must be empty.
func (dc *Displacer) cascade(from, to int) {
	for pos := to; pos >= from; pos-- {
		d := dc.queue.At(pos)
		if d == nil {
			continue
		}
		dc.queue.slots[pos-1] = nil
		if err := dc.queue.MoveToPosition(d, pos+1); err != nil {
			panic(fmt.Sprintf("cascade into occupied slot %d: %v", pos+1, err))
		}
	}
}
