// Facade: the orchestration surface the command/UI layers call into. It
// owns the shared engine state, applies cross-cutting effects (standing
// bonuses, automatic-displacement triggers), and delegates to the queue,
// displacer, deadline tracker, delivery manager, and meeting manager.
package obligation

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/talgya/courier/internal/clock"
	"github.com/talgya/courier/internal/ledger"
	"github.com/talgya/courier/internal/npc"
	"github.com/talgya/courier/internal/tuning"
)

// Facade is the engine's external contract.
type Facade struct {
	cfg tuning.Config

	queue   *Queue
	satchel *Satchel
	book    *MeetingBook
	ledger  *ledger.Ledger
	npcs    *npc.Directory
	log     *EventLog

	displacer *Displacer
	deadlines *DeadlineTracker
	delivery  *DeliveryManager
	meetings  *MeetingManager
	stats     *Statistics

	segment   uint64
	playerLoc npc.Location

	// Morning swap is available once per sim-day; 0 = never used.
	swapUsedOnDay uint64
}

// New assembles the engine around a ledger and NPC directory.
func New(cfg tuning.Config, l *ledger.Ledger, npcs *npc.Directory) *Facade {
	q := NewQueue(cfg.QueueCapacity)
	satchel := &Satchel{}
	book := &MeetingBook{}
	log := &EventLog{}

	return &Facade{
		cfg:       cfg,
		queue:     q,
		satchel:   satchel,
		book:      book,
		ledger:    l,
		npcs:      npcs,
		log:       log,
		displacer: NewDisplacer(q, l, cfg, log),
		deadlines: NewDeadlineTracker(q, book, satchel, l, npcs, cfg, log),
		delivery:  NewDeliveryManager(q, satchel, l, npcs, cfg, log),
		meetings:  NewMeetingManager(book, l, npcs, cfg, log),
		stats:     NewStatistics(q, book, l, npcs, cfg),
	}
}

// Segment returns the engine's current segment counter.
func (f *Facade) Segment() uint64 {
	return f.segment
}

// SetSegment restores the segment counter, e.g. after loading saved state.
func (f *Facade) SetSegment(segment uint64) {
	f.segment = segment
}

// Band returns the current time-of-day band.
func (f *Facade) Band() clock.Band {
	return clock.BandOf(f.segment)
}

// SetPlayerLocation moves the player.
func (f *Facade) SetPlayerLocation(loc npc.Location) {
	f.playerLoc = loc
}

// PlayerLocation returns where the player currently stands.
func (f *Facade) PlayerLocation() npc.Location {
	return f.playerLoc
}

// AddObligation places a new obligation at the first empty slot, without
// leverage or cross-cutting effects, and stocks the satchel.
func (f *Facade) AddObligation(d *Delivery) *OpError {
	if err := f.queue.Insert(d); err != nil {
		return err
	}
	f.satchel.Add(d)
	f.log.Emit(Event{
		Segment:     f.segment,
		Description: fmt.Sprintf("new obligation queued at position %d", d.Position),
		Category:    "obligation",
	})
	return nil
}

// AddObligationWithEffects is the full insertion path: standing-obligation
// deadline bonus, automatic-displacement triggers, then leverage
// positioning with a cascade if the computed slot is occupied.
func (f *Facade) AddObligationWithEffects(d *Delivery) (Outcome, *OpError) {
	hasStanding := f.ledger.HasStanding(d.Sender)
	if hasStanding {
		// A standing commitment buys the obligation extra time as well as
		// the front of the queue.
		d.Remaining += f.cfg.StandingBonusSegments
	}

	if reason, forced := f.autoDisplaceReason(d); forced {
		out := f.displacer.ExecuteAutomatic(d, 1, reason, f.segment)
		f.satchel.Add(d)
		return out, nil
	}

	placement := ComputePlacement(f.queue.Capacity(), f.ledger.Balances(d.Sender), hasStanding, f.cfg)
	d.Reason = placement.Reason
	d.LeverageBoost = placement.Boost

	target := placement.Position
	if f.queue.At(target) == nil {
		// Contiguity means an empty computed slot may sit past the last
		// occupied one; land at the first empty instead of leaving a gap.
		first := f.queue.FirstEmpty()
		if first == 0 {
			return Outcome{}, errQueueFull(f.queue.Capacity())
		}
		if first < target {
			target = first
		}
		f.queue.place(d, target)
		f.satchel.Add(d)
		f.log.Emit(Event{
			Segment:     f.segment,
			Description: fmt.Sprintf("new obligation queued at position %d (%s)", target, d.Reason),
			Category:    "obligation",
		})
		return Outcome{Kind: OutcomePlaced, Position: target}, nil
	}

	out, err := f.insertDisplacing(d, target)
	if err != nil {
		return Outcome{}, err
	}
	f.satchel.Add(d)
	return out, nil
}

// autoDisplaceReason decides whether an incoming obligation forces its way
// to position 1: a failed negotiation, a proud sender, or critical stakes.
func (f *Facade) autoDisplaceReason(d *Delivery) (PositionReason, bool) {
	if d.FailedNegotiation {
		return ReasonForced, true
	}
	if n := f.npcs.Lookup(d.Sender); n != nil && n.Archetype == npc.ArchProud {
		return ReasonForced, true
	}
	if d.Stakes == StakesCritical {
		return ReasonForced, true
	}
	return "", false
}

// insertDisplacing places a new obligation at an occupied target by
// cascading the occupants one slot later. The jump distance is measured
// from the slot the obligation would otherwise have entered; every
// displaced sender loses that many tokens unconditionally, with a burden
// marker — displacement cost is relationship damage, not a purchase.
func (f *Facade) insertDisplacing(d *Delivery, target int) (Outcome, *OpError) {
	entry := f.queue.FirstEmpty()
	if entry == 0 {
		return Outcome{}, errQueueFull(f.queue.Capacity())
	}
	jump := entry - target

	out := Outcome{Kind: OutcomeDisplaced, Position: target}
	for pos := target; pos < entry; pos++ {
		victim := f.queue.At(pos)
		f.ledger.Remove(victim.Sender, victim.Connection, jump)
		f.ledger.AddBurden(victim.Sender)
		f.ledger.HistoryOf(victim.Sender).Displaced++
		out.Shifts = append(out.Shifts, Shift{Obligation: victim, From: pos, To: pos + 1, Cost: jump})
	}

	f.displacer.cascade(target, entry-1)
	if err := f.queue.MoveToPosition(d, target); err != nil {
		panic(fmt.Sprintf("leverage target occupied after cascade: %v", err))
	}

	f.log.Emit(Event{
		Segment:     f.segment,
		Description: fmt.Sprintf("new obligation claimed position %d, displacing %d parties", target, len(out.Shifts)),
		Category:    "displacement",
	})
	return out, nil
}

// RemoveObligationFromQueue removes without penalty and drops the letter.
func (f *Facade) RemoveObligationFromQueue(position int) (*Delivery, *OpError) {
	d, err := f.queue.Remove(position)
	if err != nil {
		return nil, err
	}
	f.satchel.RemoveByObligation(d.ID)
	return d, nil
}

// MoveObligationToPosition relocates an obligation directly to an empty
// target slot.
func (f *Facade) MoveObligationToPosition(id uuid.UUID, target int) *OpError {
	d, _ := f.queue.Find(id)
	if d == nil {
		return errObligationNotFound(id.String())
	}
	return f.queue.MoveToPosition(d, target)
}

// SwapObligations exchanges two occupied slots unconditionally.
func (f *Facade) SwapObligations(a, b int) *OpError {
	return f.queue.Swap(a, b)
}

// TryMorningSwap exchanges two adjacent slots, once per sim-day, only
// during the dawn band.
func (f *Facade) TryMorningSwap(a, b int) *OpError {
	diff := a - b
	if diff != 1 && diff != -1 {
		return &OpError{
			Code:   CodeInvalidPosition,
			Reason: fmt.Sprintf("positions %d and %d are not adjacent", a, b),
			Hint:   "the morning swap only exchanges neighbors",
		}
	}
	if clock.BandOf(f.segment) != clock.BandDawn {
		return &OpError{
			Code:   CodeWrongTime,
			Reason: "the morning swap is only possible at dawn",
		}
	}
	day := clock.DayOf(f.segment) + 1
	if f.swapUsedOnDay == day {
		return &OpError{
			Code:   CodeWrongTime,
			Reason: "the morning swap has already been used today",
		}
	}
	if err := f.queue.Swap(a, b); err != nil {
		return err
	}
	f.swapUsedOnDay = day
	return nil
}

// TrySkipToPositionOne moves an obligation straight to position 1, which
// must already be empty — this primitive does not displace. The cost is
// (fromPosition − 1) scaled by the obligation's stakes multiplier.
func (f *Facade) TrySkipToPositionOne(from int) *OpError {
	if from < 2 || from > f.queue.Capacity() {
		return errInvalidPosition(from, f.queue.Capacity())
	}
	d := f.queue.At(from)
	if d == nil {
		return errPositionEmpty(from)
	}
	if f.queue.At(1) != nil {
		return errPositionOccupied(1)
	}

	cost := (from - 1) * d.Stakes.Multiplier()
	if f.ledger.Balance(d.Sender, d.Connection) < cost {
		return errInsufficientTokens(d.Connection, cost, f.ledger.Balance(d.Sender, d.Connection))
	}
	if err := f.ledger.Spend(d.Sender, d.Connection, cost); err != nil {
		panic(fmt.Sprintf("skip-to-front spend after balance check: %v", err))
	}

	f.queue.slots[from-1] = nil
	if err := f.queue.MoveToPosition(d, 1); err != nil {
		panic(fmt.Sprintf("position 1 occupied after emptiness check: %v", err))
	}
	f.queue.compact()

	f.log.Emit(Event{
		Segment:     f.segment,
		Description: fmt.Sprintf("obligation skipped from position %d to the front for %d %s tokens", from, cost, d.Connection),
		Category:    "displacement",
	})
	return nil
}

// CanDeliverFromPositionOne validates the delivery without executing it.
func (f *Facade) CanDeliverFromPositionOne() *OpError {
	return f.delivery.Validate(f.playerLoc, f.Band())
}

// DeliverFromPositionOne executes the delivery at position 1.
func (f *Facade) DeliverFromPositionOne() (*Delivery, *OpError) {
	return f.delivery.Deliver(f.playerLoc, f.Band(), f.segment)
}

// TrySkipObligation abandons the obligation at a position for a token.
func (f *Facade) TrySkipObligation(position int) (*Delivery, *OpError) {
	return f.delivery.TrySkip(position, f.segment)
}

// TryDisplaceObligation previews a voluntary displacement.
func (f *Facade) TryDisplaceObligation(id uuid.UUID, target int) (*Plan, *OpError) {
	return f.displacer.Calculate(id, target)
}

// ExecuteDisplacement commits a previously calculated plan.
func (f *Facade) ExecuteDisplacement(plan *Plan) *OpError {
	return f.displacer.Execute(plan, f.segment)
}

// ProcessDeadlines advances the engine clock by elapsed segments and runs
// the expiration pass as one atomic unit.
func (f *Facade) ProcessDeadlines(elapsed int) AdvanceReport {
	if elapsed <= 0 {
		return AdvanceReport{}
	}
	f.segment += uint64(elapsed)
	return f.deadlines.Advance(f.segment, elapsed)
}

// TryExtendDeadline buys more time on a queued obligation.
func (f *Facade) TryExtendDeadline(position int) *OpError {
	return f.deadlines.ExtendDeadline(position, f.segment)
}

// AddMeeting opens a meeting commitment.
func (f *Facade) AddMeeting(m *Meeting) *OpError {
	return f.meetings.Add(m, f.segment)
}

// CompleteMeeting honors the open meeting with a requester.
func (f *Facade) CompleteMeeting(requester npc.ID) (*Meeting, *OpError) {
	return f.meetings.Complete(requester, f.playerLoc, f.Band(), f.segment)
}

// CancelMeeting withdraws from the open meeting with a requester.
func (f *Facade) CancelMeeting(requester npc.ID) (*Meeting, *OpError) {
	return f.meetings.Cancel(requester, f.segment)
}

// QueueSnapshot returns value copies of the queued obligations in
// position order. Mutating the copies does not touch engine state.
func (f *Facade) QueueSnapshot() []Delivery {
	queued := f.queue.All()
	out := make([]Delivery, len(queued))
	for i, d := range queued {
		out[i] = *d
	}
	return out
}

// Meetings returns value copies of the open meetings.
func (f *Facade) Meetings() []Meeting {
	open := f.book.All()
	out := make([]Meeting, len(open))
	for i, m := range open {
		out[i] = *m
	}
	return out
}

// Letters returns value copies of the carried letters.
func (f *Facade) Letters() []Letter {
	carried := f.satchel.Letters()
	out := make([]Letter, len(carried))
	for i, l := range carried {
		out[i] = *l
	}
	return out
}

// Stats returns the read-side aggregator.
func (f *Facade) Stats() *Statistics {
	return f.stats
}

// Events returns the most recent n engine events.
func (f *Facade) Events(n int) []Event {
	return f.log.Recent(n)
}

// DrainEvents hands all buffered events to the caller for persistence.
func (f *Facade) DrainEvents() []Event {
	return f.log.Drain()
}

// RestoreQueue reloads saved obligations into the queue in saved-position
// order, bypassing leverage. Used by the persistence layer.
func (f *Facade) RestoreQueue(saved []*Delivery) error {
	for _, d := range saved {
		pos := d.Position
		d.Position = 0
		if pos < 1 || pos > f.queue.Capacity() {
			return fmt.Errorf("saved obligation %s at invalid position %d", d.ID, pos)
		}
		if f.queue.At(pos) != nil {
			return fmt.Errorf("saved obligation %s collides at position %d", d.ID, pos)
		}
		orig := d.OriginalPosition
		f.queue.place(d, pos)
		d.OriginalPosition = orig
		f.satchel.Add(d)
	}
	f.queue.mustBeContiguous()
	return nil
}

// RestoreMeetings reloads saved meetings.
func (f *Facade) RestoreMeetings(saved []*Meeting) {
	for _, m := range saved {
		f.book.add(m)
	}
}
