// Deadline countdown: every active obligation and meeting loses segments
// as time advances; anything that reaches zero expires, pays its penalty,
// and is compacted out of the queue. One call to Advance is one atomic
// unit — a partial tick is never observable.
package obligation

import (
	"fmt"

	"github.com/talgya/courier/internal/ledger"
	"github.com/talgya/courier/internal/npc"
	"github.com/talgya/courier/internal/tuning"
)

// Urgency is the derived countdown classification. Display and statistics
// only — never a logic branch.
type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyCritical Urgency = "critical"
)

// DeliveryUrgency classifies a queued obligation's remaining countdown.
func DeliveryUrgency(remaining int, cfg tuning.Config) Urgency {
	switch {
	case remaining <= cfg.CriticalThreshold:
		return UrgencyCritical
	case remaining <= cfg.UrgentThreshold:
		return UrgencyUrgent
	default:
		return UrgencyNormal
	}
}

// MeetingUrgency classifies a meeting's remaining countdown. Meetings use
// strict hour thresholds.
func MeetingUrgency(remaining int, cfg tuning.Config) Urgency {
	switch {
	case remaining < cfg.MeetingCriticalThreshold:
		return UrgencyCritical
	case remaining < cfg.MeetingUrgentThreshold:
		return UrgencyUrgent
	default:
		return UrgencyNormal
	}
}

// consequences maps a connection type to the narrative fallout of letting
// one of its obligations expire.
var consequences = map[npc.Connection]string{
	npc.ConnTrust:     "%s will not forget being let down",
	npc.ConnCommerce:  "word spreads among the merchants that %s was left waiting",
	npc.ConnStatus:    "%s makes sure the right people hear of the slight",
	npc.ConnShadow:    "%s's associates take quiet note of the failure",
	npc.ConnDiplomacy: "%s lodges a formal complaint about the broken commitment",
}

// AdvanceReport summarizes one deadline tick.
type AdvanceReport struct {
	ExpiredDeliveries []*Delivery
	ExpiredMeetings   []*Meeting
}

// DeadlineTracker advances countdowns and processes expirations.
type DeadlineTracker struct {
	queue   *Queue
	book    *MeetingBook
	satchel *Satchel
	ledger  *ledger.Ledger
	npcs    *npc.Directory
	cfg     tuning.Config
	log     *EventLog
}

// NewDeadlineTracker wires a tracker to the engine state it mutates.
func NewDeadlineTracker(q *Queue, book *MeetingBook, satchel *Satchel, l *ledger.Ledger, npcs *npc.Directory, cfg tuning.Config, log *EventLog) *DeadlineTracker {
	return &DeadlineTracker{queue: q, book: book, satchel: satchel, ledger: l, npcs: npcs, cfg: cfg, log: log}
}

// Advance decrements every active countdown by elapsed segments, expires
// whatever reaches zero, applies penalties, and compacts the queue.
func (t *DeadlineTracker) Advance(segment uint64, elapsed int) AdvanceReport {
	var report AdvanceReport
	if elapsed <= 0 {
		return report
	}

	// Decrement first, then collect, so a single call can expire several
	// obligations at once.
	for _, d := range t.queue.All() {
		d.Remaining -= elapsed
		if d.Expired() {
			report.ExpiredDeliveries = append(report.ExpiredDeliveries, d)
		}
	}

	for _, d := range report.ExpiredDeliveries {
		t.expireDelivery(d, segment)
	}

	for _, m := range t.book.All() {
		m.Remaining -= elapsed
		if m.Expired() {
			report.ExpiredMeetings = append(report.ExpiredMeetings, m)
		}
	}

	for _, m := range report.ExpiredMeetings {
		t.expireMeeting(m, segment)
	}

	return report
}

// expireDelivery applies the expiration penalty and removes the obligation.
func (t *DeadlineTracker) expireDelivery(d *Delivery, segment uint64) {
	t.ledger.Remove(d.Sender, d.Connection, t.cfg.ExpiryPenaltyTokens)
	t.ledger.HistoryOf(d.Sender).Expired++

	if _, err := t.queue.Remove(d.Position); err != nil {
		panic(fmt.Sprintf("expired obligation not in queue: %v", err))
	}
	t.satchel.RemoveByObligation(d.ID)

	name := fmt.Sprintf("npc %d", d.Sender)
	if n := t.npcs.Lookup(d.Sender); n != nil {
		name = n.Name
	}
	t.log.Emit(Event{
		Segment:     segment,
		Description: fmt.Sprintf(consequences[d.Connection], name),
		Category:    "expiry",
	})
}

// expireMeeting applies the missed-meeting trust penalty.
func (t *DeadlineTracker) expireMeeting(m *Meeting, segment uint64) {
	t.ledger.Remove(m.Requester, npc.ConnTrust, t.cfg.MeetingExpiryPenalty)
	t.ledger.HistoryOf(m.Requester).Expired++
	t.book.remove(m.ID)

	name := fmt.Sprintf("npc %d", m.Requester)
	if n := t.npcs.Lookup(m.Requester); n != nil {
		name = n.Name
	}
	t.log.Emit(Event{
		Segment:     segment,
		Description: fmt.Sprintf("%s waited in vain for a meeting that never happened", name),
		Category:    "expiry",
	})
}

// ExtendDeadline buys more time on a queued obligation. This is the one
// queue operation where the player's own balance with the sender is
// debited, in contrast to displacement where the displaced parties pay.
func (t *DeadlineTracker) ExtendDeadline(position int, segment uint64) *OpError {
	if position < 1 || position > t.queue.Capacity() {
		return errInvalidPosition(position, t.queue.Capacity())
	}
	d := t.queue.At(position)
	if d == nil {
		return errPositionEmpty(position)
	}

	cost := t.cfg.ExtendCostTokens
	if t.ledger.Balance(d.Sender, d.Connection) < cost {
		return errInsufficientTokens(d.Connection, cost, t.ledger.Balance(d.Sender, d.Connection))
	}
	if err := t.ledger.Spend(d.Sender, d.Connection, cost); err != nil {
		panic(fmt.Sprintf("extend spend after balance check: %v", err))
	}

	d.Remaining += t.cfg.ExtendBonusSegments
	t.log.Emit(Event{
		Segment:     segment,
		Description: fmt.Sprintf("deadline at position %d extended by %d segments", position, t.cfg.ExtendBonusSegments),
		Category:    "extension",
	})
	return nil
}
