// Meeting commitments: structurally separate from the queue — no position,
// only a deadline and an urgency tier, in an unordered per-player set.
package obligation

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/talgya/courier/internal/clock"
	"github.com/talgya/courier/internal/ledger"
	"github.com/talgya/courier/internal/npc"
	"github.com/talgya/courier/internal/tuning"
)

// MeetingBook is the unordered collection of open meetings.
type MeetingBook struct {
	open []*Meeting
}

// All returns the open meetings.
func (b *MeetingBook) All() []*Meeting {
	out := make([]*Meeting, len(b.open))
	copy(out, b.open)
	return out
}

// Count returns the number of open meetings.
func (b *MeetingBook) Count() int {
	return len(b.open)
}

// ByRequester finds the open meeting with a requester, or nil.
func (b *MeetingBook) ByRequester(id npc.ID) *Meeting {
	for _, m := range b.open {
		if m.Requester == id {
			return m
		}
	}
	return nil
}

// add appends without duplicate checking; callers validate first.
func (b *MeetingBook) add(m *Meeting) {
	b.open = append(b.open, m)
}

// remove drops a meeting by ID.
func (b *MeetingBook) remove(id uuid.UUID) {
	for i, m := range b.open {
		if m.ID == id {
			b.open = append(b.open[:i], b.open[i+1:]...)
			return
		}
	}
}

// MeetingManager runs the meeting state machine against the ledger.
type MeetingManager struct {
	book   *MeetingBook
	ledger *ledger.Ledger
	npcs   *npc.Directory
	cfg    tuning.Config
	log    *EventLog
}

// NewMeetingManager wires a meeting manager to the engine state.
func NewMeetingManager(book *MeetingBook, l *ledger.Ledger, npcs *npc.Directory, cfg tuning.Config, log *EventLog) *MeetingManager {
	return &MeetingManager{book: book, ledger: l, npcs: npcs, cfg: cfg, log: log}
}

// Add opens a meeting commitment. A second open meeting with the same
// requester is rejected.
func (m *MeetingManager) Add(meeting *Meeting, segment uint64) *OpError {
	if existing := m.book.ByRequester(meeting.Requester); existing != nil {
		return &OpError{
			Code:   CodeDuplicateMeeting,
			Reason: fmt.Sprintf("an open meeting with npc %d already exists", meeting.Requester),
			Hint:   "complete or cancel the existing meeting first",
		}
	}
	m.book.add(meeting)
	m.log.Emit(Event{
		Segment:     segment,
		Description: fmt.Sprintf("meeting agreed, %d segments to honor it", meeting.Remaining),
		Category:    "meeting",
	})
	return nil
}

// Complete honors a meeting: requires co-location with the requester and
// grants trust, with a bonus for showing up well before the deadline.
func (m *MeetingManager) Complete(requester npc.ID, playerLoc npc.Location, band clock.Band, segment uint64) (*Meeting, *OpError) {
	meeting := m.book.ByRequester(requester)
	if meeting == nil {
		return nil, &OpError{
			Code:   CodeObligationNotFound,
			Reason: fmt.Sprintf("no open meeting with npc %d", requester),
		}
	}
	if meeting.Expired() {
		return nil, &OpError{
			Code:   CodeAlreadyExpired,
			Reason: "the meeting deadline has already passed",
		}
	}
	where := m.npcs.LocationAt(requester, band)
	if where == "" || where != playerLoc {
		return nil, &OpError{
			Code:   CodeWrongLocation,
			Reason: "the requester is not here",
			Hint:   fmt.Sprintf("meet them at %s during the %s", where, band),
		}
	}

	reward := m.cfg.MeetingRewardTokens
	if meeting.Remaining >= m.cfg.MeetingEarlyBonusFloor {
		reward++
	}
	m.ledger.Add(requester, npc.ConnTrust, reward)
	m.ledger.HistoryOf(requester).Meetings++
	m.book.remove(meeting.ID)

	m.log.Emit(Event{
		Segment:     segment,
		Description: fmt.Sprintf("meeting honored, %d trust earned", reward),
		Category:    "meeting",
	})
	return meeting, nil
}

// Cancel withdraws from a meeting voluntarily, at a trust cost.
func (m *MeetingManager) Cancel(requester npc.ID, segment uint64) (*Meeting, *OpError) {
	meeting := m.book.ByRequester(requester)
	if meeting == nil {
		return nil, &OpError{
			Code:   CodeObligationNotFound,
			Reason: fmt.Sprintf("no open meeting with npc %d", requester),
		}
	}

	m.ledger.Remove(requester, npc.ConnTrust, m.cfg.MeetingCancelPenalty)
	m.book.remove(meeting.ID)

	m.log.Emit(Event{
		Segment:     segment,
		Description: "meeting cancelled, the requester is disappointed",
		Category:    "meeting",
	})
	return meeting, nil
}
