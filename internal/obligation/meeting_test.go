package obligation

import (
	"testing"

	"github.com/google/uuid"

	"github.com/talgya/courier/internal/npc"
	"github.com/talgya/courier/internal/tuning"
)

func newMeeting(requester npc.ID, remaining int) *Meeting {
	return &Meeting{ID: uuid.New(), Requester: requester, Remaining: remaining}
}

func TestAddMeetingRejectsDuplicate(t *testing.T) {
	f, _, _ := newTestEngine(t)

	if err := f.AddMeeting(newMeeting(4, 24)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := f.AddMeeting(newMeeting(4, 24)); err == nil || err.Code != CodeDuplicateMeeting {
		t.Fatalf("duplicate err %v, want duplicate_meeting", err)
	}
	// A different requester is fine.
	if err := f.AddMeeting(newMeeting(5, 24)); err != nil {
		t.Fatalf("second requester: %v", err)
	}
}

func TestCompleteMeetingEarlyBonus(t *testing.T) {
	f, book, npcs := newTestEngine(t)
	cfg := tuning.Default()

	if err := f.AddMeeting(newMeeting(4, cfg.MeetingEarlyBonusFloor)); err != nil {
		t.Fatalf("add: %v", err)
	}
	f.SetPlayerLocation(npcs.LocationAt(4, f.Band()))

	if _, err := f.CompleteMeeting(4); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got := book.Balance(4, npc.ConnTrust); got != cfg.MeetingRewardTokens+1 {
		t.Errorf("trust %d, want reward plus early bonus %d", got, cfg.MeetingRewardTokens+1)
	}
	if book.HistoryOf(4).Meetings != 1 {
		t.Errorf("meeting count %d, want 1", book.HistoryOf(4).Meetings)
	}
	if len(f.Meetings()) != 0 {
		t.Errorf("%d meetings still open", len(f.Meetings()))
	}
}

func TestCompleteMeetingLateNoBonus(t *testing.T) {
	f, book, npcs := newTestEngine(t)
	cfg := tuning.Default()

	if err := f.AddMeeting(newMeeting(4, cfg.MeetingEarlyBonusFloor-1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	f.SetPlayerLocation(npcs.LocationAt(4, f.Band()))

	if _, err := f.CompleteMeeting(4); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got := book.Balance(4, npc.ConnTrust); got != cfg.MeetingRewardTokens {
		t.Errorf("trust %d, want the base reward %d", got, cfg.MeetingRewardTokens)
	}
}

func TestCompleteMeetingValidation(t *testing.T) {
	f, _, _ := newTestEngine(t)

	if _, err := f.CompleteMeeting(4); err == nil || err.Code != CodeObligationNotFound {
		t.Fatalf("missing meeting err %v, want obligation_not_found", err)
	}

	if err := f.AddMeeting(newMeeting(4, 24)); err != nil {
		t.Fatalf("add: %v", err)
	}
	f.SetPlayerLocation("nowhere in particular")
	if _, err := f.CompleteMeeting(4); err == nil || err.Code != CodeWrongLocation {
		t.Fatalf("wrong location err %v, want wrong_location", err)
	}

	expired := newMeeting(5, 0)
	if err := f.AddMeeting(expired); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := f.CompleteMeeting(5); err == nil || err.Code != CodeAlreadyExpired {
		t.Fatalf("expired err %v, want already_expired", err)
	}
}

func TestCancelMeeting(t *testing.T) {
	f, book, _ := newTestEngine(t)
	cfg := tuning.Default()

	if err := f.AddMeeting(newMeeting(4, 24)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := f.CancelMeeting(4); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := book.Balance(4, npc.ConnTrust); got != -cfg.MeetingCancelPenalty {
		t.Errorf("trust %d after cancel, want %d", got, -cfg.MeetingCancelPenalty)
	}
	if _, err := f.CancelMeeting(4); err == nil || err.Code != CodeObligationNotFound {
		t.Errorf("second cancel err %v, want obligation_not_found", err)
	}
}
