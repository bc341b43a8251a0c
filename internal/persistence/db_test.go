package persistence

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/talgya/courier/internal/ledger"
	"github.com/talgya/courier/internal/npc"
	"github.com/talgya/courier/internal/obligation"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "courier.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLedgerRoundTrip(t *testing.T) {
	db := openTestDB(t)

	l := ledger.New()
	l.Add(1, npc.ConnCommerce, 5)
	l.Remove(1, npc.ConnTrust, 2)
	l.AddBurden(1)
	l.AddBurden(1)
	h := l.HistoryOf(1)
	h.Delivered = 3
	h.Expired = 1
	l.SetStanding(2, true)
	l.Add(2, npc.ConnShadow, 1)

	if err := db.SaveLedger(l); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := db.LoadLedger()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := loaded.Balance(1, npc.ConnCommerce); got != 5 {
		t.Errorf("balance %d, want 5", got)
	}
	if got := loaded.Balance(1, npc.ConnTrust); got != -2 {
		t.Errorf("negative balance %d, want -2", got)
	}
	if loaded.Burdens(1) != 2 {
		t.Errorf("burdens %d, want 2", loaded.Burdens(1))
	}
	if lh := loaded.HistoryOf(1); lh.Delivered != 3 || lh.Expired != 1 {
		t.Errorf("history %+v does not round-trip", lh)
	}
	if !loaded.HasStanding(2) || loaded.HasStanding(1) {
		t.Error("standing flags do not round-trip")
	}
}

func TestQueueRoundTrip(t *testing.T) {
	db := openTestDB(t)

	queued := []obligation.Delivery{
		{
			ID:               uuid.New(),
			Sender:           3,
			Recipient:        4,
			Connection:       npc.ConnDiplomacy,
			Stakes:           obligation.StakesPersonal,
			Remaining:        17,
			Position:         1,
			OriginalPosition: 2,
			LeverageBoost:    6,
			Reason:           obligation.ReasonLeverage,
		},
		{
			ID:                uuid.New(),
			Sender:            5,
			Recipient:         6,
			Connection:        npc.ConnShadow,
			Remaining:         40,
			Position:          2,
			OriginalPosition:  2,
			FailedNegotiation: true,
		},
	}
	if err := db.SaveQueue(queued); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := db.LoadQueue()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d obligations, want 2", len(loaded))
	}
	for i := range queued {
		if *loaded[i] != queued[i] {
			t.Errorf("obligation %d: %+v, want %+v", i, *loaded[i], queued[i])
		}
	}
}

func TestMeetingsRoundTrip(t *testing.T) {
	db := openTestDB(t)

	open := []obligation.Meeting{
		{ID: uuid.New(), Requester: 4, Remaining: 20, Stakes: obligation.StakesCasual},
		{ID: uuid.New(), Requester: 5, Remaining: 9, Stakes: obligation.StakesPersonal},
	}
	if err := db.SaveMeetings(open); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := db.LoadMeetings()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d meetings, want 2", len(loaded))
	}
	byID := map[uuid.UUID]obligation.Meeting{}
	for _, m := range loaded {
		byID[m.ID] = *m
	}
	for _, want := range open {
		if got, ok := byID[want.ID]; !ok || got != want {
			t.Errorf("meeting %s: %+v, want %+v", want.ID, got, want)
		}
	}
}

func TestEventsAppend(t *testing.T) {
	db := openTestDB(t)

	first := []obligation.Event{
		{Segment: 1, Description: "a letter arrived", Category: "obligation"},
		{Segment: 2, Description: "a letter expired", Category: "expiry"},
	}
	if err := db.SaveEvents(first); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := db.SaveEvents([]obligation.Event{{Segment: 3, Description: "delivered", Category: "delivery"}}); err != nil {
		t.Fatalf("append: %v", err)
	}

	recent, err := db.RecentEvents(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d events, want the 2 most recent", len(recent))
	}
	if recent[0].Segment != 3 {
		t.Errorf("newest event is at segment %d, want 3 first", recent[0].Segment)
	}
}

func TestMetaAndHasState(t *testing.T) {
	db := openTestDB(t)

	if db.HasState() {
		t.Error("fresh database reports saved state")
	}
	if err := db.SaveMeta("segment", "120"); err != nil {
		t.Fatalf("save meta: %v", err)
	}
	if !db.HasState() {
		t.Error("database with a segment marker reports no state")
	}
	got, err := db.GetMeta("segment")
	if err != nil || got != "120" {
		t.Errorf("meta %q, %v, want 120", got, err)
	}

	// Overwrite.
	if err := db.SaveMeta("segment", "240"); err != nil {
		t.Fatalf("save meta: %v", err)
	}
	if got, _ := db.GetMeta("segment"); got != "240" {
		t.Errorf("meta %q after overwrite, want 240", got)
	}
}
