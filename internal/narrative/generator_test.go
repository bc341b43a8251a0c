package narrative

import (
	"testing"

	"github.com/talgya/courier/internal/clock"
	"github.com/talgya/courier/internal/npc"
)

func testRoster() []*npc.NPC {
	roster := make([]*npc.NPC, 6)
	for i := range roster {
		roster[i] = &npc.NPC{ID: npc.ID(i + 1), Name: "npc", Schedule: npc.Schedule{}}
	}
	return roster
}

func TestDeterministicFromSeed(t *testing.T) {
	a := NewGenerator(7, testRoster())
	b := NewGenerator(7, testRoster())

	for i := 0; i < 50; i++ {
		da, db := a.NextDelivery(), b.NextDelivery()
		if da.Sender != db.Sender || da.Recipient != db.Recipient ||
			da.Connection != db.Connection || da.Stakes != db.Stakes ||
			da.Remaining != db.Remaining {
			t.Fatalf("generation %d diverged: %+v vs %+v", i, da, db)
		}
	}
	if a.DailyVolume(3) != b.DailyVolume(3) {
		t.Error("daily volume diverged for the same seed")
	}
}

func TestNextDeliveryShape(t *testing.T) {
	g := NewGenerator(1, testRoster())

	for i := 0; i < 200; i++ {
		d := g.NextDelivery()
		if d.Sender == d.Recipient {
			t.Fatalf("delivery %d addressed to its own sender", i)
		}
		if d.Remaining < clock.SegmentsPerDay || d.Remaining > 3*clock.SegmentsPerDay {
			t.Fatalf("delivery %d deadline %d outside one to three days", i, d.Remaining)
		}
		if d.Connection >= npc.NumConnections {
			t.Fatalf("delivery %d has unknown connection %d", i, d.Connection)
		}
	}
}

func TestDailyVolumeBounds(t *testing.T) {
	// The cap must hold across seeds, including where the normalized noise
	// peaks at exactly 1.0.
	for seed := int64(0); seed < 20; seed++ {
		g := NewGenerator(seed, testRoster())
		for day := uint64(0); day < 1000; day++ {
			v := g.DailyVolume(day)
			if v < 0 || v > maxDailyLetters {
				t.Fatalf("seed %d day %d volume %d outside [0,%d]", seed, day, v, maxDailyLetters)
			}
		}
	}
}

func TestNextMeetingShape(t *testing.T) {
	g := NewGenerator(2, testRoster())
	for i := 0; i < 100; i++ {
		m := g.NextMeeting()
		if m.Requester < 1 || m.Requester > 6 {
			t.Fatalf("meeting %d requester %d outside the roster", i, m.Requester)
		}
		if m.Remaining < 12 || m.Remaining > 48 {
			t.Fatalf("meeting %d deadline %d outside half a day to two days", i, m.Remaining)
		}
	}
}
