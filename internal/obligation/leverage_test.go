package obligation

import (
	"math/rand"
	"testing"

	"github.com/talgya/courier/internal/npc"
	"github.com/talgya/courier/internal/tuning"
)

func TestComputePlacementStanding(t *testing.T) {
	cfg := tuning.Default()
	p := ComputePlacement(8, map[npc.Connection]int{npc.ConnTrust: -10}, true, cfg)
	if p.Position != 1 || p.Reason != ReasonStanding || p.Boost != 7 {
		t.Errorf("standing placement %+v, want position 1 boost 7", p)
	}
}

func TestComputePlacementDiplomacyDebt(t *testing.T) {
	cfg := tuning.Default()

	p := ComputePlacement(8, map[npc.Connection]int{npc.ConnDiplomacy: -3}, false, cfg)
	if p.Position != 2 || p.Reason != ReasonDiplomacyDebt {
		t.Errorf("debt placement %+v, want position 2", p)
	}

	// One token above the threshold falls through to the computed path.
	p = ComputePlacement(8, map[npc.Connection]int{npc.ConnDiplomacy: -2}, false, cfg)
	if p.Reason != ReasonLeverage {
		t.Errorf("reason %q just above the debt threshold, want leverage", p.Reason)
	}

	// Standing outranks diplomacy debt.
	p = ComputePlacement(8, map[npc.Connection]int{npc.ConnDiplomacy: -9}, true, cfg)
	if p.Position != 1 || p.Reason != ReasonStanding {
		t.Errorf("placement %+v, want standing at 1", p)
	}
}

func TestComputePlacementComputed(t *testing.T) {
	cfg := tuning.Default()
	cases := []struct {
		balances map[npc.Connection]int
		want     int
	}{
		{nil, 8},
		{map[npc.Connection]int{npc.ConnCommerce: 5}, 3},
		{map[npc.Connection]int{npc.ConnTrust: -2}, 8},
		{map[npc.Connection]int{npc.ConnCommerce: 5, npc.ConnTrust: -2}, 5},
		{map[npc.Connection]int{npc.ConnCommerce: 10}, 1},
		{map[npc.Connection]int{npc.ConnCommerce: 3, npc.ConnShadow: 4}, 4},
	}
	for i, c := range cases {
		p := ComputePlacement(8, c.balances, false, cfg)
		if p.Position != c.want {
			t.Errorf("case %d: position %d, want %d", i, p.Position, c.want)
		}
		if p.Boost != 8-c.want {
			t.Errorf("case %d: boost %d, want %d", i, p.Boost, 8-c.want)
		}
	}
}

func TestComputePlacementBounds(t *testing.T) {
	cfg := tuning.Default()
	rng := rand.New(rand.NewSource(11))

	for i := 0; i < 500; i++ {
		balances := map[npc.Connection]int{}
		for c := npc.Connection(0); c < npc.NumConnections; c++ {
			balances[c] = rng.Intn(21) - 10
		}
		p := ComputePlacement(8, balances, false, cfg)
		if p.Position < 1 || p.Position > 8 {
			t.Fatalf("balances %v placed at %d", balances, p.Position)
		}
		if p.Boost != 8-p.Position {
			t.Fatalf("balances %v boost %d at position %d", balances, p.Boost, p.Position)
		}
		if balances[npc.ConnDiplomacy] <= cfg.DiplomacyDebtThreshold {
			if p.Position != cfg.DiplomacyDebtPosition {
				t.Fatalf("diplomacy debt %d placed at %d, want %d",
					balances[npc.ConnDiplomacy], p.Position, cfg.DiplomacyDebtPosition)
			}
			if p.Reason != ReasonDiplomacyDebt {
				t.Fatalf("diplomacy debt %d reason %q", balances[npc.ConnDiplomacy], p.Reason)
			}
		}
	}
}

func TestComputePlacementMonotonicInLeverage(t *testing.T) {
	cfg := tuning.Default()

	// Growing the highest positive balance never pushes the slot later.
	prev := 9
	for bal := 0; bal <= 10; bal++ {
		p := ComputePlacement(8, map[npc.Connection]int{npc.ConnCommerce: bal}, false, cfg)
		if p.Position > prev {
			t.Fatalf("balance %d placed at %d, later than %d", bal, p.Position, prev)
		}
		prev = p.Position
	}
}
