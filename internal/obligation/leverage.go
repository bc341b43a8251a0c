// Leverage-to-position scoring. A pure function of the ledger balances
// with the sender: owing a powerful favor pulls the obligation toward the
// front, being owed favors pushes it toward the back.
package obligation

import (
	"github.com/talgya/courier/internal/npc"
	"github.com/talgya/courier/internal/tuning"
)

// Placement is the computed insertion slot for a new obligation, with the
// reason tag and the analytics boost (how far forward leverage pulled it
// from the worst slot).
type Placement struct {
	Position int
	Reason   PositionReason
	Boost    int
}

// ComputePlacement derives the target queue position for an obligation
// from the sender's balances. Overrides apply in precedence order:
// standing obligation forces position 1, then Diplomacy debt at or below
// the configured threshold forces the debt position, then the computed
// value clamped to [1, capacity].
func ComputePlacement(capacity int, balances map[npc.Connection]int, hasStanding bool, cfg tuning.Config) Placement {
	base := capacity

	if hasStanding {
		return Placement{Position: 1, Reason: ReasonStanding, Boost: base - 1}
	}

	if balances[npc.ConnDiplomacy] <= cfg.DiplomacyDebtThreshold {
		pos := cfg.DiplomacyDebtPosition
		return Placement{Position: pos, Reason: ReasonDiplomacyDebt, Boost: base - pos}
	}

	highestPositive := 0
	worstNegative := 0
	for _, bal := range balances {
		if bal > highestPositive {
			highestPositive = bal
		}
		if bal < 0 && -bal > worstNegative {
			worstNegative = -bal
		}
	}

	pos := base - highestPositive + worstNegative
	if pos < 1 {
		pos = 1
	}
	if pos > base {
		pos = base
	}

	return Placement{Position: pos, Reason: ReasonLeverage, Boost: base - pos}
}
