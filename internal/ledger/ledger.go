// Package ledger provides the relationship-token economy: signed balances
// between the player and each NPC per connection type, burden markers, and
// per-NPC relationship history counters. The obligation engine treats the
// ledger as its oracle for leverage and as the account debited when
// displacement and expiry costs are paid.
package ledger

import (
	"errors"
	"fmt"

	"github.com/talgya/courier/internal/npc"
)

// ErrInsufficient is returned by Spend when a balance cannot cover a cost.
var ErrInsufficient = errors.New("insufficient tokens")

// History counts terminal obligation outcomes per relationship. Statistics
// derives reliability and risk from these counters.
type History struct {
	Delivered int `json:"delivered"`
	Expired   int `json:"expired"`
	Skipped   int `json:"skipped"`
	Displaced int `json:"displaced"`
	Meetings  int `json:"meetings"`
}

// Ledger holds all relationship state between the player and the town.
// Positive balance: the NPC favors the player. Negative: the player owes.
type Ledger struct {
	balances map[npc.ID]map[npc.Connection]int
	burdens  map[npc.ID]int
	history  map[npc.ID]*History
	standing map[npc.ID]bool
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances: make(map[npc.ID]map[npc.Connection]int),
		burdens:  make(map[npc.ID]int),
		history:  make(map[npc.ID]*History),
		standing: make(map[npc.ID]bool),
	}
}

// Balance returns the signed token balance with an NPC in one connection type.
func (l *Ledger) Balance(id npc.ID, conn npc.Connection) int {
	return l.balances[id][conn]
}

// Balances returns a copy of all balances with an NPC. The copy is safe to
// hand to the pure leverage calculation.
func (l *Ledger) Balances(id npc.ID) map[npc.Connection]int {
	out := make(map[npc.Connection]int, npc.NumConnections)
	for conn, bal := range l.balances[id] {
		out[conn] = bal
	}
	return out
}

// Add credits tokens to a relationship balance.
func (l *Ledger) Add(id npc.ID, conn npc.Connection, amount int) {
	if amount == 0 {
		return
	}
	row := l.balances[id]
	if row == nil {
		row = make(map[npc.Connection]int, npc.NumConnections)
		l.balances[id] = row
	}
	row[conn] += amount
}

// Spend debits tokens from a relationship balance. The balance must cover
// the full amount; partial spends never happen.
func (l *Ledger) Spend(id npc.ID, conn npc.Connection, amount int) error {
	if amount <= 0 {
		return nil
	}
	if l.Balance(id, conn) < amount {
		return fmt.Errorf("spend %d %s with npc %d: %w", amount, conn, id, ErrInsufficient)
	}
	l.balances[id][conn] -= amount
	return nil
}

// Remove debits tokens unconditionally. The balance may go negative — a
// relationship can end up in the player's debt.
func (l *Ledger) Remove(id npc.ID, conn npc.Connection, amount int) {
	l.Add(id, conn, -amount)
}

// BurnUpTo debits up to amount tokens, never pushing the balance below
// zero. Returns the amount actually burned. Used by automatic displacement
// and overflow penalties, which are never blocked by affordability.
func (l *Ledger) BurnUpTo(id npc.ID, conn npc.Connection, amount int) int {
	bal := l.Balance(id, conn)
	if bal <= 0 || amount <= 0 {
		return 0
	}
	burn := amount
	if bal < burn {
		burn = bal
	}
	l.balances[id][conn] -= burn
	return burn
}

// AddBurden records a burden marker against a relationship. Burdens are
// created when a party is displaced or evicted; downstream interaction
// systems read them to raise future difficulty.
func (l *Ledger) AddBurden(id npc.ID) {
	l.burdens[id]++
}

// Burdens returns the burden marker count for a relationship.
func (l *Ledger) Burdens(id npc.ID) int {
	return l.burdens[id]
}

// HistoryOf returns the mutable history record for a relationship,
// creating it on first use.
func (l *Ledger) HistoryOf(id npc.ID) *History {
	h := l.history[id]
	if h == nil {
		h = &History{}
		l.history[id] = h
	}
	return h
}

// KnownNPCs returns every NPC ID the ledger has state for.
func (l *Ledger) KnownNPCs() []npc.ID {
	seen := make(map[npc.ID]bool)
	var ids []npc.ID
	add := func(id npc.ID) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for id := range l.balances {
		add(id)
	}
	for id := range l.burdens {
		add(id)
	}
	for id := range l.history {
		add(id)
	}
	return ids
}

// SetStanding marks or clears an unresolved standing obligation with an
// NPC. While set, new delivery obligations from that sender are forced to
// queue position 1.
func (l *Ledger) SetStanding(id npc.ID, active bool) {
	if active {
		l.standing[id] = true
	} else {
		delete(l.standing, id)
	}
}

// HasStanding reports whether a standing obligation is active with an NPC.
func (l *Ledger) HasStanding(id npc.ID) bool {
	return l.standing[id]
}

// StandingNPCs returns every NPC with an active standing obligation.
func (l *Ledger) StandingNPCs() []npc.ID {
	ids := make([]npc.ID, 0, len(l.standing))
	for id := range l.standing {
		ids = append(ids, id)
	}
	return ids
}
