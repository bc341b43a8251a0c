// Package npc provides the non-player-character data model: identity,
// archetypes, connection types, and daily schedules.
package npc

import "github.com/talgya/courier/internal/clock"

// ID is a unique identifier for an NPC.
type ID uint64

// Connection is a relationship currency. Every token balance and every
// obligation cost is denominated in exactly one connection type.
type Connection uint8

const (
	ConnTrust     Connection = iota // Personal confidence
	ConnCommerce                    // Trade favors
	ConnStatus                      // Social standing
	ConnShadow                      // Illicit dealings
	ConnDiplomacy                   // Political capital
)

// NumConnections is the total number of connection types.
const NumConnections = 5

var connectionNames = [NumConnections]string{"trust", "commerce", "status", "shadow", "diplomacy"}

// String returns the connection's display name.
func (c Connection) String() string {
	if int(c) >= NumConnections {
		return "unknown"
	}
	return connectionNames[c]
}

// ConnectionFromString resolves a display name back to a connection type.
func ConnectionFromString(name string) (Connection, bool) {
	for i, n := range connectionNames {
		if n == name {
			return Connection(i), true
		}
	}
	return 0, false
}

// Archetype shapes how an NPC reacts to queue slights. Proud senders force
// their obligations to the front of the queue on arrival.
type Archetype uint8

const (
	ArchHumble    Archetype = iota
	ArchProud
	ArchMercantile
	ArchScholarly
	ArchFurtive
)

var archetypeNames = [...]string{"humble", "proud", "mercantile", "scholarly", "furtive"}

// String returns the archetype's display name.
func (a Archetype) String() string {
	if int(a) >= len(archetypeNames) {
		return "unknown"
	}
	return archetypeNames[a]
}

// Location is a named place in the town. Co-location checks compare the
// player's location against an NPC's scheduled location for the current
// time-of-day band.
type Location string

// Schedule maps each time-of-day band to the location an NPC occupies then.
type Schedule [clock.NumBands]Location

// At returns the NPC's location during the given band.
func (s Schedule) At(band clock.Band) Location {
	if int(band) >= clock.NumBands {
		return ""
	}
	return s[band]
}

// NPC is a non-player character the player holds obligations with.
type NPC struct {
	ID        ID        `json:"id"`
	Name      string    `json:"name"`
	Archetype Archetype `json:"archetype"`
	Schedule  Schedule  `json:"schedule"`
}

// Directory resolves NPC identities and scheduled locations.
type Directory struct {
	byID  map[ID]*NPC
	order []*NPC
}

// NewDirectory builds a directory from a roster.
func NewDirectory(roster []*NPC) *Directory {
	byID := make(map[ID]*NPC, len(roster))
	for _, n := range roster {
		byID[n.ID] = n
	}
	return &Directory{byID: byID, order: roster}
}

// Lookup returns the NPC with the given ID, or nil.
func (d *Directory) Lookup(id ID) *NPC {
	return d.byID[id]
}

// All returns the roster in insertion order.
func (d *Directory) All() []*NPC {
	return d.order
}

// LocationAt returns where an NPC is during the given band. Unknown NPCs
// have no location.
func (d *Directory) LocationAt(id ID, band clock.Band) Location {
	n := d.byID[id]
	if n == nil {
		return ""
	}
	return n.Schedule.At(band)
}
