// Package narrative generates the stream of obligations the demo driver
// feeds into the engine. It stands in for the excluded narrative/content
// layer: daily letter volume follows a slow simplex-noise pressure curve
// so busy and quiet stretches emerge deterministically from the seed.
package narrative

import (
	"math/rand"

	"github.com/google/uuid"
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/courier/internal/npc"
	"github.com/talgya/courier/internal/obligation"
)

// maxDailyLetters caps how many obligations one day can bring.
const maxDailyLetters = 4

// Generator produces delivery and meeting obligations for the roster.
type Generator struct {
	rng    *rand.Rand
	noise  opensimplex.Noise
	roster []*npc.NPC
}

// NewGenerator creates a seeded generator over an NPC roster.
func NewGenerator(seed int64, roster []*npc.NPC) *Generator {
	return &Generator{
		rng:    rand.New(rand.NewSource(seed + 700)),
		noise:  opensimplex.NewNormalized(seed),
		roster: roster,
	}
}

// DailyVolume returns how many new obligations arrive on a given sim-day.
// The noise curve moves slowly across days; quiet days produce nothing.
func (g *Generator) DailyVolume(day uint64) int {
	pressure := g.noise.Eval2(float64(day)*0.15, 0)
	volume := int(pressure * float64(maxDailyLetters+1))
	if volume > maxDailyLetters {
		// Normalized noise can land exactly on 1.0.
		volume = maxDailyLetters
	}
	return volume
}

// NextDelivery creates a delivery obligation between two distinct NPCs.
func (g *Generator) NextDelivery() *obligation.Delivery {
	sender := g.roster[g.rng.Intn(len(g.roster))]
	recipient := sender
	for recipient == sender {
		recipient = g.roster[g.rng.Intn(len(g.roster))]
	}

	stakes := obligation.StakesCasual
	switch roll := g.rng.Float64(); {
	case roll < 0.1:
		stakes = obligation.StakesCritical
	case roll < 0.4:
		stakes = obligation.StakesPersonal
	}

	return &obligation.Delivery{
		ID:         uuid.New(),
		Sender:     sender.ID,
		Recipient:  recipient.ID,
		Connection: npc.Connection(g.rng.Intn(npc.NumConnections)),
		Stakes:     stakes,
		// One to three sim-days to deliver.
		Remaining: 24 + g.rng.Intn(49),
	}
}

// NextMeeting creates a meeting request from a random NPC.
func (g *Generator) NextMeeting() *obligation.Meeting {
	requester := g.roster[g.rng.Intn(len(g.roster))]

	stakes := obligation.StakesCasual
	if g.rng.Float64() < 0.25 {
		stakes = obligation.StakesPersonal
	}

	return &obligation.Meeting{
		ID:        uuid.New(),
		Requester: requester.ID,
		Stakes:    stakes,
		// Half a day to two days.
		Remaining: 12 + g.rng.Intn(37),
	}
}
