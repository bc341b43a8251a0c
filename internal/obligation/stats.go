// Read-side aggregation over the queue, meetings, and ledger. Nothing here
// mutates engine state.
package obligation

import (
	"github.com/talgya/courier/internal/ledger"
	"github.com/talgya/courier/internal/npc"
	"github.com/talgya/courier/internal/tuning"
)

// QueueReport is the queue-level analytics snapshot.
type QueueReport struct {
	Capacity     int             `json:"capacity"`
	Occupied     int             `json:"occupied"`
	Utilization  float64         `json:"utilization"`
	ByUrgency    map[Urgency]int `json:"by_urgency"`
	AvgRemaining float64         `json:"avg_remaining"`
	// Optimization measures how closely current positions match what
	// leverage would compute for each obligation today. 1.0 = perfectly
	// placed.
	Optimization float64 `json:"optimization"`
	OpenMeetings int     `json:"open_meetings"`
}

// RiskTier classifies how likely a relationship is to sour.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// NPCReport is the per-relationship analytics row.
type NPCReport struct {
	ID          npc.ID                 `json:"id"`
	Name        string                 `json:"name"`
	Reliability float64                `json:"reliability"`
	Risk        RiskTier               `json:"risk"`
	Balances    map[npc.Connection]int `json:"balances"`
	Burdens     int                    `json:"burdens"`
	History     ledger.History         `json:"history"`
}

// Statistics aggregates read-only views over the engine state.
type Statistics struct {
	queue  *Queue
	book   *MeetingBook
	ledger *ledger.Ledger
	npcs   *npc.Directory
	cfg    tuning.Config
}

// NewStatistics wires a statistics reader to the engine state.
func NewStatistics(q *Queue, book *MeetingBook, l *ledger.Ledger, npcs *npc.Directory, cfg tuning.Config) *Statistics {
	return &Statistics{queue: q, book: book, ledger: l, npcs: npcs, cfg: cfg}
}

// DeliveryUrgency classifies a queued obligation's remaining time under
// the configured thresholds.
func (s *Statistics) DeliveryUrgency(remaining int) Urgency {
	return DeliveryUrgency(remaining, s.cfg)
}

// MeetingUrgency classifies an open meeting's remaining time.
func (s *Statistics) MeetingUrgency(remaining int) Urgency {
	return MeetingUrgency(remaining, s.cfg)
}

// Queue builds the queue-level report.
func (s *Statistics) Queue() QueueReport {
	report := QueueReport{
		Capacity:     s.queue.Capacity(),
		Occupied:     s.queue.Occupied(),
		ByUrgency:    map[Urgency]int{UrgencyNormal: 0, UrgencyUrgent: 0, UrgencyCritical: 0},
		Optimization: 1.0,
		OpenMeetings: s.book.Count(),
	}
	if report.Capacity > 0 {
		report.Utilization = float64(report.Occupied) / float64(report.Capacity)
	}

	queued := s.queue.All()
	if len(queued) == 0 {
		return report
	}

	totalRemaining := 0
	misplacement := 0.0
	for _, d := range queued {
		report.ByUrgency[DeliveryUrgency(d.Remaining, s.cfg)]++
		totalRemaining += d.Remaining

		ideal := ComputePlacement(s.queue.Capacity(), s.ledger.Balances(d.Sender), s.ledger.HasStanding(d.Sender), s.cfg).Position
		drift := d.Position - ideal
		if drift < 0 {
			drift = -drift
		}
		if s.queue.Capacity() > 1 {
			misplacement += float64(drift) / float64(s.queue.Capacity()-1)
		}
	}
	report.AvgRemaining = float64(totalRemaining) / float64(len(queued))
	report.Optimization = 1.0 - misplacement/float64(len(queued))
	return report
}

// Reliability scores a relationship in [0,1]: the delivery/expiry ratio
// blended with a token-balance bonus or penalty. A relationship with no
// terminal outcomes yet scores a neutral 0.5.
func (s *Statistics) Reliability(id npc.ID) float64 {
	h := s.ledger.HistoryOf(id)
	score := 0.5
	if total := h.Delivered + h.Expired; total > 0 {
		score = float64(h.Delivered) / float64(total)
	}

	// Token blend: each net token shifts the score by 2%.
	net := 0
	for _, bal := range s.ledger.Balances(id) {
		net += bal
	}
	score += float64(net) * 0.02

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// Risk classifies a relationship. High risk: a balance below the
// configured negative floor, more expiries than deliveries, or reliability
// below the configured floor.
func (s *Statistics) Risk(id npc.ID) RiskTier {
	h := s.ledger.HistoryOf(id)
	anyNegative := false
	for _, bal := range s.ledger.Balances(id) {
		if bal < s.cfg.RiskNegativeBalance {
			return RiskHigh
		}
		if bal < 0 {
			anyNegative = true
		}
	}
	if h.Expired > h.Delivered {
		return RiskHigh
	}
	if s.Reliability(id) < s.cfg.RiskReliabilityFloor {
		return RiskHigh
	}
	if anyNegative || s.ledger.Burdens(id) > 0 {
		return RiskMedium
	}
	return RiskLow
}

// NPCs builds a report row for every NPC in the directory.
func (s *Statistics) NPCs() []NPCReport {
	var out []NPCReport
	for _, n := range s.npcs.All() {
		out = append(out, NPCReport{
			ID:          n.ID,
			Name:        n.Name,
			Reliability: s.Reliability(n.ID),
			Risk:        s.Risk(n.ID),
			Balances:    s.ledger.Balances(n.ID),
			Burdens:     s.ledger.Burdens(n.ID),
			History:     *s.ledger.HistoryOf(n.ID),
		})
	}
	return out
}
