// Package api provides the HTTP API for observing the obligation engine.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/courier/internal/clock"
	"github.com/talgya/courier/internal/ledger"
	"github.com/talgya/courier/internal/npc"
	"github.com/talgya/courier/internal/obligation"
	"github.com/talgya/courier/internal/persistence"
)

// Server serves the engine state over HTTP. Mu serializes API access with
// the tick loop — the engine itself is single-threaded.
type Server struct {
	Mu       *sync.Mutex
	Facade   *obligation.Facade
	Ledger   *ledger.Ledger
	NPCs     *npc.Directory
	DB       *persistence.DB
	Runner   *clock.Runner
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	statsLimiter := NewRateLimiter(120, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/queue", s.handleQueue)
	mux.HandleFunc("/api/v1/meetings", s.handleMeetings)
	mux.HandleFunc("/api/v1/letters", s.handleLetters)
	mux.HandleFunc("/api/v1/npcs", s.handleNPCs)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/stats", RateLimitMiddleware(statsLimiter, s.handleStats))

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/advance", s.adminOnly(s.handleAdvance))
	mux.HandleFunc("/api/v1/grant", s.adminOnly(s.handleGrant))
	mux.HandleFunc("/api/v1/displace", s.adminOnly(s.handleDisplace))
	mux.HandleFunc("/api/v1/player/location", s.adminOnly(s.handlePlayerLocation))
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		handler := corsMiddleware(mux)
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins. Set
// CORS_ORIGINS to a comma-separated list; localhost dev servers are
// always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no COURIER_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	report := s.Facade.Stats().Queue()
	status := map[string]any{
		"name":          "Courier",
		"segment":       s.Facade.Segment(),
		"sim_time":      clock.SimTime(s.Facade.Segment()),
		"band":          s.Facade.Band().String(),
		"speed":         s.Runner.Speed,
		"running":       s.Runner.Running,
		"queue":         fmt.Sprintf("%d/%d", report.Occupied, report.Capacity),
		"open_meetings": report.OpenMeetings,
		"letters":       humanize.Comma(int64(len(s.Facade.Letters()))),
		"player_at":     string(s.Facade.PlayerLocation()),
	}
	writeJSON(w, status)
}

// deadlineString renders a remaining-segment countdown for display.
func deadlineString(remaining int) string {
	if remaining <= 0 {
		return "expired"
	}
	days := remaining / clock.SegmentsPerDay
	hours := remaining % clock.SegmentsPerDay
	switch {
	case days == 0:
		return fmt.Sprintf("%d hours left", hours)
	case hours == 0:
		return fmt.Sprintf("%d days left", days)
	default:
		return fmt.Sprintf("%d days %d hours left", days, hours)
	}
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	type slotEntry struct {
		Position  string `json:"position"`
		ID        string `json:"id"`
		Sender    string `json:"sender"`
		Recipient string `json:"recipient"`
		Currency  string `json:"currency"`
		Stakes    string `json:"stakes"`
		Deadline  string `json:"deadline"`
		Urgency   string `json:"urgency"`
		Reason    string `json:"reason"`
	}

	name := func(id npc.ID) string {
		if n := s.NPCs.Lookup(id); n != nil {
			return n.Name
		}
		return fmt.Sprintf("npc %d", id)
	}

	snapshot := s.Facade.QueueSnapshot()
	slots := make([]slotEntry, 0, len(snapshot))
	for _, d := range snapshot {
		slots = append(slots, slotEntry{
			Position:  humanize.Ordinal(d.Position),
			ID:        d.ID.String(),
			Sender:    name(d.Sender),
			Recipient: name(d.Recipient),
			Currency:  d.Connection.String(),
			Stakes:    d.Stakes.String(),
			Deadline:  deadlineString(d.Remaining),
			Urgency:   string(s.urgencyOf(d.Remaining)),
			Reason:    string(d.Reason),
		})
	}

	writeJSON(w, map[string]any{"slots": slots})
}

// urgencyOf classifies through the facade's statistics config.
func (s *Server) urgencyOf(remaining int) obligation.Urgency {
	return s.Facade.Stats().DeliveryUrgency(remaining)
}

func (s *Server) handleMeetings(w http.ResponseWriter, r *http.Request) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	type meetingEntry struct {
		ID        string `json:"id"`
		Requester string `json:"requester"`
		Deadline  string `json:"deadline"`
		Urgency   string `json:"urgency"`
		Stakes    string `json:"stakes"`
	}

	open := s.Facade.Meetings()
	meetings := make([]meetingEntry, 0, len(open))
	for _, m := range open {
		requester := fmt.Sprintf("npc %d", m.Requester)
		if n := s.NPCs.Lookup(m.Requester); n != nil {
			requester = n.Name
		}
		meetings = append(meetings, meetingEntry{
			ID:        m.ID.String(),
			Requester: requester,
			Deadline:  deadlineString(m.Remaining),
			Urgency:   string(s.Facade.Stats().MeetingUrgency(m.Remaining)),
			Stakes:    m.Stakes.String(),
		})
	}

	writeJSON(w, map[string]any{"meetings": meetings})
}

func (s *Server) handleLetters(w http.ResponseWriter, r *http.Request) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	writeJSON(w, map[string]any{"letters": s.Facade.Letters()})
}

func (s *Server) handleNPCs(w http.ResponseWriter, r *http.Request) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	writeJSON(w, map[string]any{"npcs": s.NPCs.All()})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	s.Mu.Lock()
	buffered := s.Facade.Events(limit)
	s.Mu.Unlock()

	// The in-memory tail may have been drained by a save; fall back to the
	// DB. RecentEvents returns newest first, so flip it to match the
	// tail's chronological order.
	if len(buffered) == 0 && s.DB != nil {
		saved, err := s.DB.RecentEvents(limit)
		if err == nil {
			for i, j := 0, len(saved)-1; i < j; i, j = i+1, j-1 {
				saved[i], saved[j] = saved[j], saved[i]
			}
			buffered = saved
		}
	}

	writeJSON(w, map[string]any{"events": buffered})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	writeJSON(w, map[string]any{
		"queue": s.Facade.Stats().Queue(),
		"npcs":  s.Facade.Stats().NPCs(),
	})
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Segments int `json:"segments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Segments <= 0 {
		http.Error(w, "segments must be a positive integer", http.StatusBadRequest)
		return
	}

	s.Mu.Lock()
	report := s.Facade.ProcessDeadlines(req.Segments)
	segment := s.Facade.Segment()
	s.Runner.Segment = segment
	s.Mu.Unlock()

	writeJSON(w, map[string]any{
		"segment":            segment,
		"sim_time":           clock.SimTime(segment),
		"expired_deliveries": len(report.ExpiredDeliveries),
		"expired_meetings":   len(report.ExpiredMeetings),
	})
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sender      uint64 `json:"sender"`
		Recipient   uint64 `json:"recipient"`
		Connection  string `json:"connection"`
		Stakes      string `json:"stakes"`
		Deadline    int    `json:"deadline"`
		WithEffects bool   `json:"with_effects"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, ok := npc.ConnectionFromString(req.Connection)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown connection %q", req.Connection), http.StatusBadRequest)
		return
	}

	stakes := obligation.StakesCasual
	switch req.Stakes {
	case "", "casual":
	case "personal":
		stakes = obligation.StakesPersonal
	case "critical":
		stakes = obligation.StakesCritical
	default:
		http.Error(w, fmt.Sprintf("unknown stakes %q", req.Stakes), http.StatusBadRequest)
		return
	}

	if req.Deadline <= 0 {
		req.Deadline = 2 * clock.SegmentsPerDay
	}

	d := &obligation.Delivery{
		ID:         uuid.New(),
		Sender:     npc.ID(req.Sender),
		Recipient:  npc.ID(req.Recipient),
		Connection: conn,
		Stakes:     stakes,
		Remaining:  req.Deadline,
	}

	s.Mu.Lock()
	defer s.Mu.Unlock()

	if req.WithEffects {
		out, err := s.Facade.AddObligationWithEffects(d)
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, map[string]any{"position": out.Position, "id": d.ID.String()})
		return
	}

	if err := s.Facade.AddObligation(d); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, map[string]any{"position": d.Position, "id": d.ID.String()})
}

func (s *Server) handleDisplace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     string `json:"id"`
		Target int    `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		http.Error(w, fmt.Sprintf("bad obligation id: %v", err), http.StatusBadRequest)
		return
	}

	s.Mu.Lock()
	defer s.Mu.Unlock()

	plan, opErr := s.Facade.TryDisplaceObligation(id, req.Target)
	if opErr != nil {
		writeOpError(w, opErr)
		return
	}
	if opErr := s.Facade.ExecuteDisplacement(plan); opErr != nil {
		writeOpError(w, opErr)
		return
	}
	writeJSON(w, map[string]any{
		"target":     req.Target,
		"displaced":  len(plan.Shifts),
		"total_cost": plan.TotalCost(),
	})
}

func (s *Server) handlePlayerLocation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Location string `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Location == "" {
		http.Error(w, "location is required", http.StatusBadRequest)
		return
	}

	s.Mu.Lock()
	s.Facade.SetPlayerLocation(npc.Location(req.Location))
	s.Mu.Unlock()

	writeJSON(w, map[string]any{"player_at": req.Location})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Speed < 0 {
		http.Error(w, "speed must be a non-negative number", http.StatusBadRequest)
		return
	}

	s.Runner.Speed = req.Speed
	slog.Info("speed changed", "speed", req.Speed)
	writeJSON(w, map[string]any{"speed": req.Speed})
}

// writeOpError maps an engine validation failure to a 409 with the typed
// code, reason, and hint.
func writeOpError(w http.ResponseWriter, opErr *obligation.OpError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	json.NewEncoder(w).Encode(map[string]any{
		"code":   opErr.Code.String(),
		"reason": opErr.Reason,
		"hint":   opErr.Hint,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
