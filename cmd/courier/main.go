// Command courier runs the obligation queue engine as a long-lived
// simulation with an HTTP observation API.
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"

	"github.com/caarlos0/env/v11"

	"github.com/talgya/courier/internal/api"
	"github.com/talgya/courier/internal/clock"
	"github.com/talgya/courier/internal/ledger"
	"github.com/talgya/courier/internal/narrative"
	"github.com/talgya/courier/internal/npc"
	"github.com/talgya/courier/internal/obligation"
	"github.com/talgya/courier/internal/persistence"
	"github.com/talgya/courier/internal/tuning"
)

type config struct {
	Port       int    `env:"COURIER_PORT" envDefault:"8080"`
	DBPath     string `env:"COURIER_DB_PATH" envDefault:"data/courier.db"`
	AdminKey   string `env:"COURIER_ADMIN_KEY"`
	Seed       int64  `env:"COURIER_SEED" envDefault:"42"`
	TuningPath string `env:"COURIER_TUNING" envDefault:"tuning.yaml"`
	StartAt    string `env:"COURIER_START_LOCATION" envDefault:"market square"`
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		slog.Error("failed to parse environment", "error", err)
		os.Exit(1)
	}

	slog.Info("Courier — Obligation Queue Engine")

	tcfg, err := tuning.Load(cfg.TuningPath)
	if err != nil {
		slog.Error("failed to load tuning", "path", cfg.TuningPath, "error", err)
		os.Exit(1)
	}
	if err := tcfg.Validate(); err != nil {
		slog.Error("invalid tuning", "error", err)
		os.Exit(1)
	}

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll(filepath.Dir(cfg.DBPath), 0755)
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Town Roster (deterministic from seed) ─────────────────────────
	roster := buildRoster(cfg.Seed)
	npcs := npc.NewDirectory(roster)
	slog.Info("roster ready", "npcs", len(roster))

	// ── Load or Seed Engine State ─────────────────────────────────────
	var book *ledger.Ledger
	var startSegment uint64

	fresh := !db.HasState()
	if fresh {
		slog.Info("no saved state found, seeding fresh town")
		book = seedLedger(cfg.Seed, roster)
	} else {
		slog.Info("found saved state, loading...")
		book, err = db.LoadLedger()
		if err != nil {
			slog.Error("failed to load ledger", "error", err)
			os.Exit(1)
		}
		if s, err := db.GetMeta("segment"); err == nil {
			if v, err := strconv.ParseUint(s, 10, 64); err == nil {
				startSegment = v
			}
		}
	}

	facade := obligation.New(tcfg, book, npcs)
	facade.SetSegment(startSegment)
	facade.SetPlayerLocation(npc.Location(cfg.StartAt))

	if !fresh {
		saved, err := db.LoadQueue()
		if err != nil {
			slog.Error("failed to load queue", "error", err)
			os.Exit(1)
		}
		if err := facade.RestoreQueue(saved); err != nil {
			slog.Error("failed to restore queue", "error", err)
			os.Exit(1)
		}
		meetings, err := db.LoadMeetings()
		if err != nil {
			slog.Error("failed to load meetings", "error", err)
			os.Exit(1)
		}
		facade.RestoreMeetings(meetings)
		slog.Info("state restored",
			"segment", startSegment,
			"sim_time", clock.SimTime(startSegment),
			"queued", len(saved),
			"meetings", len(meetings),
		)
	}

	gen := narrative.NewGenerator(cfg.Seed, roster)

	// ── Clock ─────────────────────────────────────────────────────────
	var mu sync.Mutex
	runner := clock.NewRunner()
	runner.Segment = startSegment

	runner.OnSegment = func(segment uint64) {
		mu.Lock()
		defer mu.Unlock()
		report := facade.ProcessDeadlines(1)
		for _, d := range report.ExpiredDeliveries {
			slog.Warn("obligation expired", "id", d.ID, "position", d.Position)
		}
	}

	runner.OnDay = func(segment uint64) {
		mu.Lock()
		defer mu.Unlock()

		day := clock.DayOf(segment)
		volume := gen.DailyVolume(day)
		for i := 0; i < volume; i++ {
			d := gen.NextDelivery()
			if _, err := facade.AddObligationWithEffects(d); err != nil {
				slog.Info("queue refused new obligation", "code", err.Code, "reason", err.Reason)
				break
			}
		}
		if err := facade.AddMeeting(gen.NextMeeting()); err != nil {
			slog.Info("meeting refused", "code", err.Code)
		}

		// Auto-save daily.
		if err := db.SaveState(facade, book); err != nil {
			slog.Error("daily save failed", "error", err)
		}
		slog.Info("new day", "day", day, "letters_arrived", volume)
	}

	// Save on fresh start only (loaded towns are already saved).
	if fresh {
		if err := db.SaveState(facade, book); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("COURIER_ADMIN_KEY not set — admin POST endpoints will be disabled")
	}

	apiServer := &api.Server{
		Mu:       &mu,
		Facade:   facade,
		Ledger:   book,
		NPCs:     npcs,
		DB:       db,
		Runner:   runner,
		Port:     cfg.Port,
		AdminKey: cfg.AdminKey,
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		runner.Stop()
	}()

	fmt.Printf("\nThe courier's day begins: %d townsfolk, queue of %d.\n",
		len(roster), tcfg.QueueCapacity)
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Port)
	if startSegment > 0 {
		fmt.Printf("Resuming from segment %d (%s)\n", startSegment, clock.SimTime(startSegment))
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	runner.Run()

	// Final save on shutdown.
	slog.Info("final save...")
	mu.Lock()
	if err := db.SaveState(facade, book); err != nil {
		slog.Error("final save failed", "error", err)
	}
	mu.Unlock()

	fmt.Println("Simulation stopped. Town state saved.")
}

// buildRoster generates the town's fixed cast. Identities and schedules
// are deterministic from the seed so a reloaded save meets the same town.
func buildRoster(seed int64) []*npc.NPC {
	rng := rand.New(rand.NewSource(seed + 100))

	type seedNPC struct {
		name      string
		archetype npc.Archetype
		home      npc.Location
		work      npc.Location
	}
	cast := []seedNPC{
		{"Maren the Chandler", npc.ArchMercantile, "chandlery", "market square"},
		{"Aldous Vey", npc.ArchProud, "vey manor", "guild hall"},
		{"Petra Thornwood", npc.ArchHumble, "thornwood cottage", "market square"},
		{"Brother Caskin", npc.ArchScholarly, "scriptorium", "scriptorium"},
		{"Ysolde Marsh", npc.ArchFurtive, "riverside shack", "docks"},
		{"Corwin Ash", npc.ArchHumble, "ash farm", "granary"},
		{"Lady Isbeth", npc.ArchProud, "isbeth estate", "guild hall"},
		{"Tomas Quill", npc.ArchMercantile, "quill house", "docks"},
		{"Old Fenna", npc.ArchScholarly, "fenna's attic", "market square"},
		{"Ruven the Gray", npc.ArchFurtive, "the gray den", "tavern"},
	}

	roster := make([]*npc.NPC, 0, len(cast))
	for i, c := range cast {
		var sched npc.Schedule
		sched[clock.BandDawn] = c.home
		sched[clock.BandMorning] = c.work
		sched[clock.BandAfternoon] = c.work
		if rng.Float64() < 0.4 {
			sched[clock.BandEvening] = "tavern"
		} else {
			sched[clock.BandEvening] = c.home
		}
		sched[clock.BandNight] = c.home

		roster = append(roster, &npc.NPC{
			ID:        npc.ID(i + 1),
			Name:      c.name,
			Archetype: c.archetype,
			Schedule:  sched,
		})
	}
	return roster
}

// seedLedger deals out starting token balances for a fresh town.
func seedLedger(seed int64, roster []*npc.NPC) *ledger.Ledger {
	rng := rand.New(rand.NewSource(seed + 200))
	book := ledger.New()

	for _, n := range roster {
		for c := npc.Connection(0); c < npc.NumConnections; c++ {
			if amount := rng.Intn(4); amount > 0 {
				book.Add(n.ID, c, amount)
			}
		}
	}

	// One standing commitment anchors the early game.
	if len(roster) > 0 {
		book.SetStanding(roster[rng.Intn(len(roster))].ID, true)
	}
	return book
}
