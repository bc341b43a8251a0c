// Package persistence provides SQLite-based engine state storage: ledger
// balances, the obligation queue, open meetings, and the append-only event
// history.
package persistence

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/courier/internal/ledger"
	"github.com/talgya/courier/internal/npc"
	"github.com/talgya/courier/internal/obligation"
)

// DB wraps a SQLite connection for engine state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS balances (
		npc_id INTEGER NOT NULL,
		connection INTEGER NOT NULL,
		balance INTEGER NOT NULL,
		PRIMARY KEY (npc_id, connection)
	);

	CREATE TABLE IF NOT EXISTS relationships (
		npc_id INTEGER PRIMARY KEY,
		burdens INTEGER NOT NULL,
		delivered INTEGER NOT NULL,
		expired INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		displaced INTEGER NOT NULL,
		meetings INTEGER NOT NULL,
		standing INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS queue (
		position INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		sender INTEGER NOT NULL,
		recipient INTEGER NOT NULL,
		connection INTEGER NOT NULL,
		stakes INTEGER NOT NULL,
		remaining INTEGER NOT NULL,
		original_position INTEGER NOT NULL,
		leverage_boost INTEGER NOT NULL,
		reason TEXT NOT NULL,
		failed_negotiation INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meetings (
		id TEXT PRIMARY KEY,
		requester INTEGER NOT NULL,
		remaining INTEGER NOT NULL,
		stakes INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		segment INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_segment ON events(segment);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// HasState reports whether a saved engine state exists.
func (db *DB) HasState() bool {
	var count int
	if err := db.conn.Get(&count, "SELECT COUNT(*) FROM meta WHERE key = 'segment'"); err != nil {
		return false
	}
	return count > 0
}

// SaveLedger writes all relationship state (full replace).
func (db *DB) SaveLedger(l *ledger.Ledger) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM balances"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM relationships"); err != nil {
		return err
	}

	standing := make(map[npc.ID]bool)
	for _, id := range l.StandingNPCs() {
		standing[id] = true
	}

	for _, id := range l.KnownNPCs() {
		for conn, bal := range l.Balances(id) {
			if bal == 0 {
				continue
			}
			if _, err := tx.Exec(
				"INSERT INTO balances (npc_id, connection, balance) VALUES (?, ?, ?)",
				id, conn, bal,
			); err != nil {
				return fmt.Errorf("insert balance npc %d: %w", id, err)
			}
		}

		h := l.HistoryOf(id)
		isStanding := 0
		if standing[id] {
			isStanding = 1
		}
		if _, err := tx.Exec(
			`INSERT INTO relationships
			 (npc_id, burdens, delivered, expired, skipped, displaced, meetings, standing)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, l.Burdens(id), h.Delivered, h.Expired, h.Skipped, h.Displaced, h.Meetings, isStanding,
		); err != nil {
			return fmt.Errorf("insert relationship npc %d: %w", id, err)
		}
	}

	return tx.Commit()
}

// LoadLedger rebuilds a ledger from saved relationship state.
func (db *DB) LoadLedger() (*ledger.Ledger, error) {
	l := ledger.New()

	var balances []struct {
		NPCID      uint64 `db:"npc_id"`
		Connection uint8  `db:"connection"`
		Balance    int    `db:"balance"`
	}
	if err := db.conn.Select(&balances, "SELECT npc_id, connection, balance FROM balances"); err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	for _, b := range balances {
		l.Add(npc.ID(b.NPCID), npc.Connection(b.Connection), b.Balance)
	}

	var rels []struct {
		NPCID     uint64 `db:"npc_id"`
		Burdens   int    `db:"burdens"`
		Delivered int    `db:"delivered"`
		Expired   int    `db:"expired"`
		Skipped   int    `db:"skipped"`
		Displaced int    `db:"displaced"`
		Meetings  int    `db:"meetings"`
		Standing  int    `db:"standing"`
	}
	if err := db.conn.Select(&rels, "SELECT npc_id, burdens, delivered, expired, skipped, displaced, meetings, standing FROM relationships"); err != nil {
		return nil, fmt.Errorf("load relationships: %w", err)
	}
	for _, r := range rels {
		id := npc.ID(r.NPCID)
		for i := 0; i < r.Burdens; i++ {
			l.AddBurden(id)
		}
		h := l.HistoryOf(id)
		h.Delivered = r.Delivered
		h.Expired = r.Expired
		h.Skipped = r.Skipped
		h.Displaced = r.Displaced
		h.Meetings = r.Meetings
		if r.Standing == 1 {
			l.SetStanding(id, true)
		}
	}

	return l, nil
}

// SaveQueue writes the queued obligations (full replace).
func (db *DB) SaveQueue(queued []obligation.Delivery) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM queue"); err != nil {
		return err
	}

	for _, d := range queued {
		failed := 0
		if d.FailedNegotiation {
			failed = 1
		}
		if _, err := tx.Exec(
			`INSERT INTO queue
			 (position, id, sender, recipient, connection, stakes, remaining,
			  original_position, leverage_boost, reason, failed_negotiation)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.Position, d.ID.String(), d.Sender, d.Recipient, d.Connection,
			d.Stakes, d.Remaining, d.OriginalPosition, d.LeverageBoost,
			string(d.Reason), failed,
		); err != nil {
			return fmt.Errorf("insert obligation %s: %w", d.ID, err)
		}
	}

	return tx.Commit()
}

// LoadQueue reads the saved obligations in position order.
func (db *DB) LoadQueue() ([]*obligation.Delivery, error) {
	var rows []struct {
		Position          int    `db:"position"`
		ID                string `db:"id"`
		Sender            uint64 `db:"sender"`
		Recipient         uint64 `db:"recipient"`
		Connection        uint8  `db:"connection"`
		Stakes            uint8  `db:"stakes"`
		Remaining         int    `db:"remaining"`
		OriginalPosition  int    `db:"original_position"`
		LeverageBoost     int    `db:"leverage_boost"`
		Reason            string `db:"reason"`
		FailedNegotiation int    `db:"failed_negotiation"`
	}
	if err := db.conn.Select(&rows,
		`SELECT position, id, sender, recipient, connection, stakes, remaining,
		        original_position, leverage_boost, reason, failed_negotiation
		 FROM queue ORDER BY position`,
	); err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}

	out := make([]*obligation.Delivery, 0, len(rows))
	for _, r := range rows {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return nil, fmt.Errorf("parse obligation id %q: %w", r.ID, err)
		}
		out = append(out, &obligation.Delivery{
			ID:                id,
			Sender:            npc.ID(r.Sender),
			Recipient:         npc.ID(r.Recipient),
			Connection:        npc.Connection(r.Connection),
			Stakes:            obligation.Stakes(r.Stakes),
			Remaining:         r.Remaining,
			Position:          r.Position,
			OriginalPosition:  r.OriginalPosition,
			LeverageBoost:     r.LeverageBoost,
			Reason:            obligation.PositionReason(r.Reason),
			FailedNegotiation: r.FailedNegotiation == 1,
		})
	}
	return out, nil
}

// SaveMeetings writes the open meetings (full replace).
func (db *DB) SaveMeetings(open []obligation.Meeting) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM meetings"); err != nil {
		return err
	}

	for _, m := range open {
		if _, err := tx.Exec(
			"INSERT INTO meetings (id, requester, remaining, stakes) VALUES (?, ?, ?, ?)",
			m.ID.String(), m.Requester, m.Remaining, m.Stakes,
		); err != nil {
			return fmt.Errorf("insert meeting %s: %w", m.ID, err)
		}
	}

	return tx.Commit()
}

// LoadMeetings reads the saved open meetings.
func (db *DB) LoadMeetings() ([]*obligation.Meeting, error) {
	var rows []struct {
		ID        string `db:"id"`
		Requester uint64 `db:"requester"`
		Remaining int    `db:"remaining"`
		Stakes    uint8  `db:"stakes"`
	}
	if err := db.conn.Select(&rows, "SELECT id, requester, remaining, stakes FROM meetings"); err != nil {
		return nil, fmt.Errorf("load meetings: %w", err)
	}

	out := make([]*obligation.Meeting, 0, len(rows))
	for _, r := range rows {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return nil, fmt.Errorf("parse meeting id %q: %w", r.ID, err)
		}
		out = append(out, &obligation.Meeting{
			ID:        id,
			Requester: npc.ID(r.Requester),
			Remaining: r.Remaining,
			Stakes:    obligation.Stakes(r.Stakes),
		})
	}
	return out, nil
}

// SaveEvents appends events to the history table.
func (db *DB) SaveEvents(events []obligation.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		if _, err := tx.Exec(
			"INSERT INTO events (segment, description, category) VALUES (?, ?, ?)",
			e.Segment, e.Description, e.Category,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(limit int) ([]obligation.Event, error) {
	var events []obligation.Event
	err := db.conn.Select(&events,
		"SELECT segment, description, category FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	return events, err
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}

// SaveState performs a full save of the engine state.
func (db *DB) SaveState(f *obligation.Facade, l *ledger.Ledger) error {
	queued := f.QueueSnapshot()
	meetings := f.Meetings()
	slog.Info("saving engine state", "queued", len(queued), "meetings", len(meetings))

	if err := db.SaveLedger(l); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	if err := db.SaveQueue(queued); err != nil {
		return fmt.Errorf("save queue: %w", err)
	}
	if err := db.SaveMeetings(meetings); err != nil {
		return fmt.Errorf("save meetings: %w", err)
	}
	if err := db.SaveEvents(f.DrainEvents()); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := db.SaveMeta("segment", fmt.Sprintf("%d", f.Segment())); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	slog.Info("engine state saved")
	return nil
}
