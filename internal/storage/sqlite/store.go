// Package sqlite persists run artifacts. Every save is an upsert keyed on
// the cycle identity, so re-running a stage for the same key replaces the
// prior rows instead of duplicating them.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/itradeyou/council/internal/models"
)

type Store struct {
	db *sql.DB
}

// Open creates (or opens) the database at dbPath and applies the schema.
func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS pitches (
    week_id TEXT NOT NULL,
    research_date TEXT NOT NULL,
    agent TEXT NOT NULL,
    payload TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(research_date, agent)
);

CREATE TABLE IF NOT EXISTS peer_reviews (
    week_id TEXT NOT NULL,
    research_date TEXT NOT NULL,
    reviewer TEXT NOT NULL,
    pitch_label TEXT NOT NULL,
    payload TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(research_date, reviewer, pitch_label)
);

CREATE TABLE IF NOT EXISTS chairman_decisions (
    week_id TEXT PRIMARY KEY,
    research_date TEXT NOT NULL,
    payload TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS research_snapshots (
    week_id TEXT PRIMARY KEY,
    research_date TEXT NOT NULL,
    payload TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS checkpoint_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    week_id TEXT NOT NULL,
    checkpoint TEXT NOT NULL,
    account TEXT NOT NULL,
    instrument TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_checkpoint_log_week ON checkpoint_log(week_id, checkpoint);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// SavePitches upserts one row per pitch, keyed by (research_date, agent).
func (s *Store) SavePitches(ctx context.Context, weekID, researchDate string, pitches []models.Pitch) error {
	for _, p := range pitches {
		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal pitch for %s: %w", p.Agent, err)
		}
		_, err = s.db.ExecContext(ctx, `
INSERT INTO pitches (week_id, research_date, agent, payload)
VALUES (?, ?, ?, ?)
ON CONFLICT(research_date, agent) DO UPDATE SET
    week_id=excluded.week_id,
    payload=excluded.payload,
    updated_at=CURRENT_TIMESTAMP
`, weekID, researchDate, p.Agent, string(payload))
		if err != nil {
			return fmt.Errorf("upsert pitch for %s: %w", p.Agent, err)
		}
	}
	return nil
}

// LoadPitches returns the pitches saved for a research date, in agent order.
func (s *Store) LoadPitches(ctx context.Context, researchDate string) ([]models.Pitch, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT payload FROM pitches WHERE research_date = ? ORDER BY agent ASC
`, researchDate)
	if err != nil {
		return nil, fmt.Errorf("load pitches: %w", err)
	}
	defer rows.Close()

	var pitches []models.Pitch
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan pitch: %w", err)
		}
		var p models.Pitch
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("unmarshal pitch: %w", err)
		}
		pitches = append(pitches, p)
	}
	return pitches, rows.Err()
}

// SavePeerReviews upserts one row per review, keyed by
// (research_date, reviewer, pitch_label).
func (s *Store) SavePeerReviews(ctx context.Context, weekID, researchDate string, reviews []models.PeerReview) error {
	for _, r := range reviews {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal review by %s: %w", r.Reviewer, err)
		}
		_, err = s.db.ExecContext(ctx, `
INSERT INTO peer_reviews (week_id, research_date, reviewer, pitch_label, payload)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(research_date, reviewer, pitch_label) DO UPDATE SET
    week_id=excluded.week_id,
    payload=excluded.payload,
    updated_at=CURRENT_TIMESTAMP
`, weekID, researchDate, r.Reviewer, r.PitchLabel, string(payload))
		if err != nil {
			return fmt.Errorf("upsert review by %s: %w", r.Reviewer, err)
		}
	}
	return nil
}

// LoadPeerReviews returns all reviews saved for a research date.
func (s *Store) LoadPeerReviews(ctx context.Context, researchDate string) ([]models.PeerReview, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT payload FROM peer_reviews WHERE research_date = ? ORDER BY reviewer, pitch_label
`, researchDate)
	if err != nil {
		return nil, fmt.Errorf("load reviews: %w", err)
	}
	defer rows.Close()

	var reviews []models.PeerReview
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		var r models.PeerReview
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("unmarshal review: %w", err)
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// SaveChairmanDecision upserts the one decision for a week.
func (s *Store) SaveChairmanDecision(ctx context.Context, weekID, researchDate string, d models.ChairmanDecision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO chairman_decisions (week_id, research_date, payload)
VALUES (?, ?, ?)
ON CONFLICT(week_id) DO UPDATE SET
    research_date=excluded.research_date,
    payload=excluded.payload,
    updated_at=CURRENT_TIMESTAMP
`, weekID, researchDate, string(payload))
	if err != nil {
		return fmt.Errorf("upsert decision: %w", err)
	}
	return nil
}

// LoadChairmanDecision returns the decision for a week, or nil when absent.
func (s *Store) LoadChairmanDecision(ctx context.Context, weekID string) (*models.ChairmanDecision, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT payload FROM chairman_decisions WHERE week_id = ?
`, weekID)

	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load decision: %w", err)
	}
	var d models.ChairmanDecision
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return nil, fmt.Errorf("unmarshal decision: %w", err)
	}
	return &d, nil
}

// SaveSnapshot upserts the frozen research snapshot for a week.
func (s *Store) SaveSnapshot(ctx context.Context, snap models.ResearchSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO research_snapshots (week_id, research_date, payload)
VALUES (?, ?, ?)
ON CONFLICT(week_id) DO UPDATE SET
    research_date=excluded.research_date,
    payload=excluded.payload,
    updated_at=CURRENT_TIMESTAMP
`, snap.WeekID, snap.ResearchDate, string(payload))
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the frozen snapshot for a week, or nil when absent.
func (s *Store) LoadSnapshot(ctx context.Context, weekID string) (*models.ResearchSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT payload FROM research_snapshots WHERE week_id = ?
`, weekID)

	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	var snap models.ResearchSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// LogCheckpointActions appends the actions taken at one checkpoint.
func (s *Store) LogCheckpointActions(ctx context.Context, weekID, checkpoint string, actions []models.CheckpointAction) error {
	for _, a := range actions {
		payload, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal action: %w", err)
		}
		_, err = s.db.ExecContext(ctx, `
INSERT INTO checkpoint_log (week_id, checkpoint, account, instrument, payload)
VALUES (?, ?, ?, ?, ?)
`, weekID, checkpoint, a.Account, string(a.Instrument), string(payload))
		if err != nil {
			return fmt.Errorf("log checkpoint action: %w", err)
		}
	}
	return nil
}

// CountRows is a test hook reporting rows in one of the keyed tables.
func (s *Store) CountRows(ctx context.Context, table string) (int, error) {
	switch table {
	case "pitches", "peer_reviews", "chairman_decisions", "research_snapshots", "checkpoint_log":
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
