// Package tracker implements the accessibility tracking store: which image
// posts were observed, who supplied alt text for them, and the windowed
// aggregates the roundup reports are built from.
package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/discuit-community/alt-text-bot/internal/models"
)

// BotAttribution is the reserved alt_text_by value meaning the description
// was generated by the bot rather than written by a human commenter.
const BotAttribution = "bot"

// Default minimum post counts before a user or community is eligible for
// leaderboard ranking. Communities naturally accumulate more posts, so their
// noise floor is higher.
const (
	DefaultUserSampleFloor      = 3
	DefaultCommunitySampleFloor = 5
)

// Store persists tracked posts, users, communities and report snapshots in
// SQLite. All write operations are idempotent; concurrent callers are safe.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and ensures
// the schema exists. The caller should Close the store when done.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	logrus.Debugf("Tracker store opened at %s", path)
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is still usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func initSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS image_posts (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			community TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			has_alt_text INTEGER DEFAULT 0,
			alt_text_by TEXT DEFAULT NULL,
			alt_text_added_at INTEGER DEFAULT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			tracked_since INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS communities (
			name TEXT PRIMARY KEY,
			tracked_since INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS weekly_reports (
			week_start INTEGER PRIMARY KEY,
			stats TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_image_posts_created_at ON image_posts (created_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordImagePost inserts a newly observed image post. Re-observing the same
// post through another discovery path is expected and absorbed silently; the
// stored fields of an existing record are never touched. The post's author
// and community are registered as a side effect.
func (s *Store) RecordImagePost(ctx context.Context, post models.ImagePost) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO image_posts (id, username, community, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		post.ID, post.Username, post.Community, post.CreatedAt.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert image post %s: %w", post.ID, err)
	}

	if err := s.registerUser(ctx, post.Username); err != nil {
		return err
	}
	return s.registerCommunity(ctx, post.Community)
}

// RecordAltTextAttribution marks a post as described, crediting attributedTo
// (or the bot when isBot is set). The update is a single conditional write
// guarded on has_alt_text = 0, so when concurrent callers race for the same
// post exactly one attribution wins and the rest are silent no-ops. An
// unknown post id is also a no-op: in either case there is nothing to do.
func (s *Store) RecordAltTextAttribution(ctx context.Context, postID, attributedTo string, occurredAt time.Time, isBot bool) error {
	by := attributedTo
	if isBot {
		by = BotAttribution
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE image_posts
		SET has_alt_text = 1,
		    alt_text_by = ?,
		    alt_text_added_at = ?
		WHERE id = ? AND has_alt_text = 0`,
		by, occurredAt.UTC().Unix(), postID,
	)
	if err != nil {
		return fmt.Errorf("record attribution for post %s: %w", postID, err)
	}
	return nil
}

func (s *Store) registerUser(ctx context.Context, username string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, tracked_since)
		VALUES (?, ?)
		ON CONFLICT (username) DO NOTHING`,
		username, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("register user %s: %w", username, err)
	}
	return nil
}

func (s *Store) registerCommunity(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO communities (name, tracked_since)
		VALUES (?, ?)
		ON CONFLICT (name) DO NOTHING`,
		name, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("register community %s: %w", name, err)
	}
	return nil
}

// SaveReportSnapshot serializes stats and upserts it keyed by the report's
// window start. Re-running a report for the same window replaces the prior
// snapshot entirely.
func (s *Store) SaveReportSnapshot(ctx context.Context, weekStart time.Time, stats models.ReportStats) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal report snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO weekly_reports (week_start, stats)
		VALUES (?, ?)
		ON CONFLICT (week_start) DO UPDATE SET stats = excluded.stats`,
		weekStart.UTC().Unix(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("save report snapshot: %w", err)
	}
	return nil
}

// GetReportSnapshot retrieves the snapshot stored for weekStart. Returns
// false when no report has been saved for that window.
func (s *Store) GetReportSnapshot(ctx context.Context, weekStart time.Time) (models.ReportStats, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT stats FROM weekly_reports WHERE week_start = ?`,
		weekStart.UTC().Unix(),
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return models.ReportStats{}, false, nil
	}
	if err != nil {
		return models.ReportStats{}, false, fmt.Errorf("query report snapshot: %w", err)
	}

	var stats models.ReportStats
	if err := json.Unmarshal([]byte(payload), &stats); err != nil {
		return models.ReportStats{}, false, fmt.Errorf("decode report snapshot: %w", err)
	}
	return stats, true, nil
}
