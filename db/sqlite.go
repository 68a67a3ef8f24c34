package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/creator-pulse/models"
)

// Database provides methods for storing and retrieving creator metrics and
// the history of alerts and insights shown to each creator
type Database struct {
	db    *sql.DB
	mutex sync.RWMutex
	log   *logrus.Logger
	now   func() time.Time
}

// NewDatabase creates a new SQLite database connection
func NewDatabase(dbPath string, log *logrus.Logger) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database := &Database{
		db:  db,
		log: log,
		now: time.Now,
	}

	if err := database.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	return database, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.db.Close()
}

// Ping checks that the database is reachable
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// initTables creates the necessary tables if they don't exist
func (d *Database) initTables() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	query := `
	CREATE TABLE IF NOT EXISTS creators (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		creator_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		type TEXT NOT NULL,
		format TEXT NOT NULL DEFAULT '',
		proposal TEXT NOT NULL DEFAULT '',
		context TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		description TEXT NOT NULL DEFAULT '',
		likes INTEGER,
		comments INTEGER,
		shares INTEGER,
		saved INTEGER,
		reach INTEGER,
		impressions INTEGER,
		video_views INTEGER,
		total_interactions INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_posts_creator_created ON posts(creator_id, created_at DESC);
	CREATE TABLE IF NOT EXISTS daily_snapshots (
		post_id TEXT NOT NULL,
		day_number INTEGER NOT NULL,
		daily_shares INTEGER,
		daily_views INTEGER,
		daily_comments INTEGER,
		avg_watch_time REAL,
		recorded_at INTEGER NOT NULL,
		PRIMARY KEY (post_id, day_number)
	);
	CREATE TABLE IF NOT EXISTS account_insights (
		creator_id TEXT NOT NULL,
		recorded_at INTEGER NOT NULL,
		followers_count INTEGER NOT NULL,
		reach INTEGER,
		impressions INTEGER,
		PRIMARY KEY (creator_id, recorded_at)
	);
	CREATE TABLE IF NOT EXISTS alert_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		creator_id TEXT NOT NULL,
		type TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL DEFAULT '{}',
		shown_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_alert_history_creator ON alert_history(creator_id, shown_at DESC);
	CREATE TABLE IF NOT EXISTS insight_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		creator_id TEXT NOT NULL,
		type TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL DEFAULT '{}',
		shown_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_insight_history_creator ON insight_history(creator_id, shown_at DESC);
	CREATE TABLE IF NOT EXISTS dialogue_state (
		creator_id TEXT PRIMARY KEY,
		last_alert_type TEXT NOT NULL DEFAULT '',
		last_alert_at INTEGER NOT NULL DEFAULT 0
	);
	`

	_, err := d.db.Exec(query)
	return err
}

// SaveCreator inserts or renames a creator
func (d *Database) SaveCreator(ctx context.Context, creator models.Creator) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	query := `
	INSERT INTO creators (id, name, created_at) VALUES (?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`

	if _, err := d.db.ExecContext(ctx, query, creator.ID, creator.Name, d.now().Unix()); err != nil {
		return fmt.Errorf("failed to save creator: %w", err)
	}
	return nil
}

// ListCreators returns every known creator ordered by id
func (d *Database) ListCreators(ctx context.Context) ([]models.Creator, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	rows, err := d.db.QueryContext(ctx, "SELECT id, name FROM creators ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query creators: %w", err)
	}
	defer rows.Close()

	creators := make([]models.Creator, 0)
	for rows.Next() {
		var c models.Creator
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan creator: %w", err)
		}
		creators = append(creators, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return creators, nil
}

// GetCreator returns a creator by id, or nil when it does not exist
func (d *Database) GetCreator(ctx context.Context, id string) (*models.Creator, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	var c models.Creator
	err := d.db.QueryRowContext(ctx, "SELECT id, name FROM creators WHERE id = ?", id).Scan(&c.ID, &c.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get creator %s: %w", id, err)
	}
	return &c, nil
}

// windowStart returns the unix lower bound for a window of days, or 0 for no bound
func (d *Database) windowStart(windowDays int) int64 {
	if windowDays <= 0 {
		return 0
	}
	return d.now().AddDate(0, 0, -windowDays).Unix()
}

func nullableInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullableFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func fromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
