package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/latoulicious/tarumae-dj/pkg/playback"
	_ "github.com/mattn/go-sqlite3"
)

// PlayRecord is a track that started playing in a guild
type PlayRecord struct {
	ID          string
	GuildID     string
	Title       string
	URL         string
	RequestedBy string
	Duration    time.Duration
	StartedAt   time.Time
}

// HistoryDB stores play history in SQLite
type HistoryDB struct {
	db  *sql.DB
	now func() time.Time
}

// NewHistoryDB opens (or creates) the history database at dbPath
func NewHistoryDB(dbPath string) (*HistoryDB, error) {
	if dbPath == "" {
		return nil, ErrInvalidDatabasePath
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initDatabase(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &HistoryDB{db: db, now: time.Now}, nil
}

// initDatabase creates the necessary tables
func initDatabase(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS play_history (
		id TEXT PRIMARY KEY,
		guild_id TEXT NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		requested_by TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_play_history_guild ON play_history(guild_id, started_at);
	CREATE INDEX IF NOT EXISTS idx_play_history_started ON play_history(started_at);
	`
	_, err := db.Exec(schema)
	return err
}

// RecordPlay stores a track that just started playing
func (h *HistoryDB) RecordPlay(ctx context.Context, guildID string, track playback.Track) error {
	if h.db == nil {
		return ErrDatabaseNotConnected
	}

	_, err := h.db.ExecContext(ctx, `
		INSERT INTO play_history (id, guild_id, title, url, requested_by, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		guildID,
		track.Title,
		track.URL,
		track.RequestedBy,
		track.Duration.Milliseconds(),
		h.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record play: %w", err)
	}
	return nil
}

// RecentPlays returns the latest plays of a guild, newest first
func (h *HistoryDB) RecentPlays(ctx context.Context, guildID string, limit int) ([]PlayRecord, error) {
	if h.db == nil {
		return nil, ErrDatabaseNotConnected
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT id, guild_id, title, url, requested_by, duration_ms, started_at
		FROM play_history
		WHERE guild_id = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query play history: %w", err)
	}
	defer rows.Close()

	var records []PlayRecord
	for rows.Next() {
		var r PlayRecord
		var durationMs, startedAt int64
		if err := rows.Scan(&r.ID, &r.GuildID, &r.Title, &r.URL, &r.RequestedBy, &durationMs, &startedAt); err != nil {
			return nil, fmt.Errorf("failed to scan play history: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.StartedAt = time.Unix(0, startedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// PruneBefore deletes plays that started before cutoff and returns how many were removed
func (h *HistoryDB) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if h.db == nil {
		return 0, ErrDatabaseNotConnected
	}

	res, err := h.db.ExecContext(ctx, `DELETE FROM play_history WHERE started_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune play history: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection
func (h *HistoryDB) Close() error {
	if h.db == nil {
		return nil
	}
	return h.db.Close()
}
