// Package db is the optional Postgres journal: one row per broadcast and one per
// accepted bookmark, used by the HTTP surface and the archive export.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// Connect opens a Postgres connection for dsn and verifies it.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("empty dsn")
	}
	dbx, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	dbx.SetMaxOpenConns(5)
	dbx.SetConnMaxIdleTime(5 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := dbx.PingContext(pctx); err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return dbx, nil
}

// Migrate applies the journal schema.
func Migrate(ctx context.Context, dbx *sql.DB) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return RunMigrations(dbx)
}

// Broadcast is a journaled live session.
type Broadcast struct {
	ID           int64      `json:"id"`
	Channel      string     `json:"channel"`
	StartedAt    time.Time  `json:"started_at"`
	Title        string     `json:"title,omitempty"`
	RecordingURL string     `json:"recording_url,omitempty"`
	ThreadID     string     `json:"thread_id,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

// Bookmark is an accepted timestamp command.
type Bookmark struct {
	ID                 int64     `json:"id"`
	BroadcastStartedAt time.Time `json:"broadcast_started_at"`
	Username           string    `json:"username"`
	Comment            string    `json:"comment"`
	OffsetSeconds      int64     `json:"offset_seconds"`
	Link               string    `json:"link,omitempty"`
	ThreadID           string    `json:"thread_id,omitempty"`
	SentAt             time.Time `json:"sent_at"`
}

// Journal reads and writes the broadcast and bookmark tables.
type Journal struct {
	DB *sql.DB
}

// Ping checks the connection.
func (j *Journal) Ping(ctx context.Context) error { return j.DB.PingContext(ctx) }

// RecordBroadcast inserts or refreshes the row for a broadcast start time.
func (j *Journal) RecordBroadcast(ctx context.Context, b Broadcast) error {
	_, err := j.DB.ExecContext(ctx, `INSERT INTO broadcasts (channel, started_at, title, recording_url, thread_id, created_at)
		VALUES ($1,$2,$3,$4,$5,NOW())
		ON CONFLICT (started_at) DO UPDATE SET
			title=EXCLUDED.title,
			recording_url=EXCLUDED.recording_url,
			thread_id=EXCLUDED.thread_id,
			ended_at=NULL,
			updated_at=NOW()`,
		b.Channel, b.StartedAt.UTC(), b.Title, b.RecordingURL, b.ThreadID)
	if err != nil {
		return fmt.Errorf("record broadcast: %w", err)
	}
	return nil
}

// EndBroadcast stamps the end time of a broadcast.
func (j *Journal) EndBroadcast(ctx context.Context, startedAt, endedAt time.Time) error {
	_, err := j.DB.ExecContext(ctx, `UPDATE broadcasts SET ended_at=$1, updated_at=NOW() WHERE started_at=$2`, endedAt.UTC(), startedAt.UTC())
	if err != nil {
		return fmt.Errorf("end broadcast: %w", err)
	}
	return nil
}

// GetBroadcast returns the broadcast that started at startedAt, or sql.ErrNoRows.
func (j *Journal) GetBroadcast(ctx context.Context, startedAt time.Time) (*Broadcast, error) {
	var b Broadcast
	var title, url, thread sql.NullString
	var ended sql.NullTime
	err := j.DB.QueryRowContext(ctx, `SELECT id, channel, started_at, title, recording_url, thread_id, ended_at
		FROM broadcasts WHERE started_at=$1`, startedAt.UTC()).
		Scan(&b.ID, &b.Channel, &b.StartedAt, &title, &url, &thread, &ended)
	if err != nil {
		return nil, err
	}
	b.Title, b.RecordingURL, b.ThreadID = title.String, url.String, thread.String
	if ended.Valid {
		t := ended.Time
		b.EndedAt = &t
	}
	return &b, nil
}

// RecordBookmark stores an accepted bookmark and returns its id.
func (j *Journal) RecordBookmark(ctx context.Context, bm Bookmark) (int64, error) {
	var id int64
	err := j.DB.QueryRowContext(ctx, `INSERT INTO bookmarks (broadcast_started_at, username, comment, offset_seconds, link, thread_id, sent_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		bm.BroadcastStartedAt.UTC(), bm.Username, bm.Comment, bm.OffsetSeconds, bm.Link, bm.ThreadID, bm.SentAt.UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("record bookmark: %w", err)
	}
	return id, nil
}

// ListBookmarks returns the most recent bookmarks across broadcasts, newest first.
func (j *Journal) ListBookmarks(ctx context.Context, limit int) ([]Bookmark, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return j.queryBookmarks(ctx, `SELECT id, broadcast_started_at, username, COALESCE(comment,''), offset_seconds, COALESCE(link,''), COALESCE(thread_id,''), sent_at
		FROM bookmarks ORDER BY sent_at DESC, id DESC LIMIT $1`, limit)
}

// BookmarksFor returns a broadcast's bookmarks in the order they were sent.
func (j *Journal) BookmarksFor(ctx context.Context, startedAt time.Time) ([]Bookmark, error) {
	return j.queryBookmarks(ctx, `SELECT id, broadcast_started_at, username, COALESCE(comment,''), offset_seconds, COALESCE(link,''), COALESCE(thread_id,''), sent_at
		FROM bookmarks WHERE broadcast_started_at=$1 ORDER BY sent_at, id`, startedAt.UTC())
}

func (j *Journal) queryBookmarks(ctx context.Context, q string, args ...any) ([]Bookmark, error) {
	rows, err := j.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookmarks: %w", err)
	}
	defer rows.Close()
	var out []Bookmark
	for rows.Next() {
		var bm Bookmark
		if err := rows.Scan(&bm.ID, &bm.BroadcastStartedAt, &bm.Username, &bm.Comment, &bm.OffsetSeconds, &bm.Link, &bm.ThreadID, &bm.SentAt); err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		out = append(out, bm)
	}
	return out, rows.Err()
}
