package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/speedwagon-io/hevt/internal/lib/logger/sl"
	"github.com/speedwagon-io/hevt/internal/model"
)

const maxBodyLen = 400

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Entry is one journaled push: one notification delivered to one target.
type Entry struct {
	ID             string           `json:"id"`
	NotificationID string           `json:"notification_id"`
	TargetKind     model.TargetKind `json:"target_kind"`
	TargetID       string           `json:"target_id"`
	OK             bool             `json:"ok"`
	StatusCode     int              `json:"status_code"`
	Body           string           `json:"body"`
	Text           string           `json:"text"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Journal keeps push results in SQLite.
type Journal struct {
	log *slog.Logger
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteJournal(log *slog.Logger, dbPath string) (*Journal, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	j := newJournal(log, db)
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return j, nil
}

func newJournal(log *slog.Logger, db *sql.DB) *Journal {
	return &Journal{
		log: log.With(slog.String("component", "history")),
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (j *Journal) migrate() error {
	query := `
		CREATE TABLE IF NOT EXISTS pushes (
			id TEXT PRIMARY KEY,
			notification_id TEXT NOT NULL,
			target_kind TEXT NOT NULL,
			target_id TEXT NOT NULL,
			ok INTEGER NOT NULL,
			status_code INTEGER NOT NULL,
			body TEXT,
			text TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_pushes_created_at ON pushes(created_at);
		CREATE INDEX IF NOT EXISTS idx_pushes_ok ON pushes(ok);
	`
	_, err := j.db.Exec(query)
	return err
}

// Record stores one row per target result in a single transaction.
func (j *Journal) Record(ctx context.Context, n *model.Notification, results []model.PushResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pushes (id, notification_id, target_kind, target_id, ok, status_code, body, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	createdAt := j.now().UTC().Format(timeLayout)
	for _, r := range results {
		body := r.Body
		if len(body) > maxBodyLen {
			body = body[:maxBodyLen]
		}
		if _, err := stmt.ExecContext(ctx,
			uuid.New().String(),
			n.ID,
			string(r.Target.Kind),
			r.Target.ID,
			r.OK,
			r.StatusCode,
			body,
			n.Text,
			createdAt,
		); err != nil {
			return fmt.Errorf("failed to record push to %s: %w", r.Target.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	j.log.Debug("push results recorded", slog.String("notification_id", n.ID), slog.Int("count", len(results)))
	return nil
}

// Recent returns the newest entries first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT id, notification_id, target_kind, target_id, ok, status_code, body, text, created_at
		FROM pushes
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query push history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			kind       string
			body       sql.NullString
			createdStr string
		)

		if err := rows.Scan(&e.ID, &e.NotificationID, &kind, &e.TargetID, &e.OK, &e.StatusCode, &body, &e.Text, &createdStr); err != nil {
			j.log.Error("failed to scan row", sl.Err(err))
			continue
		}

		createdAt, err := time.Parse(timeLayout, createdStr)
		if err != nil {
			j.log.Error("failed to parse timestamp", sl.Err(err))
			continue
		}

		e.TargetKind = model.TargetKind(kind)
		e.Body = body.String
		e.CreatedAt = createdAt
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// FailuresSince counts failed pushes recorded after since.
func (j *Journal) FailuresSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := j.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pushes WHERE ok = 0 AND created_at >= ?",
		since.UTC().Format(timeLayout),
	).Scan(&count)
	return count, err
}

func (j *Journal) Cleanup(ctx context.Context, maxAge time.Duration) error {
	cutoff := j.now().UTC().Add(-maxAge).Format(timeLayout)

	result, err := j.db.ExecContext(ctx, "DELETE FROM pushes WHERE created_at < ?", cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup push history: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		j.log.Info("cleaned up old push history", slog.Int64("deleted", deleted))
	}

	return nil
}

func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

func (j *Journal) Close() error {
	return j.db.Close()
}
