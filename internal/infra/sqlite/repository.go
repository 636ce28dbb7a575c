// Package sqlite persists delivery outcomes for the stats endpoint.
// Nothing is ever resumed from this store; it is history, not a queue.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/emanuelef/yt-dl-bot-go/internal/domain"
)

// Repository provides database operations for delivery history.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (or creates) the history database under dataDir.
func NewRepository(dataDir string) (*Repository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "deliveries.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite is a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := configureDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	slog.Info("History database initialized", "path", dbPath)

	return &Repository{db: db}, nil
}

// configureDB applies SQLite optimizations.
func configureDB(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

// createSchema creates the database tables.
func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS deliveries (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			url TEXT NOT NULL,
			kind TEXT NOT NULL,
			title TEXT,
			status TEXT NOT NULL,
			size_bytes INTEGER DEFAULT 0,
			error TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME
		);

		CREATE INDEX IF NOT EXISTS idx_deliveries_user ON deliveries(user_id);
		CREATE INDEX IF NOT EXISTS idx_deliveries_status ON deliveries(status);
		CREATE INDEX IF NOT EXISTS idx_deliveries_created ON deliveries(created_at);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Record inserts a finished delivery.
func (r *Repository) Record(ctx context.Context, d *domain.Delivery) error {
	query := `
		INSERT INTO deliveries (id, user_id, url, kind, title, status, size_bytes, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		d.ID,
		d.UserID,
		d.URL,
		string(d.Kind),
		d.Title,
		string(d.Status),
		d.SizeBytes,
		d.Error,
		d.CreatedAt,
		d.CompletedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}

	return nil
}

// CountByStatus returns delivery totals grouped by terminal status.
func (r *Repository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM deliveries GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count deliveries: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		totals[status] = count
	}

	return totals, rows.Err()
}

// CountForUser returns how many deliveries a user has requested.
func (r *Repository) CountForUser(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM deliveries WHERE user_id = ?", userID).Scan(&count)
	return count, err
}

// DeleteOlderThan prunes history rows older than the given age.
func (r *Repository) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	threshold := time.Now().UTC().Add(-age)

	result, err := r.db.ExecContext(ctx, "DELETE FROM deliveries WHERE created_at < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old deliveries: %w", err)
	}

	return result.RowsAffected()
}
