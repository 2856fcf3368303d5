package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Registers the sqlite driver

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/fsrs"
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY between
	// our own goroutines.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

const stateColumns = `due, stability, difficulty, elapsed_days, scheduled_days, reps, lapses, state, last_review`

// FindState retrieves the scheduling state of a card.
// It returns nil and no error when the card has never been reviewed.
func (db *DB) FindState(ctx context.Context, key domain.CardKey) (*fsrs.CardState, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+stateColumns+`
		FROM card_states WHERE user_id = ? AND card_id = ?
	`, key.UserID, key.CardID)

	var (
		cs         fsrs.CardState
		due        string
		lastReview sql.NullString
	)
	err := row.Scan(
		&due,
		&cs.Stability,
		&cs.Difficulty,
		&cs.ElapsedDays,
		&cs.ScheduledDays,
		&cs.Reps,
		&cs.Lapses,
		&cs.State,
		&lastReview,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Card not found
		}
		return nil, fmt.Errorf("failed to find card state %s: %w", key, err)
	}

	if cs.Due, err = parseTime(due); err != nil {
		return nil, fmt.Errorf("failed to parse due of card state %s: %w", key, err)
	}
	if lastReview.Valid {
		if cs.LastReview, err = parseTime(lastReview.String); err != nil {
			return nil, fmt.Errorf("failed to parse last_review of card state %s: %w", key, err)
		}
	}
	return &cs, nil
}

// SaveState replaces the scheduling state of a card without touching its history.
func (db *DB) SaveState(ctx context.Context, key domain.CardKey, cs fsrs.CardState) error {
	if err := upsertState(ctx, db.conn, key, cs); err != nil {
		return fmt.Errorf("failed to save card state %s: %w", key, err)
	}
	return nil
}

// SaveReview replaces the card's state and appends the review to its history
// in one transaction. Either both are written or neither is.
func (db *DB) SaveReview(ctx context.Context, key domain.CardKey, cs fsrs.CardState, log fsrs.ReviewLog) (domain.ReviewEntry, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return domain.ReviewEntry{}, fmt.Errorf("failed to generate review id: %w", err)
	}
	entry := domain.ReviewEntry{ID: id.String(), CardKey: key, ReviewLog: log}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return domain.ReviewEntry{}, fmt.Errorf("failed to begin review transaction for %s: %w", key, err)
	}
	defer tx.Rollback()

	if err := upsertState(ctx, tx, key, cs); err != nil {
		return domain.ReviewEntry{}, fmt.Errorf("failed to save card state %s: %w", key, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO review_logs (id, user_id, card_id, rating, previous_state, state,
			stability, difficulty, elapsed_days, scheduled_days, due, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		key.UserID,
		key.CardID,
		int(log.Rating),
		int(log.PreviousState),
		int(log.State),
		log.Stability,
		log.Difficulty,
		log.ElapsedDays,
		log.ScheduledDays,
		formatTime(log.Due),
		formatTime(log.Reviewed),
	)
	if err != nil {
		return domain.ReviewEntry{}, fmt.Errorf("failed to append review log for %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return domain.ReviewEntry{}, fmt.Errorf("failed to commit review for %s: %w", key, err)
	}
	return entry, nil
}

// ListReviews returns the review history of a card, oldest first.
func (db *DB) ListReviews(ctx context.Context, key domain.CardKey) ([]domain.ReviewEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, rating, previous_state, state, stability, difficulty,
			elapsed_days, scheduled_days, due, reviewed_at
		FROM review_logs WHERE user_id = ? AND card_id = ?
		ORDER BY seq
	`, key.UserID, key.CardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews for %s: %w", key, err)
	}
	defer rows.Close()

	var entries []domain.ReviewEntry
	for rows.Next() {
		e := domain.ReviewEntry{CardKey: key}
		var due, reviewed string
		if err := rows.Scan(
			&e.ID,
			&e.Rating,
			&e.PreviousState,
			&e.State,
			&e.Stability,
			&e.Difficulty,
			&e.ElapsedDays,
			&e.ScheduledDays,
			&due,
			&reviewed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan review row for %s: %w", key, err)
		}
		if e.Due, err = parseTime(due); err != nil {
			return nil, fmt.Errorf("failed to parse review due for %s: %w", key, err)
		}
		if e.Reviewed, err = parseTime(reviewed); err != nil {
			return nil, fmt.Errorf("failed to parse review time for %s: %w", key, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reviews for %s: %w", key, err)
	}
	return entries, nil
}

// DeleteCard removes a card's state and history, returning it to New.
func (db *DB) DeleteCard(ctx context.Context, key domain.CardKey) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction for %s: %w", key, err)
	}
	defer tx.Rollback()

	for _, table := range []string{"card_states", "review_logs"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = ? AND card_id = ?`, key.UserID, key.CardID); err != nil {
			return fmt.Errorf("failed to delete %s rows for %s: %w", table, key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete for %s: %w", key, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertState(ctx context.Context, ex execer, key domain.CardKey, cs fsrs.CardState) error {
	var lastReview sql.NullString
	if cs.HasReviewed() {
		lastReview = sql.NullString{String: formatTime(cs.LastReview), Valid: true}
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO card_states (user_id, card_id, `+stateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, card_id) DO UPDATE SET
			due = excluded.due,
			stability = excluded.stability,
			difficulty = excluded.difficulty,
			elapsed_days = excluded.elapsed_days,
			scheduled_days = excluded.scheduled_days,
			reps = excluded.reps,
			lapses = excluded.lapses,
			state = excluded.state,
			last_review = excluded.last_review
	`,
		key.UserID,
		key.CardID,
		formatTime(cs.Due),
		cs.Stability,
		cs.Difficulty,
		cs.ElapsedDays,
		cs.ScheduledDays,
		cs.Reps,
		cs.Lapses,
		int(cs.State),
		lastReview,
	)
	return err
}

// Timestamps are stored as UTC RFC 3339 text so they sort and round-trip exactly.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
