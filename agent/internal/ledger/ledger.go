// Package ledger records which tickets have completed the pipeline. It is
// the single authority on duplicate suppression: poll windows overlap
// across cycles on purpose, and only a terminal ledger entry stops a
// ticket from being processed again.
//
// The ledger has exactly one writer (the scheduler), so there is no
// locking discipline beyond SQLite's own busy handling.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/scribe/dbopen"
)

// Outcomes recorded per ticket.
const (
	OutcomeSuccess  = "success"
	OutcomeRetrying = "retrying"
	OutcomeFailed   = "permanently_failed"
)

// Record is one ledger entry, keyed by ticket ID.
type Record struct {
	TicketID     string
	TicketKey    string
	Outcome      string
	DecisionKind string // decision kind recorded on success, for audit
	LastError    string
	AttemptCount int
	ProcessedAt  int64 // unix ms of the last terminal transition
	CreatedAt    int64
	UpdatedAt    int64
}

// Schema is the ledger schema.
const Schema = `
CREATE TABLE IF NOT EXISTS processed_tickets (
    ticket_id     TEXT PRIMARY KEY,
    ticket_key    TEXT NOT NULL,
    outcome       TEXT NOT NULL DEFAULT 'retrying',
    decision_kind TEXT NOT NULL DEFAULT '',
    last_error    TEXT NOT NULL DEFAULT '',
    attempt_count INTEGER NOT NULL DEFAULT 0,
    processed_at  INTEGER,
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_processed_outcome ON processed_tickets(outcome, updated_at DESC);
`

// ApplySchema applies the ledger schema to a database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// Ledger wraps a database holding processed-ticket records.
type Ledger struct {
	DB *sql.DB
}

// New creates a Ledger from an already-opened database connection.
func New(db *sql.DB) *Ledger {
	return &Ledger{DB: db}
}

// Get returns the record for a ticket, or nil if the ticket was never seen.
func (l *Ledger) Get(ctx context.Context, ticketID string) (*Record, error) {
	row := l.DB.QueryRowContext(ctx,
		`SELECT ticket_id, ticket_key, outcome, decision_kind, last_error,
		attempt_count, COALESCE(processed_at, 0), created_at, updated_at
		FROM processed_tickets WHERE ticket_id = ?`, ticketID)

	var r Record
	err := row.Scan(&r.TicketID, &r.TicketKey, &r.Outcome, &r.DecisionKind,
		&r.LastError, &r.AttemptCount, &r.ProcessedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger: scan record: %w", err)
	}
	return &r, nil
}

// Done reports whether a ticket has reached a terminal outcome (success or
// permanent failure) and must not be dispatched again.
func (l *Ledger) Done(ctx context.Context, ticketID string) (bool, error) {
	var n int
	err := l.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_tickets
		WHERE ticket_id = ? AND outcome IN (?, ?)`,
		ticketID, OutcomeSuccess, OutcomeFailed).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("ledger: done check: %w", err)
	}
	return n > 0, nil
}

// Seen reports whether a ticket completed successfully at some point.
func (l *Ledger) Seen(ctx context.Context, ticketID string) (bool, error) {
	var n int
	err := l.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_tickets
		WHERE ticket_id = ? AND outcome = ?`, ticketID, OutcomeSuccess).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("ledger: seen check: %w", err)
	}
	return n > 0, nil
}

// Attempts returns the number of attempts recorded for a ticket, zero when
// the ticket was never seen.
func (l *Ledger) Attempts(ctx context.Context, ticketID string) (int, error) {
	rec, err := l.Get(ctx, ticketID)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return 0, nil
	}
	return rec.AttemptCount, nil
}

// MarkSuccess records a terminal success for a ticket, incrementing the
// attempt count for the completed attempt. decisionKind is kept for audit
// (it may be empty for skipped tickets, e.g. ones deleted mid-cycle).
func (l *Ledger) MarkSuccess(ctx context.Context, ticketID, ticketKey, decisionKind string) error {
	now := time.Now().UnixMilli()
	_, err := dbopen.Exec(ctx, l.DB,
		`INSERT INTO processed_tickets
		(ticket_id, ticket_key, outcome, decision_kind, last_error, attempt_count, processed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, '', 1, ?, ?, ?)
		ON CONFLICT(ticket_id) DO UPDATE SET
		outcome = excluded.outcome,
		decision_kind = excluded.decision_kind,
		last_error = '',
		attempt_count = attempt_count + 1,
		processed_at = excluded.processed_at,
		updated_at = excluded.updated_at`,
		ticketID, ticketKey, OutcomeSuccess, decisionKind, now, now, now)
	if err != nil {
		return fmt.Errorf("ledger: mark success: %w", err)
	}
	return nil
}

// MarkFailure records a failed attempt. When the attempt count reaches
// maxAttempts the ticket flips to permanently_failed and is never
// dispatched again; otherwise it stays retryable for future cycles.
// Returns true when the failure became permanent.
func (l *Ledger) MarkFailure(ctx context.Context, ticketID, ticketKey, errMsg string, maxAttempts int) (bool, error) {
	now := time.Now().UnixMilli()
	_, err := dbopen.Exec(ctx, l.DB,
		`INSERT INTO processed_tickets
		(ticket_id, ticket_key, outcome, last_error, attempt_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(ticket_id) DO UPDATE SET
		last_error = excluded.last_error,
		attempt_count = attempt_count + 1,
		updated_at = excluded.updated_at`,
		ticketID, ticketKey, OutcomeRetrying, errMsg, now, now)
	if err != nil {
		return false, fmt.Errorf("ledger: mark failure: %w", err)
	}

	// Flip to permanent in the same statement shape the success path uses:
	// read back the count, then update the outcome if the cap is reached.
	rec, err := l.Get(ctx, ticketID)
	if err != nil {
		return false, err
	}
	if rec == nil || rec.AttemptCount < maxAttempts {
		return false, nil
	}
	_, err = dbopen.Exec(ctx, l.DB,
		`UPDATE processed_tickets SET outcome = ?, processed_at = ?, updated_at = ?
		WHERE ticket_id = ?`,
		OutcomeFailed, now, now, ticketID)
	if err != nil {
		return false, fmt.Errorf("ledger: mark permanent failure: %w", err)
	}
	return true, nil
}

// List returns the most recently updated records, newest first.
func (l *Ledger) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.DB.QueryContext(ctx,
		`SELECT ticket_id, ticket_key, outcome, decision_kind, last_error,
		attempt_count, COALESCE(processed_at, 0), created_at, updated_at
		FROM processed_tickets ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.TicketID, &r.TicketKey, &r.Outcome, &r.DecisionKind,
			&r.LastError, &r.AttemptCount, &r.ProcessedAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan record: %w", err)
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

// Stats returns per-outcome counts.
func (l *Ledger) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := l.DB.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM processed_tickets GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		stats[outcome] = n
	}
	return stats, rows.Err()
}
