package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "ncc/pkg/domain"
	audit "ncc/pkg/platform/audit"
	txcontext "ncc/pkg/platform/tx"
)

// Store implements audit.Store on the audit_events table.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const selectColumns = `
	SELECT id, category, timestamp, user_id, registration_id, subject, action,
		   from_value, to_value, reason, email, request_id, actor_id, device
	FROM audit_events
`

// Append inserts an event. Idempotent on event id.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := event.ID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}

	query := `
		INSERT INTO audit_events (
			id, category, timestamp, user_id, registration_id, subject, action,
			from_value, to_value, reason, email, request_id, actor_id, device
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		eventID,
		string(category),
		event.Timestamp,
		nullable(string(event.UserID)),
		nullable(string(event.RegistrationID)),
		event.Subject,
		event.Action,
		event.From,
		event.To,
		event.Reason,
		event.Email,
		event.RequestID,
		event.ActorID,
		event.Device,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByUser returns events for a specific user, newest first.
func (s *Store) ListByUser(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		WHERE user_id = $1
		ORDER BY timestamp DESC
	`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// ListByRegistration returns a registration's transition history, oldest first.
func (s *Store) ListByRegistration(ctx context.Context, registrationID id.RegistrationID) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		WHERE registration_id = $1 AND action = ANY($2)
		ORDER BY timestamp ASC
	`, string(registrationID), pq.Array(transitionActions()))
	if err != nil {
		return nil, fmt.Errorf("query registration history: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// ListByRegistrations returns transition histories for a page of registrations in one query.
func (s *Store) ListByRegistrations(ctx context.Context, registrationIDs []id.RegistrationID) (map[id.RegistrationID][]audit.Event, error) {
	out := make(map[id.RegistrationID][]audit.Event, len(registrationIDs))
	if len(registrationIDs) == 0 {
		return out, nil
	}
	ids := make([]string, len(registrationIDs))
	for i, regID := range registrationIDs {
		ids[i] = string(regID)
	}

	rows, err := s.db.QueryContext(ctx, selectColumns+`
		WHERE registration_id = ANY($1) AND action = ANY($2)
		ORDER BY timestamp ASC
	`, pq.Array(ids), pq.Array(transitionActions()))
	if err != nil {
		return nil, fmt.Errorf("query registration histories: %w", err)
	}
	defer rows.Close()

	events, err := s.scanEvents(rows)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		out[e.RegistrationID] = append(out[e.RegistrationID], e)
	}
	return out, nil
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		ORDER BY timestamp DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

func (s *Store) scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			category       string
			event          audit.Event
			userID         sql.NullString
			registrationID sql.NullString
		)

		err := rows.Scan(
			&event.ID,
			&category,
			&event.Timestamp,
			&userID,
			&registrationID,
			&event.Subject,
			&event.Action,
			&event.From,
			&event.To,
			&event.Reason,
			&event.Email,
			&event.RequestID,
			&event.ActorID,
			&event.Device,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.Category = audit.EventCategory(category)
		event.UserID = id.UserID(userID.String)
		event.RegistrationID = id.RegistrationID(registrationID.String)
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}

func transitionActions() []string {
	return []string{
		string(audit.EventRegistrationCreated),
		string(audit.EventSubmissionFinalized),
		string(audit.EventRegistrationStatusChanged),
		string(audit.EventPaymentStatusChanged),
	}
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
