package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"agropres/internal/models"

	"github.com/google/uuid"
)

type EventSQLite struct {
	db *sql.DB
}

func NewEventSQLite(db *sql.DB) *EventSQLite { return &EventSQLite{db: db} }

const sqliteTimeLayout = "2006-01-02 15:04:05"

// Append inserts a new event. Empty EventID/OccurredAt are filled in.
func (r *EventSQLite) Append(ctx context.Context, e models.EngineEvent) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	} else {
		e.OccurredAt = e.OccurredAt.UTC()
	}

	var metaPtr *string
	if e.Metadata != nil {
		if b, err := json.Marshal(e.Metadata); err == nil {
			s := string(b)
			metaPtr = &s
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO engine_events (id, occurred_at, type, message, meta)
		VALUES (?, ?, ?, ?, ?)
	`,
		e.EventID,
		e.OccurredAt.Format(sqliteTimeLayout),
		strings.ToUpper(strings.TrimSpace(e.Type)),
		e.Description,
		metaPtr,
	)

	return err
}

// List returns events filtered by [from, to] (inclusive) and/or type,
// ordered ascending.
func (r *EventSQLite) List(ctx context.Context, from, to time.Time, typ string) ([]models.EngineEvent, error) {
	var (
		conds []string
		args  []any
	)

	if !from.IsZero() {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		conds = append(conds, "occurred_at <= ?")
		args = append(args, to.UTC())
	}
	if typ = strings.ToUpper(strings.TrimSpace(typ)); typ != "" {
		conds = append(conds, "type = ?")
		args = append(args, typ)
	}

	q := `SELECT id, occurred_at, type, message, meta FROM engine_events`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY occurred_at ASC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.EngineEvent
	for rows.Next() {
		var (
			e       models.EngineEvent
			ts      time.Time
			metaPtr *string
		)
		if err := rows.Scan(&e.EventID, &ts, &e.Type, &e.Description, &metaPtr); err != nil {
			return nil, err
		}
		e.OccurredAt = ts.UTC()
		if metaPtr != nil && *metaPtr != "" {
			var meta any
			if err := json.Unmarshal([]byte(*metaPtr), &meta); err == nil {
				e.Metadata = meta
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
