package syncx

import (
	"context"
	"database/sql"
	"time"
)

// Event types appended by the attempt engine.
const (
	EventAttemptSubmitted  = "attempt.submitted"
	EventCertificateIssued = "certificate.issued"
)

type Event struct {
	Offset    int64
	Type      string
	Key       string // natural key: attemptID / certificateID
	DataJSON  string
	CreatedAt int64
}

type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4)`,
		e.Type, e.Key, e.DataJSON, e.CreatedAt)
	return err
}
