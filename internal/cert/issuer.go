package cert

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Certificate is a durable record that one attempt earned a passing result.
// It is anchored 1:1 to that attempt and never retracted.
type Certificate struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	AttemptID      string `json:"attempt_id"`
	IssuedAt       int64  `json:"issued_at"`
	CertificateURL string `json:"certificate_url,omitempty"`
}

// Issuer creates certificate rows. Idempotency rests on the uniqueness
// constraint on attempt_id, not on check-then-insert.
type Issuer struct{}

// Issue runs inside the submit transaction. A second invocation for the same
// attempt is a no-op and returns the existing row with created=false.
func (Issuer) Issue(ctx context.Context, tx *sql.Tx, userID, attemptID string, now time.Time) (Certificate, bool, error) {
	c := Certificate{
		ID:        uuid.NewString(),
		UserID:    userID,
		AttemptID: attemptID,
		IssuedAt:  now.Unix(),
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO certificates (id, user_id, attempt_id, issued_at)
		 VALUES ($1,$2,$3,$4)
		 ON CONFLICT (attempt_id) DO NOTHING`,
		c.ID, c.UserID, c.AttemptID, c.IssuedAt)
	if err != nil {
		return Certificate{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Certificate{}, false, err
	}
	if n == 0 {
		existing, err := getByAttemptTx(ctx, tx, attemptID)
		if err != nil {
			return Certificate{}, false, err
		}
		return existing, false, nil
	}
	return c, true, nil
}

func getByAttemptTx(ctx context.Context, tx *sql.Tx, attemptID string) (Certificate, error) {
	var c Certificate
	var url sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT id, user_id, attempt_id, issued_at, certificate_url
		   FROM certificates WHERE attempt_id=$1`, attemptID).
		Scan(&c.ID, &c.UserID, &c.AttemptID, &c.IssuedAt, &url)
	if err != nil {
		return Certificate{}, err
	}
	c.CertificateURL = url.String
	return c, nil
}

// GetByAttempt loads the certificate anchored to an attempt, if any.
func GetByAttempt(ctx context.Context, db *sql.DB, attemptID string) (*Certificate, error) {
	var c Certificate
	var url sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT id, user_id, attempt_id, issued_at, certificate_url
		   FROM certificates WHERE attempt_id=$1`, attemptID).
		Scan(&c.ID, &c.UserID, &c.AttemptID, &c.IssuedAt, &url)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.CertificateURL = url.String
	return &c, nil
}
