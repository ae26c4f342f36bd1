package syncx

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// MaxAttempts is the number of failed deliveries after which an event is
// dead: it stays in the table for inspection but is no longer pending.
const MaxAttempts = 10

// Event is one outbox row. Rows stay pending until MarkDone or until they
// have failed MaxAttempts times.
type Event struct {
	Seq       int64
	SiteID    string
	Type      string
	Key       string
	DataJSON  string
	Attempts  int
	LastError string
	CreatedAt int64
}

type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	if e.SiteID == "" {
		e.SiteID = "local"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, attempts, last_error, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.SiteID, e.Type, e.Key, e.DataJSON, e.Attempts, e.LastError, time.Now().Unix())
	return err
}

// Pending returns live undelivered events of type typ, least retried first
// and oldest first within the same retry count, so failing rows cannot
// crowd out newer ones.
func (r *EventRepo) Pending(ctx context.Context, typ string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, site_id, typ, key, data, attempts, last_error, created_at
		   FROM event_log
		  WHERE typ=$1 AND done_at IS NULL AND attempts < $2
		  ORDER BY attempts, seq
		  LIMIT $3`, typ, MaxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &e.DataJSON, &e.Attempts, &e.LastError, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var ErrUnknownEvent = errors.New("event not found")

func (r *EventRepo) MarkDone(ctx context.Context, seq int64) error {
	return r.expectOne(r.db.ExecContext(ctx,
		`UPDATE event_log SET done_at=$1 WHERE seq=$2`, time.Now().Unix(), seq))
}

// MarkFailed bumps the retry counter. The event stays pending until it
// reaches MaxAttempts.
func (r *EventRepo) MarkFailed(ctx context.Context, seq int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return r.expectOne(r.db.ExecContext(ctx,
		`UPDATE event_log SET attempts=attempts+1, last_error=$1 WHERE seq=$2`, msg, seq))
}

func (r *EventRepo) expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUnknownEvent
	}
	return nil
}
