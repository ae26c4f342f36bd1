package leaderboard

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Name() string { return "local" }

// Submit inserts e; replaying the same entry id is a no-op.
func (s *SQLStore) Submit(ctx context.Context, e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO leaderboard
		(id,session_id,display_name,stakeholder,level,aspirational,score,gleams,alicorns,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.SessionID, e.DisplayName, e.Stakeholder, e.Level, e.Aspirational,
		e.Score, e.Gleams, e.Alicorns, e.Timestamp.UnixMilli())
	return err
}

// Top ranks entries by Gleams, earliest first on ties.
func (s *SQLStore) Top(ctx context.Context, opts TopOpts) ([]Entry, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 10
	}
	var (
		where []string
		args  []any
	)
	if opts.Level != "" {
		args = append(args, opts.Level)
		where = append(where, fmt.Sprintf("level=$%d", len(args)))
	}
	if opts.Aspirational != nil {
		args = append(args, *opts.Aspirational)
		where = append(where, fmt.Sprintf("aspirational=$%d", len(args)))
	}
	q := `SELECT id,session_id,display_name,stakeholder,level,aspirational,score,gleams,alicorns,created_at FROM leaderboard`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, opts.Limit)
	q += fmt.Sprintf(" ORDER BY gleams DESC, created_at ASC, id ASC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var (
			e  Entry
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.DisplayName, &e.Stakeholder, &e.Level, &e.Aspirational,
			&e.Score, &e.Gleams, &e.Alicorns, &ts); err != nil {
			return nil, err
		}
		e.Timestamp = time.UnixMilli(ts).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM leaderboard WHERE id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
