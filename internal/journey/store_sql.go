package journey

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Load(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,display_name,state_json,updated_at FROM journeys WHERE id=$1`, id)
	var (
		r       Record
		state   string
		updated int64
	)
	if err := row.Scan(&r.ID, &r.DisplayName, &state, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	r.StateJSON = []byte(state)
	r.UpdatedAt = time.UnixMilli(updated)
	return r, nil
}

func (s *SQLStore) Save(ctx context.Context, r Record) error {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO journeys (id,display_name,state_json,updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET display_name=EXCLUDED.display_name, state_json=EXCLUDED.state_json, updated_at=EXCLUDED.updated_at`,
		r.ID, r.DisplayName, string(r.StateJSON), r.UpdatedAt.UnixMilli())
	return err
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM journeys WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return err
}
