package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/valuejourney/internal/leaderboard"
)

type Board interface {
	Top(ctx context.Context, opts leaderboard.TopOpts) ([]leaderboard.Entry, error)
	Delete(ctx context.Context, id string) error
}

type Replayer interface {
	Replay(ctx context.Context, limit int) (int, error)
}

// GET /leaderboard?limit=10&level=L2&aspirational=false
func TopHandler(b Board) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := leaderboard.TopOpts{Level: q.Get("level")}
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, fmt.Errorf("%w: limit %q", errBadRequest, raw))
				return
			}
			opts.Limit = n
		}
		if raw := q.Get("aspirational"); raw != "" {
			asp, err := strconv.ParseBool(raw)
			if err != nil {
				writeError(w, fmt.Errorf("%w: aspirational %q", errBadRequest, raw))
				return
			}
			opts.Aspirational = &asp
		}
		out, err := b.Top(r.Context(), opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// DELETE /leaderboard/{entryID}
func DeleteEntryHandler(b Board) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := b.Delete(r.Context(), chi.URLParam(r, "entryID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /leaderboard/replay?limit=100 retries parked submissions now.
func ReplayHandler(p Replayer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		n, err := p.Replay(r.Context(), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"delivered": n})
	}
}
