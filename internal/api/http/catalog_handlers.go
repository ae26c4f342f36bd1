package http

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/valuejourney/internal/catalog"
	"github.com/mind-engage/valuejourney/internal/shuffle"
)

// GET /catalog/levels
func ListLevelsHandler(cat *catalog.Catalog) http.HandlerFunc {
	type row struct {
		catalog.Level
		QuestionCount int     `json:"question_count"`
		Ceiling       float64 `json:"ceiling"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		levels := cat.Levels()
		out := make([]row, 0, len(levels))
		for _, l := range levels {
			out = append(out, row{Level: l, QuestionCount: cat.QuestionCount(l.ID), Ceiling: cat.Ceiling(l.ID)})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /catalog/levels/{levelID}/questions?stakeholder=investor
func ListQuestionsHandler(cat *catalog.Catalog) http.HandlerFunc {
	type row struct {
		Code     string           `json:"code"`
		Category catalog.Category `json:"category"`
		Text     string           `json:"text"`
		Options  []int            `json:"options"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		levelID := chi.URLParam(r, "levelID")
		if _, ok := cat.Level(levelID); !ok {
			writeError(w, fmt.Errorf("%w: %q", catalog.ErrUnknownLevel, levelID))
			return
		}
		st := catalog.DefaultStakeholder
		if raw := r.URL.Query().Get("stakeholder"); raw != "" {
			var ok bool
			if st, ok = catalog.ParseStakeholder(raw); !ok {
				writeError(w, fmt.Errorf("%w: stakeholder %q", errBadRequest, raw))
				return
			}
		}
		qs := cat.Questions(levelID)
		out := make([]row, 0, len(qs))
		for _, q := range qs {
			out = append(out, row{
				Code:     q.Code,
				Category: q.Category,
				Text:     q.TextFor(st),
				Options:  shuffle.Options(levelID, q.Code, st),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}
