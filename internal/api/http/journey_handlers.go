package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/mind-engage/valuejourney/internal/journey"
	"github.com/mind-engage/valuejourney/internal/rbac"
)

// Every journey belongs to the token subject; there is no journey id in the
// path.

// POST /journey?fresh=true  { "display_name": "..." }
func OpenJourneyHandler(svc *journey.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			DisplayName string `json:"display_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, fmt.Errorf("%w: bad json", errBadRequest))
			return
		}
		fresh, _ := strconv.ParseBool(r.URL.Query().Get("fresh"))
		v, err := svc.Open(r.Context(), rbac.SubjectFromContext(r.Context()), strings.TrimSpace(req.DisplayName), fresh)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// GET /journey
func GetJourneyHandler(svc *journey.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.View(r.Context(), rbac.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// DELETE /journey forgets the saved journey.
func ForgetJourneyHandler(svc *journey.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Forget(r.Context(), rbac.SubjectFromContext(r.Context())); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /journey/events  { "type": "answer", "value": 4 }
func PostEventHandler(svc *journey.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev journey.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			writeError(w, fmt.Errorf("%w: bad json", errBadRequest))
			return
		}
		v, err := svc.Apply(r.Context(), rbac.SubjectFromContext(r.Context()), ev)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// GET /journey/question
func CurrentQuestionHandler(svc *journey.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := svc.CurrentQuestion(r.Context(), rbac.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

// GET /journey/results
func ResultsHandler(svc *journey.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Results(r.Context(), rbac.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
