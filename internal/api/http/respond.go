package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mind-engage/valuejourney/internal/catalog"
	"github.com/mind-engage/valuejourney/internal/journey"
	"github.com/mind-engage/valuejourney/internal/leaderboard"
	"github.com/mind-engage/valuejourney/internal/wizard"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps domain errors onto status codes. Anything unrecognised is
// reported as a 500 without its message.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, journey.ErrNotFound),
		errors.Is(err, leaderboard.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, wizard.ErrIllegalTransition),
		errors.Is(err, wizard.ErrAdvancing),
		errors.Is(err, wizard.ErrUnanswered),
		errors.Is(err, journey.ErrNoQuestion):
		return http.StatusConflict
	case errors.Is(err, wizard.ErrInvalidAnswer),
		errors.Is(err, wizard.ErrInvalidDuration),
		errors.Is(err, wizard.ErrUnknownStakeholder),
		errors.Is(err, wizard.ErrUnknownLevel),
		errors.Is(err, wizard.ErrAspirationalNotAbove),
		errors.Is(err, wizard.ErrNotEarlierLevel),
		errors.Is(err, catalog.ErrUnknownLevel),
		errors.Is(err, journey.ErrUnknownEvent),
		errors.Is(err, journey.ErrMissingID),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, wizard.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")
