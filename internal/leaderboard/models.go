package leaderboard

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("leaderboard entry not found")

// Entry is one scored answer set handed to the leaderboard and progress
// services.
type Entry struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	DisplayName  string    `json:"display_name"`
	Stakeholder  string    `json:"stakeholder,omitempty"`
	Level        string    `json:"level"`
	Aspirational bool      `json:"is_aspirational"`
	Score        float64   `json:"score"`
	Gleams       float64   `json:"gleams"`
	Alicorns     float64   `json:"alicorns"`
	Timestamp    time.Time `json:"timestamp"`
}

// Sink receives completed entries.
type Sink interface {
	Name() string
	Submit(ctx context.Context, e Entry) error
}

type TopOpts struct {
	Limit int
	Level string
	// Aspirational filters by pass when non-nil.
	Aspirational *bool
}
