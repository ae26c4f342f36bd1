package leaderboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

var ErrRejected = errors.New("progress service rejected submission")

// Client posts entries to the external progress service.
type Client struct {
	base string
	http *http.Client
}

type ClientConfig struct {
	BaseURL string
	// TokenURL enables the OAuth2 client-credentials flow when set.
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	h := &http.Client{}
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		h = cc.Client(context.Background())
	}
	h.Timeout = cfg.Timeout
	if h.Timeout <= 0 {
		h.Timeout = 10 * time.Second
	}
	return &Client{base: strings.TrimRight(cfg.BaseURL, "/"), http: h}
}

func (c *Client) Name() string { return "progress" }

type progressPayload struct {
	DisplayName    string  `json:"displayName"`
	Score          float64 `json:"score"`
	Level          string  `json:"level"`
	IsAspirational bool    `json:"isAspirational"`
	Timestamp      string  `json:"timestamp"`
	Gleams         float64 `json:"gleams"`
	Alicorns       float64 `json:"alicorns"`
	Stakeholder    string  `json:"stakeholder,omitempty"`
	SessionID      string  `json:"sessionId"`
	EntryID        string  `json:"entryId"`
}

// Submit posts e to {base}/api/value-journey/progress.
func (c *Client) Submit(ctx context.Context, e Entry) error {
	body, err := json.Marshal(progressPayload{
		DisplayName:    e.DisplayName,
		Score:          e.Score,
		Level:          e.Level,
		IsAspirational: e.Aspirational,
		Timestamp:      e.Timestamp.UTC().Format(time.RFC3339),
		Gleams:         e.Gleams,
		Alicorns:       e.Alicorns,
		Stakeholder:    e.Stakeholder,
		SessionID:      e.SessionID,
		EntryID:        e.ID,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/value-journey/progress", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post progress: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return fmt.Errorf("%w: %s", ErrRejected, res.Status)
	}
	return nil
}
