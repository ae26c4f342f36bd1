package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	authmw "github.com/mind-engage/valuejourney/internal/auth/middleware"
	"github.com/mind-engage/valuejourney/internal/catalog"
	"github.com/mind-engage/valuejourney/internal/config"
	"github.com/mind-engage/valuejourney/internal/db"
	"github.com/mind-engage/valuejourney/internal/journey"
	"github.com/mind-engage/valuejourney/internal/leaderboard"
	"github.com/mind-engage/valuejourney/internal/metrics"
	syncx "github.com/mind-engage/valuejourney/internal/sync"
	"github.com/mind-engage/valuejourney/internal/wizard"
)

type testServer struct {
	h     http.Handler
	board *leaderboard.SQLStore
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, authmw.SeedAdmin(ctx, conn, "admin", string(hash)))

	reg := prometheus.NewRegistry()
	met, err := metrics.New(reg)
	require.NoError(t, err)

	cat := catalog.Default()
	board := leaderboard.NewSQLStore(conn)
	pub := leaderboard.NewPublisher([]leaderboard.Sink{board},
		leaderboard.WithOutbox(syncx.NewEventRepo(conn)),
		leaderboard.WithMetrics(met))
	svc, err := journey.NewService(wizard.NewMachine(cat), journey.NewSQLStore(conn),
		journey.WithPublisher(pub),
		journey.WithMetrics(met),
		journey.WithAdvanceDelay(0))
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	h := NewRouter(Deps{
		Config:   config.Config{EnableGuestAuth: true, CORSOrigins: []string{"http://localhost:3000"}},
		Auth:     authmw.NewAuthService("test-secret"),
		DB:       conn,
		Catalog:  cat,
		Journeys: svc,
		Board:    board,
		Replayer: pub,
		Gatherer: reg,
	})
	return testServer{h: h, board: board}
}

func (s testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.h.ServeHTTP(rr, r)
	return rr
}

func (s testServer) token(t *testing.T, path, body string) string {
	t.Helper()
	rr := s.do(t, http.MethodPost, path, "", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	require.NotEmpty(t, out.AccessToken)
	return out.AccessToken
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}

func (s testServer) event(t *testing.T, tok, body string) journey.View {
	t.Helper()
	rr := s.do(t, http.MethodPost, "/journey/events", tok, body)
	require.Equal(t, http.StatusOK, rr.Code, "%s: %s", body, rr.Body.String())
	return decode[journey.View](t, rr)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/readyz", "", "").Code)
}

func TestCatalogRoutes(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/catalog/levels", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	levels := decode[[]map[string]any](t, rr)
	require.Len(t, levels, 9)
	assert.Equal(t, "L0", levels[0]["id"])
	assert.EqualValues(t, 3, levels[0]["question_count"])

	rr = s.do(t, http.MethodGet, "/catalog/levels/L0/questions?stakeholder=investor", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	qs := decode[[]struct {
		Code    string `json:"code"`
		Text    string `json:"text"`
		Options []int  `json:"options"`
	}](t, rr)
	require.Len(t, qs, 3)
	assert.Equal(t, "Q1", qs[0].Code)
	assert.Equal(t, "How clearly can the founders describe the problem they want to solve?", qs[0].Text)
	opts := append([]int(nil), qs[0].Options...)
	sort.Ints(opts)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, opts)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/catalog/levels/L99/questions", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/catalog/levels/L0/questions?stakeholder=pirate", "", "").Code)
}

func TestJourneyRequiresToken(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/journey", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/leaderboard", "", "").Code)
}

func TestJourneyOverHTTP(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "/auth/guest", "")

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/journey", tok, "").Code)

	rr := s.do(t, http.MethodPost, "/journey", tok, `{"display_name":"  Ada  "}`)
	require.Equal(t, http.StatusOK, rr.Code)
	v := decode[journey.View](t, rr)
	assert.Equal(t, "Ada", v.DisplayName)
	assert.Equal(t, wizard.StepWelcome, v.Step)

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodGet, "/journey/question", tok, "").Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/journey/events", tok, `{"type":"lock_stakeholder"}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/journey/events", tok, `{"type":"dance"}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/journey/events", tok, `{`).Code)

	s.event(t, tok, `{"type":"start"}`)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/journey/events", tok, `{"type":"select_stakeholder","stakeholder":"pirate"}`).Code)
	s.event(t, tok, `{"type":"select_stakeholder","stakeholder":"founder"}`)
	s.event(t, tok, `{"type":"lock_stakeholder"}`)
	s.event(t, tok, `{"type":"select_current_level","level":"L1"}`)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/journey/events", tok, `{"type":"select_aspirational_level","level":"L0"}`).Code)
	v = s.event(t, tok, `{"type":"select_aspirational_level","level":"L2"}`)
	assert.Equal(t, wizard.StepAssessment, v.Step)

	rr = s.do(t, http.MethodGet, "/journey/question", tok, "")
	require.Equal(t, http.StatusOK, rr.Code)
	q := decode[journey.QuestionView](t, rr)
	assert.Equal(t, "L1", q.Level)
	assert.Equal(t, 0, q.Index)
	assert.Len(t, q.Options, 5)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/journey/events", tok, `{"type":"answer","value":9}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/journey/events", tok, `{"type":"pause","minutes":1099511627776}`).Code)
	for i := 0; i < 3; i++ {
		v = s.event(t, tok, `{"type":"answer","value":5}`)
	}
	require.NotNil(t, v.Completed)
	assert.Equal(t, "L1", v.Completed.Level)
	for i := 0; i < 4; i++ {
		v = s.event(t, tok, `{"type":"answer","value":4}`)
	}
	assert.Equal(t, wizard.StepResults, v.Step)

	rr = s.do(t, http.MethodGet, "/journey/results", tok, "")
	require.Equal(t, http.StatusOK, rr.Code)
	res := decode[journey.Results](t, rr)
	assert.InDelta(t, -20.0, res.Summary.Gap, 1e-9)
	require.Len(t, res.Earlier, 1)
	assert.Equal(t, "L0", res.Earlier[0].ID)

	// Submissions land asynchronously.
	var board []leaderboard.Entry
	require.Eventually(t, func() bool {
		rr := s.do(t, http.MethodGet, "/leaderboard", tok, "")
		if rr.Code != http.StatusOK {
			return false
		}
		board = nil
		_ = json.NewDecoder(rr.Body).Decode(&board)
		return len(board) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Ada", board[0].DisplayName)
	assert.Equal(t, "L2", board[0].Level, "ranked by gleams")
	assert.Equal(t, "L1", board[1].Level)

	rr = s.do(t, http.MethodGet, "/leaderboard?level=L2&aspirational=true", tok, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]leaderboard.Entry](t, rr), 1)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/leaderboard?limit=many", tok, "").Code)

	// Reopening with fresh starts over for the same subject.
	rr = s.do(t, http.MethodPost, "/journey?fresh=true", tok, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, wizard.StepWelcome, decode[journey.View](t, rr).Step)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/journey", tok, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/journey", tok, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/journey", tok, "").Code)

	rr = s.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "journey_answers_total")
}

func TestLeaderboardModeration(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.board.Submit(ctx, leaderboard.Entry{
		ID: "e1", SessionID: "guest|x", DisplayName: "Spam", Level: "L1", Score: 99, Gleams: 99,
		Timestamp: time.Now(),
	}))

	player := s.token(t, "/auth/guest", "")
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodDelete, "/leaderboard/e1", player, "").Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/leaderboard/replay", player, "").Code)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/auth/login", "", `{"username":"admin","password":"wrong"}`).Code)
	admin := s.token(t, "/auth/login", `{"username":"admin","password":"s3cret"}`)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/leaderboard/e1", admin, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/leaderboard/e1", admin, "").Code)

	rr := s.do(t, http.MethodPost, "/leaderboard/replay", admin, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]int{"delivered": 0}, decode[map[string]int](t, rr))
}
