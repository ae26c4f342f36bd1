package http

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mind-engage/valuejourney/internal/auth"
	authmw "github.com/mind-engage/valuejourney/internal/auth/middleware"
	"github.com/mind-engage/valuejourney/internal/catalog"
	"github.com/mind-engage/valuejourney/internal/config"
	"github.com/mind-engage/valuejourney/internal/journey"
	"github.com/mind-engage/valuejourney/internal/logging"
	"github.com/mind-engage/valuejourney/internal/rbac"
)

type Deps struct {
	Config   config.Config
	Auth     *authmw.AuthService
	DB       *sql.DB
	Catalog  *catalog.Catalog
	Journeys *journey.Service
	Board    Board
	Replayer Replayer
	Logger   *zap.Logger
	// Gatherer backs /metrics; nil leaves the route unmounted.
	Gatherer prometheus.Gatherer
}

func NewRouter(d Deps) chi.Router {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logging.Middleware(d.Logger), middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/guest", auth.GuestLoginHandler(d.Auth, d.Config))
	r.Post("/auth/login", authmw.LoginHandler(d.Auth, d.DB))

	r.Get("/catalog/levels", ListLevelsHandler(d.Catalog))
	r.Get("/catalog/levels/{levelID}/questions", ListQuestionsHandler(d.Catalog))

	// Protected API (JWT → subject and role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(d.Auth))

		pr.Route("/journey", func(jr chi.Router) {
			jr.Use(rbac.Require(rbac.PermJourneyPlay))
			jr.Post("/", OpenJourneyHandler(d.Journeys))
			jr.Get("/", GetJourneyHandler(d.Journeys))
			jr.Delete("/", ForgetJourneyHandler(d.Journeys))
			jr.Post("/events", PostEventHandler(d.Journeys))
			jr.Get("/question", CurrentQuestionHandler(d.Journeys))
			jr.Get("/results", ResultsHandler(d.Journeys))
		})

		pr.With(rbac.RequireAny(rbac.PermLeaderboardView, rbac.PermLeaderboardModerate)).
			Get("/leaderboard", TopHandler(d.Board))

		// Moderation re-reads the role from the users table.
		pr.Group(func(ar chi.Router) {
			ar.Use(authmw.AttachRoleFromDB(d.DB), rbac.Require(rbac.PermLeaderboardModerate))
			ar.Delete("/leaderboard/{entryID}", DeleteEntryHandler(d.Board))
			ar.Post("/leaderboard/replay", ReplayHandler(d.Replayer))
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", ReadyHandler(d.DB))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// GET /readyz reports whether the database answers.
func ReadyHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
