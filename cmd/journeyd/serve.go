package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	api "github.com/mind-engage/valuejourney/internal/api/http"
	authmw "github.com/mind-engage/valuejourney/internal/auth/middleware"
	"github.com/mind-engage/valuejourney/internal/config"
	"github.com/mind-engage/valuejourney/internal/db"
	"github.com/mind-engage/valuejourney/internal/journey"
	"github.com/mind-engage/valuejourney/internal/leaderboard"
	"github.com/mind-engage/valuejourney/internal/logging"
	"github.com/mind-engage/valuejourney/internal/metrics"
	syncx "github.com/mind-engage/valuejourney/internal/sync"
	"github.com/mind-engage/valuejourney/internal/wizard"
)

const version = "1.0.0"

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	printStartUpBanner()

	log, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	// --- DB ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer dbh.Close()
	if err := authmw.SeedAdmin(openCtx, dbh, cfg.AdminUser, cfg.AdminPassHash); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}
	met, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Leaderboard sinks ---
	board := leaderboard.NewSQLStore(dbh)
	sinks := []leaderboard.Sink{board}
	if cfg.ProgressURL != "" {
		sinks = append(sinks, leaderboard.NewClient(leaderboard.ClientConfig{
			BaseURL:      cfg.ProgressURL,
			TokenURL:     cfg.ProgressTokenURL,
			ClientID:     cfg.ProgressClientID,
			ClientSecret: cfg.ProgressClientSecret,
		}))
	}
	pub := leaderboard.NewPublisher(sinks,
		leaderboard.WithOutbox(syncx.NewEventRepo(dbh)),
		leaderboard.WithLogger(log.Named("leaderboard")),
		leaderboard.WithMetrics(met))

	svc, err := journey.NewService(
		wizard.NewMachine(cat, wizard.WithStreakWindow(cfg.StreakWindow)),
		journey.NewSQLStore(dbh),
		journey.WithPublisher(pub),
		journey.WithLogger(log.Named("journey")),
		journey.WithMetrics(met),
		journey.WithAdvanceDelay(cfg.AutoAdvance),
		journey.WithCacheSize(cfg.SessionCacheSize),
	)
	if err != nil {
		return fmt.Errorf("journey service: %w", err)
	}
	defer svc.Close()

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(api.Deps{
			Config:   cfg,
			Auth:     authmw.NewAuthService(cfg.AuthHMACSecret),
			DB:       dbh,
			Catalog:  cat,
			Journeys: svc,
			Board:    board,
			Replayer: pub,
			Logger:   log.Named("http"),
			Gatherer: prometheus.DefaultGatherer,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("mode", string(cfg.Mode)),
			zap.String("db", cfg.DBDriver),
			zap.Int("sinks", len(sinks)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return pub.Run(gctx, cfg.OutboxInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func printStartUpBanner() {
	myFigure := figure.NewFigure("VALUE JOURNEY", "", true)
	myFigure.Print()

	fmt.Println("======================================================")
	fmt.Printf("Value Journey Quest (v%s)\n\n", version)
}
