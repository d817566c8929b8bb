// Package main is the entry point for the Tower Madness server.
// It only handles dependency injection and server initialization.
// NO simulation logic belongs here.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MRamiBalles/TowerMadness/internal/domain/floor"
	"github.com/MRamiBalles/TowerMadness/internal/domain/simerr"
	"github.com/MRamiBalles/TowerMadness/internal/engine"
	"github.com/MRamiBalles/TowerMadness/internal/events"
	"github.com/MRamiBalles/TowerMadness/internal/infra/ai"
	"github.com/MRamiBalles/TowerMadness/internal/infra/cache"
	"github.com/MRamiBalles/TowerMadness/internal/infra/storage"
	"github.com/MRamiBalles/TowerMadness/internal/network"
	"github.com/MRamiBalles/TowerMadness/internal/platform/config"
	"github.com/MRamiBalles/TowerMadness/internal/platform/logger"
	"github.com/MRamiBalles/TowerMadness/internal/platform/metrics"
)

// brokerRequester lets the engine poll broker futures without importing ai.
type brokerRequester struct{ b *ai.Broker }

func (r brokerRequester) Request(key, description, style string) engine.AssetFuture {
	return r.b.Request(key, description, style)
}

func main() {
	appLogger := logger.NewLogger()
	if err := newRootCmd(appLogger).Execute(); err != nil {
		appLogger.Errorf("tower-server: %v", err)
		os.Exit(1)
	}
}

// flagOverrides are command-line values that win over the TOWER_* environment.
type flagOverrides struct {
	seed   uint64
	floors int
	addr   string
}

func newRootCmd(appLogger *logger.Logger) *cobra.Command {
	var flags flagOverrides

	rootCmd := &cobra.Command{
		Use:           "tower-server",
		Short:         "Run the Tower Madness simulation server",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			return run(cfg, appLogger)
		},
	}
	rootCmd.PersistentFlags().Uint64Var(&flags.seed, "seed", 0, "random seed, overrides TOWER_SEED (0 picks one from the clock)")
	rootCmd.PersistentFlags().IntVar(&flags.floors, "floors", 16, "run a uniform tower with this many floors instead of the Frontier Tower")
	rootCmd.PersistentFlags().StringVar(&flags.addr, "addr", ":8080", "listen address, overrides TOWER_ADDR")

	rootCmd.AddCommand(layoutCmd(&flags))
	return rootCmd
}

func layoutCmd(flags *flagOverrides) *cobra.Command {
	return &cobra.Command{
		Use:   "layout",
		Short: "Print the floors the server would build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, f := range layoutFor(cfg).Floors {
				fmt.Fprintf(out, "%3d  %-10s %s\n", f.Label, f.Theme, f.Name)
			}
			return nil
		},
	}
}

// load reads the environment and applies the flags the user actually set.
func (f *flagOverrides) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	set := cmd.Flags()
	if set.Changed("seed") {
		cfg.Seed = f.seed
	}
	if set.Changed("floors") {
		cfg.Layout = "uniform"
		cfg.Floors = f.floors
	}
	if set.Changed("addr") {
		cfg.Addr = f.addr
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func layoutFor(cfg config.Config) floor.Layout {
	if cfg.Layout == "uniform" {
		return floor.Uniform(cfg.Floors)
	}
	return floor.FrontierTower()
}

func run(cfg config.Config, appLogger *logger.Logger) error {
	sessionID := uuid.NewString()
	appLogger.Infof("Initializing Tower Madness session %s (%s, %s)", sessionID, cfg.DifficultyName, cfg.Layout)

	appLogger.Infof("Opening SQLite database %s...", cfg.DBPath)
	db, err := storage.InitSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("init sqlite: %w", err)
	}
	defer db.Close()
	eventRepo := storage.NewSQLiteEventRepository(db)
	leaderboard := storage.NewSQLiteLeaderboard(db)

	var blob engine.BlobStore
	switch cfg.Store {
	case "bolt":
		bolt, err := storage.OpenBolt(cfg.BoltPath)
		if err != nil {
			return fmt.Errorf("open bolt: %w", err)
		}
		defer bolt.Close()
		blob = bolt
	default:
		blob = storage.NewSQLiteSessionStore(db, "current")
	}
	sessions := engine.NewSessionStore(blob)

	eventLog := events.NewEventLog(storage.NewEventSink(eventRepo, sessionID))
	eventLog.SetLogger(appLogger)
	defer eventLog.Close()

	assetCache, err := cache.NewAssetCache(cfg.AssetCacheSize)
	if err != nil {
		return fmt.Errorf("asset cache: %w", err)
	}
	budget := ai.NewBudgetGate(cfg.DailyBudgetUSD, cfg.MonthlyBudgetUSD)
	generator := ai.NewGenerator(appLogger,
		ai.NewAnthropicProvider(cfg.AnthropicKey, budget),
		ai.NewOpenAIProvider(cfg.OpenAIKey, budget),
	)
	var broker *ai.Broker
	var requester engine.AssetRequester
	if generator.Available() {
		broker = ai.NewBroker(generator, assetCache, cfg.AssetTimeout, appLogger)
		defer broker.Close()
		requester = brokerRequester{broker}
		appLogger.Infof("Content generation on, budget %s", budget.GetStatus())
	} else {
		appLogger.Info("No LLM key configured; sprites and banners stay on defaults.")
	}

	tuning := cfg.Tuning()
	layout := layoutFor(cfg)
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	eng := engine.NewEngine(engine.Config{
		Layout:         layout,
		Difficulty:     cfg.Difficulty(),
		Seed:           seed,
		InputQueueSize: tuning.InputQueueSize,
		Assets:         requester,
	}, eventLog, appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Restore {
		restoreSession(ctx, eng, sessions, appLogger)
	}

	hub := network.NewHub(eng, tuning, appLogger)
	ticker := engine.NewTicker(eng, cfg.TickRate, appLogger, hub.BroadcastSnapshot)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/api/state", stateHandler(eng, appLogger))
	mux.HandleFunc("/metrics", metrics.Handler())
	mux.HandleFunc("/metrics/prom", metrics.PrometheusHandler())
	network.NewAudienceBridge(eng, hub, appLogger).RegisterRoutes(mux)
	replay := network.NewReplayHandler(eventLog, sessionID, appLogger).
		WithRecap(storage.NewReconstructor(eventRepo)).
		WithLeaderboard(leaderboard)
	if broker != nil {
		replay.WithAssets(broker)
	}
	replay.RegisterRoutes(mux)

	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	hub.StartEventPoller(gctx, eventLog, 0)
	g.Go(func() error {
		ticker.Start(gctx)
		return nil
	})
	g.Go(func() error {
		autosave(gctx, eng, sessions, cfg.AutosaveInterval, appLogger)
		return nil
	})
	g.Go(func() error {
		appLogger.Infof("HTTP API & WS Server listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()
	appLogger.Info("Shutting down...")

	// the ticker has stopped, so this save sees the final state
	finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	saveSession(finalCtx, eng, sessions, appLogger)
	submitScore(finalCtx, eng, leaderboard, sessionID, appLogger)
	return runErr
}

func stateHandler(eng *engine.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(eng.Latest()); err != nil {
			log.Warnf("Failed to write /api/state: %v", err)
		}
	}
}

// restoreSession resumes the last saved session. Anything but a clean restore leaves
// the fresh session running.
func restoreSession(ctx context.Context, eng *engine.Engine, sessions engine.PersistenceStore, log *logger.Logger) {
	st, err := sessions.Load(ctx)
	switch {
	case errors.Is(err, simerr.ErrNotFound):
		log.Info("No saved session; starting fresh.")
		return
	case errors.Is(err, simerr.ErrIncompatibleVersion):
		log.Warnf("Saved session ignored: %v", err)
		return
	case err != nil:
		log.Errorf("Failed to load session: %v", err)
		return
	}
	if err := eng.Restore(st); err != nil {
		log.Errorf("Failed to restore session: %v", err)
	}
}

func autosave(ctx context.Context, eng *engine.Engine, sessions engine.PersistenceStore, every time.Duration, log *logger.Logger) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			saveSession(ctx, eng, sessions, log)
		}
	}
}

func saveSession(ctx context.Context, eng *engine.Engine, sessions engine.PersistenceStore, log *logger.Logger) {
	st, err := eng.Export()
	if err != nil {
		log.Errorf("Failed to export session: %v", err)
		return
	}
	if err := sessions.Save(ctx, st); err != nil {
		log.Errorf("Failed to save session: %v", err)
	}
}

func submitScore(ctx context.Context, eng *engine.Engine, lb storage.Leaderboard, sessionID string, log *logger.Logger) {
	snap := eng.Latest()
	if snap.Score.Delivered == 0 {
		return
	}
	name, _ := os.Hostname()
	err := lb.Submit(ctx, storage.ScoreEntry{
		SessionID:  sessionID,
		Name:       name,
		Score:      snap.Score.Total,
		Delivered:  snap.Score.Delivered,
		Difficulty: eng.Difficulty().Name,
		RecordedAt: time.Now(),
	})
	if err != nil {
		log.Errorf("Failed to submit score: %v", err)
	}
}
