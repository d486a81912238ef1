package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Maxopoly/ExilePearl/internal/config"
	"github.com/Maxopoly/ExilePearl/internal/engine"
	"github.com/Maxopoly/ExilePearl/internal/gate"
	"github.com/Maxopoly/ExilePearl/internal/logging"
	"github.com/Maxopoly/ExilePearl/internal/metrics"
	"github.com/Maxopoly/ExilePearl/internal/registry"
	"github.com/Maxopoly/ExilePearl/internal/server"
	"github.com/Maxopoly/ExilePearl/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server and decay timer",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log)

	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return err
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	reg, err := registry.New()
	if err != nil {
		return err
	}
	m := metrics.New()

	eng, err := engine.New(engine.Options{
		Registry: reg,
		Gate:     gate.New(log, db, m),
		Store:    db,
		Names:    db,
		Settings: cfg.Pearl,
		Metrics:  m,
		Logger:   log,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Load(ctx); err != nil {
		return err
	}
	eng.StartDecayTimer(cfg.Pearl.DecayInterval)
	defer eng.Stop()

	addr := cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.New(db, eng, m, log, VersionString()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("db", dbPath).
			Int("health_start", cfg.Pearl.HealthStart).
			Int("health_decay", cfg.Pearl.HealthDecay).
			Dur("decay_interval", cfg.Pearl.DecayInterval).
			Msg("exilepearl serving")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// loadConfig reads --config, or EXILEPEARL_CONFIG when the flag is unset.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("EXILEPEARL_CONFIG")
	}
	return config.Load(path)
}

func resolveDBPath(cfg config.Config) (string, error) {
	if cfg.Database.Path != "" {
		return cfg.Database.Path, nil
	}
	path, err := store.DefaultDBPath()
	if err != nil {
		return "", fmt.Errorf("resolve db path: %w", err)
	}
	return path, nil
}

// openDB is a helper that opens the database for CLI commands.
func openDB() (*store.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	path, err := resolveDBPath(cfg)
	if err != nil {
		return nil, err
	}
	return store.Open(path)
}
