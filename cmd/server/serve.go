package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/zaqqye/seb_proctoring/internal/config"
	"github.com/zaqqye/seb_proctoring/internal/database"
	"github.com/zaqqye/seb_proctoring/internal/logging"
	"github.com/zaqqye/seb_proctoring/internal/proctoring"
	"github.com/zaqqye/seb_proctoring/internal/routes"
	"github.com/zaqqye/seb_proctoring/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// loadConfig applies flag overrides on top of the environment.
func loadConfig() *config.Config {
	cfg := config.Load()
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagPolicyFile != "" {
		cfg.PolicyFile = flagPolicyFile
	}
	return cfg
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logging.Setup(cfg.LogLevel)

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return err
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	if err := database.SeedAdmin(db, cfg); err != nil {
		return fmt.Errorf("admin seed failed: %w", err)
	}

	sessions := session.NewRegistry(cfg.SendTimeout)
	opts := proctoring.Options{
		Policy:     policy,
		Sessions:   sessions,
		Dispatcher: proctoring.NewDispatcher(sessions, cfg.DispatchWorkers, 0),
	}
	var journal *database.Journal
	if cfg.JournalEnabled {
		journal = database.NewJournal(db)
		opts.Journal = journal
	}
	engine, err := proctoring.NewEngine(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.Run(ctx)
	}()

	r := gin.Default()
	routes.Register(r, db, cfg, routes.Realtime{Engine: engine, Sessions: sessions, Journal: journal})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", srv.Addr, "max_attempts", policy.DefaultMaxAttempts, "journal", cfg.JournalEnabled)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		stop()
		wg.Wait()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server exited with error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown", "err", err)
	}
	// engine.Run flushes queued journal writes before returning
	wg.Wait()
	return nil
}
