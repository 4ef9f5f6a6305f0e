package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"clawpulse/internal/commgraph"
	"clawpulse/internal/config"
	"clawpulse/internal/dashboard"
	"clawpulse/internal/feed"
	"clawpulse/internal/notify"
	"clawpulse/internal/roster"
	sqlitestore "clawpulse/internal/store/sqlite"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath string
		addrFlag   string
		dbPathFlag string
		seed       bool
	)
	flags := pflag.NewFlagSet("clawpulse-server", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "", "path to config.toml (default: ~/.clawpulse/config.toml)")
	flags.StringVar(&addrFlag, "addr", "", "http listen address override")
	flags.StringVar(&dbPathFlag, "db", "", "sqlite database path override")
	flags.BoolVar(&seed, "seed", false, "report every roster agent idle on startup")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	addr := firstNonEmpty(addrFlag, cfg.Server.Addr, "127.0.0.1:8787")
	dbPath := filepath.Clean(firstNonEmpty(dbPathFlag, cfg.Server.DBPath, "clawpulse.db"))
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	store, err := sqlitestore.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite store: %w", err)
	}
	defer func() {
		_ = store.Close()
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}

	logger := log.Default()
	a, err := newApp(ctx, cfg, store, logger)
	if err != nil {
		return err
	}
	a.svc.Start(ctx)
	defer func() {
		cancel()
		a.svc.Wait()
	}()

	if seed {
		for _, agent := range a.svc.Roster() {
			if _, err := a.svc.RecordStatus(ctx, agent.ID, "idle", "seeded"); err != nil {
				logger.Printf("seed status agent=%s err=%v", agent.ID, err)
			}
		}
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           loggingMiddleware(logger, a.routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Printf(
		"clawpulse started addr=%s db=%s agents=%d config=%s",
		addr,
		dbPath,
		len(a.svc.Roster()),
		firstNonEmpty(cfg.Path, "(defaults)"),
	)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

type app struct {
	cfg    config.Config
	svc    *dashboard.Service
	bus    *feed.Bus
	logger *log.Logger
}

func newApp(ctx context.Context, cfg config.Config, store *sqlitestore.Store, logger *log.Logger) (*app, error) {
	bus := feed.New(cfg.Feed.Buffer)
	notes := notify.New(store, notify.Config{
		Capacity:     cfg.Notify.Capacity,
		DedupeWindow: durationMS(cfg.Notify.DedupeWindowMS, 10*time.Second),
		Logger:       logger,
	})
	if err := notes.Load(ctx); err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}

	svc := dashboard.New(store, bus, notes, dashboard.Config{
		Roster:          roster.Resolve(cfg.Agents),
		MessageLimit:    cfg.Server.MessageLimit,
		Canvas:          commgraph.Canvas{Width: cfg.Graph.Width, Height: cfg.Graph.Height},
		Layout:          cfg.Graph.Layout,
		RefreshInterval: durationMS(cfg.Server.RefreshIntervalMS, 5*time.Second),
	}, logger)

	return &app{cfg: cfg, svc: svc, bus: bus, logger: logger}, nil
}
