// Command docstored runs the dual-surface document store server: the
// HTTP JSON API, the WebDAV surface, the filesystem watcher, and the
// background reconciler, all sharing one document engine and one sync
// coordinator.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/derezo/docstore/internal/api"
	"github.com/derezo/docstore/internal/config"
	"github.com/derezo/docstore/internal/docengine"
	"github.com/derezo/docstore/internal/logging"
	"github.com/derezo/docstore/internal/reconcile"
	"github.com/derezo/docstore/internal/store"
	"github.com/derezo/docstore/internal/sync"
	"github.com/derezo/docstore/internal/watcher"
	"github.com/derezo/docstore/internal/webdav"
)

// Version is set at build time via ldflags.
var Version = "dev"

// shutdownGrace bounds how long in-flight requests get to finish when a
// shutdown signal arrives.
const shutdownGrace = 10 * time.Second

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "docstored",
		Short: "Run the document store server",
		Long: `docstored serves a Markdown document store across two surfaces — a
JSON API and a WebDAV mount — backed by one relational database and one
on-disk file tree that a background watcher and reconciler keep in sync.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to docstored.toml (defaults to ./docstored.toml or ~/.config/docstored/docstored.toml)")

	root.AddCommand(versionCmd())
	root.AddCommand(generateConfigCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the docstored version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("docstored %s\n", Version)
			return nil
		},
	}
}

func generateConfigCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "generate-config",
		Short: "Write a commented docstored.toml with default values",
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.GenerateConfig(out)
		},
	}
	cmd.Flags().StringVar(&out, "out", "docstored.toml", "Output path")
	return cmd
}

func runServe(configPath string) error {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("listenAddr", cfg.Server.ListenAddr).Str("dataDir", cfg.Data.DataDir).Msg("starting docstored")

	db, err := store.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	coord := sync.New(cfg.Sync.RecentlyWrittenTTL, cfg.Sync.DebounceWindow)
	defer coord.Stop()

	engine := docengine.New(db, cfg.Data.DataDir, coord)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	w, err := watcher.New(cfg.Data.DataDir, db, engine, coord, log)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	go func() {
		if err := w.Run(ctx); err != nil {
			log.Error().Err(err).Msg("watcher stopped")
		}
	}()

	reconciler := reconcile.New(cfg.Data.DataDir, db, engine, cfg.Sync.ReconcileInterval, log)
	go reconciler.Run(ctx)

	r := chi.NewRouter()

	webdavHandler := &webdav.Handler{DB: db, Engine: engine, Coord: coord, DataDir: cfg.Data.DataDir, Log: log}
	webdavHandler.Mount(r)

	apiHandler := &api.Handler{
		DB:                db,
		Engine:            engine,
		Coord:             coord,
		JWTSecret:         []byte(cfg.Auth.JWTSecret),
		RefreshCookieName: cfg.Auth.RefreshCookieName,
		Log:               log,
	}
	apiHandler.Mount(r)

	srv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: r}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}
}
