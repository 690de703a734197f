package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yanizio/adept-crm/internal/api"
	"github.com/yanizio/adept-crm/internal/database"
	"github.com/yanizio/adept-crm/internal/server"
	"github.com/yanizio/adept-crm/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference backend",
	Long: `Runs the CRM JSON API over MySQL.

Routes:
  POST /api/{entity}
  GET  /api/{entity}/exists?field=&value=
  GET  /api/{entity}/{id}
  PUT  /api/{entity}/{id}
  GET  /metrics, /healthz

The crm_record table is created on start when missing.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	log := env.log
	defer func() { _ = log.Sync() }()

	// Broken YAML forms fail the start.
	reg, err := definitions(env.cfg.Forms.Dir)
	if err != nil {
		return err
	}
	log.Infow("form definitions loaded", "count", len(reg.IDs()))

	//
	// ── 1.  Database ────────────────────────────────────────────────────
	//
	dbc := env.cfg.Database
	if dbc.DSN == "" {
		return errors.New("database.dsn is not set")
	}
	dsn := dbc.DSN
	if dbc.Password != "" {
		if dsn, err = database.WithPassword(dsn, dbc.Password); err != nil {
			return err
		}
	}
	log.Infow("connecting to database")
	db, err := database.OpenWithOptions(ctx, database.Options{DSN: dsn, MaxOpen: dbc.MaxOpen, MaxIdle: dbc.MaxIdle})
	if err != nil {
		return err
	}
	defer db.Close()

	st := store.New(db)
	if err := st.Migrate(ctx); err != nil {
		return err
	}
	log.Infow("database online")

	//
	// ── 2.  Router and server ───────────────────────────────────────────
	//
	router := api.NewRouter(api.New(st), api.RouterOptions{
		Logger:     log,
		ForceHTTPS: env.cfg.HTTP.ForceHTTPS,
	})
	srv := server.New(env.cfg.HTTP.ListenAddr, router)

	if err := server.Run(ctx, srv, log); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Infow("bye")
	return nil
}
