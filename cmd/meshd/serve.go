package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kryptomesh/meshd/internal/config"
	"github.com/kryptomesh/meshd/internal/constants"
	"github.com/kryptomesh/meshd/pkg/meshcrypto"
	"github.com/kryptomesh/meshd/pkg/meshlog"
	"github.com/kryptomesh/meshd/pkg/meshmetrics"
	"github.com/kryptomesh/meshd/pkg/meshserver"
	"github.com/kryptomesh/meshd/pkg/store"
)

func newServeCmd() *cobra.Command {
	cfg := config.Defaults()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the mesh chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.ApplyEnv(cmd.Flags()); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cfg.BindFlags(cmd.Flags())
	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	log := meshlog.New(os.Stdout, meshlog.ParseLevel(cfg.LogLevel), meshlog.ParseFormat(cfg.LogFormat))

	identity, err := meshcrypto.LoadOrGenerateServerKey(cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("server identity: %w", err)
	}
	log.Info().Str("fingerprint", meshcrypto.KeyFingerprint(identity.PublicKey())).Msg("server identity ready")

	var (
		users    store.UserStore
		messages store.MessageStore
	)
	if cfg.DataDir != "" {
		pebbleStore, err := store.OpenPebbleStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open data dir %s: %w", cfg.DataDir, err)
		}
		users, messages = pebbleStore, pebbleStore
		log.Info().Str("data_dir", cfg.DataDir).Msg("using durable pebble store")
	} else {
		users, messages = store.NewMemStore(), store.NewMemStore()
		log.Warn().Msg("no -data-dir configured; using in-memory store (state lost on restart)")
	}

	metrics := meshmetrics.New()
	srv := meshserver.New(cfg, identity, users, messages, metrics, log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Str("metrics_addr", cfg.MetricsAddr).Msg("listening")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received, draining connections")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownDrainTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown did not complete cleanly")
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}
