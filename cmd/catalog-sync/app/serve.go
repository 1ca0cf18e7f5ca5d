package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	syncapp "github.com/stacklok/catalog-sync-server/internal/app"
)

// Long enough for in-flight store writes to reach their next checkpoint
const defaultGracefulTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sync API server",
		Long: `Start the HTTP API used to start, poll, list and cancel synchronization executions.

Executions left pending or running by a previous process are marked failed on startup.`,
		RunE: runServe,
	}
	cmd.Flags().String("address", ":8080", "Address to listen on")
	cmd.Flags().Bool("migrate", false, "Apply pending database migrations before serving")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	address, _ := cmd.Flags().GetString("address")
	migrate, _ := cmd.Flags().GetBool("migrate")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := syncapp.NewSyncApp(ctx,
		syncapp.WithConfig(cfg),
		syncapp.WithAddress(address),
		syncapp.WithMigrations(migrate),
	)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if stopErr := app.Stop(defaultGracefulTimeout); stopErr != nil {
			slog.Error("Shutdown failed", "error", stopErr)
		}
		return err
	case <-ctx.Done():
	}

	return app.Stop(defaultGracefulTimeout)
}
