package app

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	syncapp "github.com/stacklok/catalog-sync-server/internal/app"
	"github.com/stacklok/catalog-sync-server/internal/config"
	"github.com/stacklok/catalog-sync-server/internal/status"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one synchronization execution in the foreground",
		Long: `Run a configured sync configuration, or an ad hoc set of stores against one
source integration, and print the per-store report. The command exits non-zero
unless the execution completes.

Examples:
  catalog-sync run --config config.yaml --sync-config nightly-rp
  catalog-sync run --config config.yaml --integration rp-main --store 101 --store 102`,
		RunE: runRun,
	}
	cmd.Flags().String("sync-config", "", "ID of the sync configuration to run")
	cmd.Flags().String("integration", "", "Source integration for an ad hoc run")
	cmd.Flags().Int64Slice("store", nil, "Store id for an ad hoc run (repeatable)")
	cmd.Flags().Bool("force", false, "Bypass the fetch cache")
	cmd.Flags().Bool("skip-comparison", false, "Replace catalogs without computing change statistics")
	cmd.Flags().Int("batch-size", 0, "Number of stores synchronized concurrently")
	cmd.MarkFlagsMutuallyExclusive("sync-config", "integration")
	cmd.MarkFlagsOneRequired("sync-config", "integration")
	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sc, err := syncConfigurationFromFlags(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := syncapp.NewSyncApp(ctx, syncapp.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	defer func() { _ = app.Stop(defaultGracefulTimeout) }()

	exec, err := app.Orchestrator().Run(ctx, sc)
	if err != nil {
		return err
	}

	if err := renderExecution(cmd.OutOrStdout(), exec); err != nil {
		return err
	}
	if exec.Status != status.StatusCompleted {
		return fmt.Errorf("execution %s finished %s: %s", exec.ID, exec.Status, exec.ErrorMessage)
	}
	return nil
}

// syncConfigurationFromFlags returns the named sync configuration with flag
// overrides applied, or an ad hoc one without an id
func syncConfigurationFromFlags(cmd *cobra.Command, cfg *config.Config) (*config.SyncConfiguration, error) {
	flags := cmd.Flags()
	id, _ := flags.GetString("sync-config")

	var sc config.SyncConfiguration
	if id != "" {
		found, ok := cfg.FindSyncConfiguration(id)
		if !ok {
			return nil, fmt.Errorf("sync configuration %q not found", id)
		}
		sc = *found
	} else {
		integration, _ := flags.GetString("integration")
		if _, ok := cfg.FindIntegration(integration); !ok {
			return nil, fmt.Errorf("integration %q not found", integration)
		}
		stores, _ := flags.GetInt64Slice("store")
		if len(stores) == 0 {
			return nil, fmt.Errorf("at least one --store is required for an ad hoc run")
		}
		sc = config.SyncConfiguration{SourceIntegrationID: integration, StoreIDs: stores}
	}

	if flags.Changed("force") {
		sc.Options.ForceSync, _ = flags.GetBool("force")
	}
	if flags.Changed("skip-comparison") {
		sc.Options.SkipComparison, _ = flags.GetBool("skip-comparison")
	}
	if flags.Changed("batch-size") {
		sc.Options.BatchSize, _ = flags.GetInt("batch-size")
	}
	return &sc, nil
}

// renderExecution prints the store reports followed by the summary
func renderExecution(w io.Writer, exec *status.Execution) error {
	table := tablewriter.NewWriter(w)
	table.Header("Store", "Outcome", "Fetched", "Sent", "Added", "Updated", "Removed", "Unchanged", "Warnings", "Error")
	for _, r := range exec.StoreReports {
		row := []string{
			strconv.FormatInt(r.StoreID, 10),
			string(r.Outcome),
			strconv.Itoa(r.Fetched),
			strconv.Itoa(r.Sent),
			strconv.Itoa(r.Added),
			strconv.Itoa(r.Updated),
			strconv.Itoa(r.Removed),
			strconv.Itoa(r.Unchanged),
			strconv.Itoa(r.Warnings),
			r.Error,
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to render report: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	s := exec.Summary
	_, err := fmt.Fprintf(w, "\nExecution %s: %s (%d/%d stores, %d sent, %d errors, %d warnings)\n",
		exec.ID, exec.Status, s.StoresProcessed, s.TotalStores, s.ProductsSent, s.Errors, s.Warnings)
	return err
}
