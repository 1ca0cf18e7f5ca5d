package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/stacklok/catalog-sync-server/internal/app/storage"
	"github.com/stacklok/catalog-sync-server/internal/status"
	"github.com/stacklok/catalog-sync-server/internal/sync/state"
)

func newExecutionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "executions",
		Short: "Inspect recorded executions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List executions, newest first",
		RunE:  runExecutionsList,
	}
	list.Flags().String("sync-config", "", "Only list executions of this sync configuration")
	list.Flags().Int("limit", state.DefaultListLimit, "Maximum number of executions")
	list.Flags().String("format", "table", "Output format (table, json)")

	cmd.AddCommand(list)
	return cmd
}

func runExecutionsList(cmd *cobra.Command, _ []string) error {
	syncConfigID, _ := cmd.Flags().GetString("sync-config")
	limit, _ := cmd.Flags().GetInt("limit")
	format, _ := cmd.Flags().GetString("format")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	factory, err := storage.NewStorageFactory(ctx, cfg)
	if err != nil {
		return err
	}
	defer factory.Cleanup()

	tracker, err := factory.CreateExecutionTracker(ctx)
	if err != nil {
		return err
	}
	execs, err := tracker.List(ctx, state.ListFilter{SyncConfigID: syncConfigID, Limit: limit})
	if err != nil {
		return err
	}

	switch format {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(execs)
	case "table":
		return renderExecutionList(cmd.OutOrStdout(), execs)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func renderExecutionList(w io.Writer, execs []*status.Execution) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Sync Config", "Status", "Started", "Duration", "Stores", "Sent", "Errors")
	for _, e := range execs {
		configID := e.ConfigID()
		if configID == "" {
			configID = "(ad hoc)"
		}
		duration := "-"
		if e.CompletedAt != nil {
			duration = e.CompletedAt.Sub(e.StartedAt).Round(time.Millisecond).String()
		}
		row := []string{
			e.ID.String(),
			configID,
			string(e.Status),
			e.StartedAt.Format(time.RFC3339),
			duration,
			fmt.Sprintf("%d/%d", e.Summary.StoresProcessed, e.Summary.TotalStores),
			strconv.Itoa(e.Summary.ProductsSent),
			strconv.Itoa(e.Summary.Errors),
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to render executions: %w", err)
		}
	}
	return table.Render()
}
