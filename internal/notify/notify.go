// Package notify delivers execution reports to configured notification channels.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/catalog-sync-server/internal/config"
	"github.com/stacklok/catalog-sync-server/internal/httpclient"
	"github.com/stacklok/catalog-sync-server/internal/status"
)

// ErrUnknownChannel is returned when a channel id is not configured
var ErrUnknownChannel = errors.New("unknown notification channel")

// Report is the completion summary sent for a terminal execution
type Report struct {
	ExecutionID  uuid.UUID      `json:"execution_id"`
	SyncConfigID string         `json:"sync_config_id,omitempty"`
	Status       status.Status  `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Summary      status.Summary `json:"summary"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// NewReport builds the report of exec
func NewReport(exec *status.Execution) Report {
	return Report{
		ExecutionID:  exec.ID,
		SyncConfigID: exec.ConfigID(),
		Status:       exec.Status,
		StartedAt:    exec.StartedAt,
		CompletedAt:  exec.CompletedAt,
		Summary:      exec.Summary,
		ErrorMessage: exec.ErrorMessage,
	}
}

// Notifier sends reports. Delivery is best-effort.
//
//go:generate mockgen -destination=mocks/mock_notifier.go -package=mocks github.com/stacklok/catalog-sync-server/internal/notify Notifier
type Notifier interface {
	Notify(ctx context.Context, channelID string, report Report) error
}

// Dispatcher routes reports to webhook or log channels from configuration
type Dispatcher struct {
	channels map[string]config.NotificationChannelConfig
	client   httpclient.Client
}

var _ Notifier = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher over the configured channels
func NewDispatcher(channels []config.NotificationChannelConfig, client httpclient.Client) *Dispatcher {
	byID := make(map[string]config.NotificationChannelConfig, len(channels))
	for _, ch := range channels {
		byID[ch.ID] = ch
	}
	return &Dispatcher{channels: byID, client: client}
}

// Notify implements Notifier
func (d *Dispatcher) Notify(ctx context.Context, channelID string, report Report) error {
	ch, ok := d.channels[channelID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, channelID)
	}

	switch ch.Type {
	case config.ChannelTypeWebhook:
		body, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		if _, err := d.client.Post(ctx, ch.URL, body); err != nil {
			return fmt.Errorf("webhook %s: %w", channelID, err)
		}
	case config.ChannelTypeLog:
		slog.Info("Sync execution finished",
			"channel", channelID,
			"execution_id", report.ExecutionID,
			"sync_config_id", report.SyncConfigID,
			"status", report.Status,
			"stores_processed", report.Summary.StoresProcessed,
			"total_stores", report.Summary.TotalStores,
			"errors", report.Summary.Errors,
			"error_message", report.ErrorMessage)
	default:
		return fmt.Errorf("channel %s: unsupported type %q", channelID, ch.Type)
	}
	return nil
}
