package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

var (
	// ErrUpstreamUnavailable is returned when the source cannot be reached, times out
	// or answers with an unexpected status.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUpstreamAuth is returned when the source rejects the integration's credentials.
	ErrUpstreamAuth = errors.New("upstream rejected credentials")

	// ErrUpstreamFormat is returned when the payload cannot be parsed at all.
	ErrUpstreamFormat = errors.New("upstream payload could not be parsed")

	// ErrUnknownStore is returned when the source does not know the requested store.
	ErrUnknownStore = fmt.Errorf("%w: store not known to source", ErrUpstreamUnavailable)
)

// Integration holds the resolved connection parameters of a source integration.
type Integration struct {
	ID       string
	Provider string
	BaseURL  string
	Token    string
}

// FetchRequest describes a single catalog fetch
type FetchRequest struct {
	StoreID     int64
	Integration *Integration

	// ForceRefresh bypasses any cached payload
	ForceRefresh bool
}

// RawCatalog is a provider payload that passed structural validation.
// Individual records have not been inspected yet.
type RawCatalog struct {
	Provider  string    `json:"provider"`
	StoreID   int64     `json:"store_id"`
	ItemsPath string    `json:"items_path"`
	Body      []byte    `json:"body"`
	ItemCount int       `json:"item_count"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Items returns the provider's record array
func (r *RawCatalog) Items() []gjson.Result {
	return gjson.GetBytes(r.Body, r.ItemsPath).Array()
}

//go:generate mockgen -destination=mocks/mock_source_handler.go -package=mocks -source=types.go SourceHandler,SourceHandlerFactory,IntegrationResolver

// SourceHandler fetches store catalogs from one provider
type SourceHandler interface {
	// FetchCatalog retrieves the raw catalog of a store
	FetchCatalog(ctx context.Context, req FetchRequest) (*RawCatalog, error)

	// Provider returns the provider this handler speaks to
	Provider() string
}

// SourceHandlerFactory creates source handlers based on provider
type SourceHandlerFactory interface {
	// CreateHandler creates a source handler for the given provider
	CreateHandler(provider string) (SourceHandler, error)
}

// IntegrationResolver looks up the connection parameters of an integration
type IntegrationResolver interface {
	// Resolve returns the integration or an ErrUpstreamAuth / ErrUpstreamUnavailable error
	Resolve(ctx context.Context, id string) (*Integration, error)
}
