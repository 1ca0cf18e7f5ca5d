package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"

	"github.com/stacklok/catalog-sync-server/internal/config"
	"github.com/stacklok/catalog-sync-server/internal/httpclient"
)

const (
	defaultMaxAttempts   = 3
	defaultRetryInterval = 500 * time.Millisecond
)

// providerEndpoint describes where a provider serves a store catalog and where
// the records live inside the response.
type providerEndpoint struct {
	pathFormat string
	itemsPath  string
}

var providerEndpoints = map[string]providerEndpoint{
	config.ProviderRP: {
		pathFormat: "/api/v1/lojas/%d/produtos",
		itemsPath:  "Produtos",
	},
	config.ProviderCresceVendas: {
		pathFormat: "/v1/stores/%d/products",
		itemsPath:  "data",
	},
}

// HandlerOption configures an APISourceHandler
type HandlerOption func(*APISourceHandler)

// WithMaxAttempts sets how many times a transient failure is attempted
func WithMaxAttempts(n int) HandlerOption {
	return func(h *APISourceHandler) {
		if n > 0 {
			h.maxAttempts = n
		}
	}
}

// WithRetryInterval sets the initial backoff interval
func WithRetryInterval(d time.Duration) HandlerOption {
	return func(h *APISourceHandler) {
		if d > 0 {
			h.retryInterval = d
		}
	}
}

// WithClock overrides the clock used to stamp fetched payloads
func WithClock(now func() time.Time) HandlerOption {
	return func(h *APISourceHandler) {
		h.now = now
	}
}

// APISourceHandler fetches catalogs from a provider's HTTP API
type APISourceHandler struct {
	provider      string
	endpoint      providerEndpoint
	httpClient    httpclient.Client
	maxAttempts   int
	retryInterval time.Duration
	now           func() time.Time
}

var _ SourceHandler = (*APISourceHandler)(nil)

// NewAPISourceHandler creates a handler for the given provider
func NewAPISourceHandler(provider string, client httpclient.Client, opts ...HandlerOption) (*APISourceHandler, error) {
	endpoint, ok := providerEndpoints[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}

	h := &APISourceHandler{
		provider:      provider,
		endpoint:      endpoint,
		httpClient:    client,
		maxAttempts:   defaultMaxAttempts,
		retryInterval: defaultRetryInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Provider returns the provider name
func (h *APISourceHandler) Provider() string {
	return h.provider
}

// FetchCatalog retrieves a store catalog, retrying transient failures
func (h *APISourceHandler) FetchCatalog(ctx context.Context, req FetchRequest) (*RawCatalog, error) {
	if req.Integration == nil {
		return nil, fmt.Errorf("%w: integration is required", ErrUpstreamUnavailable)
	}

	url := h.catalogURL(req.Integration.BaseURL, req.StoreID)
	logger := slog.With("provider", h.provider, "store_id", req.StoreID)

	attempt := 0
	operation := func() ([]byte, error) {
		attempt++
		body, err := h.httpClient.Get(ctx, url, httpclient.WithBearerToken(req.Integration.Token))
		if err == nil {
			return body, nil
		}

		classified := classifyError(err)
		if errors.Is(classified, ErrUpstreamAuth) || errors.Is(classified, ErrUnknownStore) {
			return nil, backoff.Permanent(classified)
		}
		logger.Debug("Catalog fetch attempt failed", "attempt", attempt, "error", err)
		return nil, classified
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = h.retryInterval

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(h.maxAttempts)),
	)
	if err != nil {
		if !errors.Is(err, ErrUpstreamUnavailable) && !errors.Is(err, ErrUpstreamAuth) {
			err = fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
		}
		return nil, err
	}

	return h.parse(req.StoreID, body)
}

// parse validates the payload shape without inspecting individual records
func (h *APISourceHandler) parse(storeID int64, body []byte) (*RawCatalog, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: response is not valid JSON", ErrUpstreamFormat)
	}

	items := gjson.GetBytes(body, h.endpoint.itemsPath)
	if !items.Exists() {
		return nil, fmt.Errorf("%w: missing %q", ErrUpstreamFormat, h.endpoint.itemsPath)
	}
	if !items.IsArray() {
		return nil, fmt.Errorf("%w: %q is not an array", ErrUpstreamFormat, h.endpoint.itemsPath)
	}

	return &RawCatalog{
		Provider:  h.provider,
		StoreID:   storeID,
		ItemsPath: h.endpoint.itemsPath,
		Body:      body,
		ItemCount: len(items.Array()),
		FetchedAt: h.now().UTC(),
	}, nil
}

func (h *APISourceHandler) catalogURL(baseURL string, storeID int64) string {
	return strings.TrimRight(baseURL, "/") + fmt.Sprintf(h.endpoint.pathFormat, storeID)
}

// classifyError maps transport errors onto the upstream error taxonomy
func classifyError(err error) error {
	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %w", ErrUpstreamAuth, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", ErrUnknownStore, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
}
