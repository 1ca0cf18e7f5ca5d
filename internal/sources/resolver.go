package sources

import (
	"context"
	"fmt"

	"github.com/stacklok/catalog-sync-server/internal/config"
)

// configIntegrationResolver resolves integrations declared in the configuration file
type configIntegrationResolver struct {
	cfg *config.Config
}

// NewConfigIntegrationResolver creates a resolver backed by cfg
func NewConfigIntegrationResolver(cfg *config.Config) IntegrationResolver {
	return &configIntegrationResolver{cfg: cfg}
}

// Resolve looks up the integration and its token
func (r *configIntegrationResolver) Resolve(_ context.Context, id string) (*Integration, error) {
	integ, ok := r.cfg.FindIntegration(id)
	if !ok {
		return nil, fmt.Errorf("%w: integration %q is not configured", ErrUpstreamUnavailable, id)
	}

	token, err := integ.GetToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamAuth, err)
	}

	return &Integration{
		ID:       integ.ID,
		Provider: integ.Provider,
		BaseURL:  integ.BaseURL,
		Token:    token,
	}, nil
}
