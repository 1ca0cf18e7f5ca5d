package sources

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/catalog-sync-server/internal/config"
	"github.com/stacklok/catalog-sync-server/internal/httpclient"
)

func TestConfigIntegrationResolver(t *testing.T) {
	t.Setenv("CATALOG_SYNC_RP_TOKEN", "abc")

	cfg := &config.Config{Integrations: []config.IntegrationConfig{
		{ID: "rp-main", Provider: config.ProviderRP, BaseURL: "https://rp.example.com", TokenEnv: "CATALOG_SYNC_RP_TOKEN"},
		{ID: "no-token", Provider: config.ProviderRP, BaseURL: "https://rp.example.com"},
	}}
	resolver := NewConfigIntegrationResolver(cfg)

	integ, err := resolver.Resolve(context.Background(), "rp-main")
	require.NoError(t, err)
	assert.Equal(t, &Integration{ID: "rp-main", Provider: config.ProviderRP, BaseURL: "https://rp.example.com", Token: "abc"}, integ)

	_, err = resolver.Resolve(context.Background(), "no-token")
	require.ErrorIs(t, err, ErrUpstreamAuth)

	_, err = resolver.Resolve(context.Background(), "missing")
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestSourceHandlerFactory(t *testing.T) {
	t.Parallel()

	factory := NewSourceHandlerFactory(httpclient.NewDefaultClient(0))

	h, err := factory.CreateHandler(config.ProviderCresceVendas)
	require.NoError(t, err)
	assert.Equal(t, config.ProviderCresceVendas, h.Provider())
	assert.IsType(t, &APISourceHandler{}, h)

	cached := NewSourceHandlerFactory(httpclient.NewDefaultClient(0), WithPayloadCache(NewMemoryCache(), 0))
	h, err = cached.CreateHandler(config.ProviderRP)
	require.NoError(t, err)
	assert.IsType(t, &CachingHandler{}, h)
	assert.Equal(t, config.ProviderRP, h.Provider())

	_, err = factory.CreateHandler("unknown")
	require.Error(t, err)
}
