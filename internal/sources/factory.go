package sources

import (
	"time"

	"github.com/stacklok/catalog-sync-server/internal/httpclient"
)

// defaultSourceHandlerFactory is the default implementation of SourceHandlerFactory
type defaultSourceHandlerFactory struct {
	client   httpclient.Client
	cache    PayloadCache
	cacheTTL time.Duration
	opts     []HandlerOption
}

var _ SourceHandlerFactory = (*defaultSourceHandlerFactory)(nil)

// FactoryOption configures the source handler factory
type FactoryOption func(*defaultSourceHandlerFactory)

// WithPayloadCache wraps every handler in a CachingHandler backed by cache
func WithPayloadCache(cache PayloadCache, ttl time.Duration) FactoryOption {
	return func(f *defaultSourceHandlerFactory) {
		f.cache = cache
		f.cacheTTL = ttl
	}
}

// WithHandlerOptions passes options to every created handler
func WithHandlerOptions(opts ...HandlerOption) FactoryOption {
	return func(f *defaultSourceHandlerFactory) {
		f.opts = append(f.opts, opts...)
	}
}

// NewSourceHandlerFactory creates a new source handler factory
func NewSourceHandlerFactory(client httpclient.Client, opts ...FactoryOption) SourceHandlerFactory {
	f := &defaultSourceHandlerFactory{client: client}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateHandler creates a source handler for the given provider
func (f *defaultSourceHandlerFactory) CreateHandler(provider string) (SourceHandler, error) {
	handler, err := NewAPISourceHandler(provider, f.client, f.opts...)
	if err != nil {
		return nil, err
	}
	if f.cache == nil {
		return handler, nil
	}
	return NewCachingHandler(handler, f.cache, f.cacheTTL), nil
}
