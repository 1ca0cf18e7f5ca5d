// Package sources fetches raw store catalogs from the supported commerce providers.
//
// Each provider is served by a SourceHandler obtained from a SourceHandlerFactory.
// Handlers classify failures into ErrUpstreamUnavailable, ErrUpstreamAuth and
// ErrUpstreamFormat, retry transient failures, and may be wrapped by a
// CachingHandler so recent payloads are reused unless a refresh is forced.
package sources
