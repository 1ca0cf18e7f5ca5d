// Package sync implements the per-store synchronization pipeline of the catalog
// sync server.
//
// # Pipeline
//
// For one store, Manager.SyncStore runs four sequential stages:
//
//	fetch      sources.SourceHandler pulls the provider payload
//	normalize  normalizer maps provider records onto catalog.ProductRecord
//	reconcile  Reconcile deduplicates by code and computes comparison stats
//	write      writer.CatalogWriter supersedes the active catalog
//
// A failure in any stage is returned as a *StoreError naming the stage. The
// wrapped error keeps its sentinel (sources.ErrUpstreamUnavailable,
// writer.ErrPartialWrite, ...) so callers classify it with errors.Is.
//
// # Reconciliation
//
// Reconcile is a pure function. The incoming catalog is authoritative and always
// replaces the active set; the Added, Updated, Removed and Unchanged counters
// exist for observability only. Duplicate codes resolve last-wins with one
// warning per discarded occurrence.
//
// # Subpackages
//
//   - coordinator: drives executions across stores and owns their state machine
//   - state: persists executions
//   - writer: product stores and the two-phase replace
package sync
