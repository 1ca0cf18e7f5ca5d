// Package coordinator drives synchronization executions through their lifecycle.
//
// An execution is created in pending, moves to running, runs the per-store
// pipeline of sync.Manager for every configured store and ends in one of
// completed, failed or cancelled:
//
//	pending ──► running ──► completed
//	   │           ├──────► failed
//	   │           └──────► cancelled
//	   └──► failed | cancelled
//
// # Error classes
//
// Store errors (upstream unavailable, unknown store, malformed payload, write
// failures) are counted in the execution summary and logged; the run goes on
// with the next store. Fatal errors stop the run and fail it:
//
//   - the source integration cannot be resolved
//   - the source rejects the credentials
//   - the execution cannot be persisted
//   - the process is shutting down
//
// # Concurrency
//
// Stores run one at a time unless the configuration sets batchSize, in which
// case up to batchSize pipelines run at once. All summary aggregation and all
// tracker writes of one execution happen under a single mutex.
//
// # Cancellation
//
// Cancel sets a flag that is checked before the move to running and before
// each store pipeline starts. A store already in flight finishes, and stores
// already written stay written.
package coordinator
