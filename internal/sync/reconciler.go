package sync

import (
	"fmt"

	"github.com/stacklok/catalog-sync-server/internal/catalog"
)

// ReconcileOptions controls statistics computation
type ReconcileOptions struct {
	// SkipComparison leaves Stats at zero. The replace still happens.
	SkipComparison bool
}

// Stats are the comparison counters of one store, by product code
type Stats struct {
	Added     int  `json:"added"`
	Updated   int  `json:"updated"`
	Removed   int  `json:"removed"`
	Unchanged int  `json:"unchanged"`
	Skipped   bool `json:"skipped,omitempty"`
}

// ReplaceSet is the full catalog that becomes a store's new active set.
// It lives only for the duration of one store step.
type ReplaceSet struct {
	StoreID  int64
	Records  []catalog.ProductRecord
	Stats    Stats
	Warnings []catalog.Warning
}

// Reconcile turns the incoming catalog into a replace-set. The policy is a full
// replace: incoming is authoritative and no field-level merge is attempted.
//
// Duplicate codes resolve last-wins. The survivor takes the slot of the first
// occurrence and every discarded occurrence yields one warning.
func Reconcile(
	storeID int64,
	incoming []catalog.ProductRecord,
	currentActive []catalog.ProductRecord,
	opts ReconcileOptions,
) *ReplaceSet {
	set := &ReplaceSet{
		StoreID: storeID,
		Records: make([]catalog.ProductRecord, 0, len(incoming)),
	}

	slot := make(map[int64]int, len(incoming))
	lastIndex := make(map[int64]int, len(incoming))
	for i, rec := range incoming {
		rec.StoreID = storeID
		if pos, dup := slot[rec.Code]; dup {
			code := rec.Code
			set.Warnings = append(set.Warnings, catalog.Warning{
				StoreID: storeID,
				Index:   lastIndex[rec.Code],
				Code:    &code,
				Reason:  fmt.Sprintf("duplicate code, superseded by record %d", i),
			})
			set.Records[pos] = rec
			lastIndex[rec.Code] = i
			continue
		}
		slot[rec.Code] = len(set.Records)
		lastIndex[rec.Code] = i
		set.Records = append(set.Records, rec)
	}

	if opts.SkipComparison {
		set.Stats.Skipped = true
		return set
	}
	set.Stats = compare(storeID, set.Records, currentActive)
	return set
}

func compare(storeID int64, incoming, current []catalog.ProductRecord) Stats {
	var stats Stats

	existing := make(map[int64]catalog.ProductRecord, len(current))
	for _, rec := range current {
		rec.StoreID = storeID
		existing[rec.Code] = rec
	}

	for i := range incoming {
		old, ok := existing[incoming[i].Code]
		switch {
		case !ok:
			stats.Added++
		case old.Equal(&incoming[i]):
			stats.Unchanged++
		default:
			stats.Updated++
		}
		delete(existing, incoming[i].Code)
	}
	stats.Removed = len(existing)
	return stats
}
