// Package catalog defines the canonical product representation shared by the
// fetch, normalize, reconcile and write stages.
package catalog

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ProductRecord is one product offer in a store's catalog.
type ProductRecord struct {
	Code       int64           `json:"code"`
	Price      decimal.Decimal `json:"price"`
	FinalPrice decimal.Decimal `json:"final_price"`
	Limit      int             `json:"limit"`
	StartsAt   *time.Time      `json:"starts_at,omitempty"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
	StoreID    int64           `json:"store_id"`
}

// IsActive reports whether now falls inside the record's visibility window.
// Soft deletion is tracked by the store and is not visible here.
func (p *ProductRecord) IsActive(now time.Time) bool {
	if p.StartsAt != nil && p.StartsAt.After(now) {
		return false
	}
	if p.ExpiresAt != nil && p.ExpiresAt.Before(now) {
		return false
	}
	return true
}

// Equal compares every synchronized field of two records.
func (p *ProductRecord) Equal(other *ProductRecord) bool {
	return p.Code == other.Code &&
		p.StoreID == other.StoreID &&
		p.Price.Equal(other.Price) &&
		p.FinalPrice.Equal(other.FinalPrice) &&
		p.Limit == other.Limit &&
		timesEqual(p.StartsAt, other.StartsAt) &&
		timesEqual(p.ExpiresAt, other.ExpiresAt)
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// FilterActive returns the records visible at now.
func FilterActive(records []ProductRecord, now time.Time) []ProductRecord {
	out := make([]ProductRecord, 0, len(records))
	for i := range records {
		if records[i].IsActive(now) {
			out = append(out, records[i])
		}
	}
	return out
}

// DayWindow returns 00:00:00 and 23:59:59 UTC of the day containing anchor.
func DayWindow(anchor time.Time) (time.Time, time.Time) {
	y, m, d := anchor.UTC().Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	end := time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
	return start, end
}

// Warning is a non-fatal problem found while normalizing or reconciling a catalog.
type Warning struct {
	StoreID int64  `json:"store_id"`
	Index   int    `json:"index"`
	Code    *int64 `json:"code,omitempty"`
	Reason  string `json:"reason"`
}

func (w Warning) String() string {
	if w.Code != nil {
		return fmt.Sprintf("store %d record %d (code %d): %s", w.StoreID, w.Index, *w.Code, w.Reason)
	}
	return fmt.Sprintf("store %d record %d: %s", w.StoreID, w.Index, w.Reason)
}
