// Package normalizer maps provider payloads onto catalog.ProductRecord.
//
// Each supported provider is a named adapter with a fixed field map. Every
// field goes through the same fallback chain: final price falls back to the
// price, limit falls back to the configured default, and the visibility
// window falls back to the anchor day in UTC.
package normalizer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/stacklok/catalog-sync-server/internal/catalog"
	"github.com/stacklok/catalog-sync-server/internal/config"
	"github.com/stacklok/catalog-sync-server/internal/sources"
)

// Options holds the per-run inputs of normalization
type Options struct {
	// Anchor is captured once per run; its UTC day is the default visibility window
	Anchor time.Time

	// DefaultLimit is used when the provider does not state a limit
	DefaultLimit int
}

// Normalizer converts a raw provider catalog into canonical records
type Normalizer interface {
	Provider() string
	Normalize(raw *sources.RawCatalog, storeID int64, opts Options) ([]catalog.ProductRecord, []catalog.Warning)
}

type fieldMap struct {
	code       string
	price      string
	finalPrice string
	limit      string
	startsAt   string
	expiresAt  string

	// commaDecimal accepts "1.234,56" style strings
	commaDecimal bool
}

type adapter struct {
	provider string
	fields   fieldMap
}

var adapters = map[string]*adapter{
	config.ProviderRP: {
		provider: config.ProviderRP,
		fields: fieldMap{
			code:         "CodigoProduto",
			price:        "PrecoVenda",
			finalPrice:   "PrecoPromocional",
			limit:        "QuantidadeLimite",
			startsAt:     "DataInicio",
			expiresAt:    "DataFim",
			commaDecimal: true,
		},
	},
	config.ProviderCresceVendas: {
		provider: config.ProviderCresceVendas,
		fields: fieldMap{
			code:       "code",
			price:      "price",
			finalPrice: "sale_price",
			limit:      "limit",
			startsAt:   "starts_at",
			expiresAt:  "expires_at",
		},
	},
}

// ForProvider returns the adapter for provider
func ForProvider(provider string) (Normalizer, error) {
	a, ok := adapters[provider]
	if !ok {
		return nil, fmt.Errorf("no normalizer for provider %q", provider)
	}
	return a, nil
}

func (a *adapter) Provider() string {
	return a.provider
}

// Normalize maps every record of raw. Records without a usable code or price
// are dropped and reported as warnings.
func (a *adapter) Normalize(
	raw *sources.RawCatalog,
	storeID int64,
	opts Options,
) ([]catalog.ProductRecord, []catalog.Warning) {
	items := raw.Items()
	records := make([]catalog.ProductRecord, 0, len(items))
	var warnings []catalog.Warning

	dayStart, dayEnd := catalog.DayWindow(opts.Anchor)

	for i, item := range items {
		warn := func(code *int64, format string, args ...any) {
			warnings = append(warnings, catalog.Warning{
				StoreID: storeID,
				Index:   i,
				Code:    code,
				Reason:  fmt.Sprintf(format, args...),
			})
		}

		if !item.IsObject() {
			warn(nil, "record is not an object, dropped")
			continue
		}

		code, err := parseCode(item.Get(a.fields.code))
		if err != nil {
			warn(nil, "%s: %v, dropped", a.fields.code, err)
			continue
		}
		codeRef := &code

		price, err := a.parseDecimal(item.Get(a.fields.price))
		if err != nil {
			warn(codeRef, "%s: %v, dropped", a.fields.price, err)
			continue
		}

		rec := catalog.ProductRecord{
			Code:       code,
			Price:      price,
			FinalPrice: price,
			Limit:      opts.DefaultLimit,
			StoreID:    storeID,
		}

		if v := item.Get(a.fields.finalPrice); present(v) {
			if finalPrice, err := a.parseDecimal(v); err != nil {
				warn(codeRef, "%s: %v, using price", a.fields.finalPrice, err)
			} else {
				rec.FinalPrice = finalPrice
			}
		}

		if v := item.Get(a.fields.limit); present(v) {
			if limit, err := parseLimit(v); err != nil {
				warn(codeRef, "%s: %v, using default", a.fields.limit, err)
			} else {
				rec.Limit = limit
			}
		}

		startsAt, err := parseTime(item.Get(a.fields.startsAt), false)
		if err != nil {
			warn(codeRef, "%s: %v, ignored", a.fields.startsAt, err)
		}
		expiresAt, err := parseTime(item.Get(a.fields.expiresAt), true)
		if err != nil {
			warn(codeRef, "%s: %v, ignored", a.fields.expiresAt, err)
		}

		if startsAt == nil && expiresAt == nil {
			start, end := dayStart, dayEnd
			startsAt, expiresAt = &start, &end
		}
		rec.StartsAt, rec.ExpiresAt = startsAt, expiresAt

		records = append(records, rec)
	}

	return records, warnings
}

func present(v gjson.Result) bool {
	if !v.Exists() || v.Type == gjson.Null {
		return false
	}
	return v.Type != gjson.String || strings.TrimSpace(v.Str) != ""
}

func parseCode(v gjson.Result) (int64, error) {
	if !present(v) {
		return 0, fmt.Errorf("missing")
	}
	var s string
	switch v.Type {
	case gjson.Number:
		s = v.Raw
	case gjson.String:
		s = strings.TrimSpace(v.Str)
	default:
		return 0, fmt.Errorf("unexpected type %s", v.Type)
	}
	code, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return code, nil
}

func (a *adapter) parseDecimal(v gjson.Result) (decimal.Decimal, error) {
	if !present(v) {
		return decimal.Decimal{}, fmt.Errorf("missing")
	}
	var s string
	switch v.Type {
	case gjson.Number:
		s = v.Raw
	case gjson.String:
		s = strings.TrimSpace(v.Str)
		if a.fields.commaDecimal && strings.Contains(s, ",") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	default:
		return decimal.Decimal{}, fmt.Errorf("unexpected type %s", v.Type)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("not a decimal: %q", s)
	}
	return d, nil
}

func parseLimit(v gjson.Result) (int, error) {
	var s string
	switch v.Type {
	case gjson.Number:
		s = v.Raw
	case gjson.String:
		s = strings.TrimSpace(v.Str)
	default:
		return 0, fmt.Errorf("unexpected type %s", v.Type)
	}
	limit, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	if limit < 0 {
		return 0, fmt.Errorf("negative limit %d", limit)
	}
	if limit > math.MaxInt32 {
		return 0, fmt.Errorf("limit %d out of range", limit)
	}
	return limit, nil
}

const (
	dateTimeLayout = "2006-01-02 15:04:05"
	dateLayout     = "2006-01-02"
)

// parseTime accepts RFC 3339, a UTC date-time or a bare date. A bare date
// used as an end bound means the end of that day.
func parseTime(v gjson.Result, endOfDay bool) (*time.Time, error) {
	if !present(v) {
		return nil, nil
	}
	if v.Type != gjson.String {
		return nil, fmt.Errorf("unexpected type %s", v.Type)
	}
	s := strings.TrimSpace(v.Str)

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return &t, nil
	}
	if t, err := time.ParseInLocation(dateTimeLayout, s, time.UTC); err == nil {
		return &t, nil
	}
	if t, err := time.ParseInLocation(dateLayout, s, time.UTC); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Second)
		}
		return &t, nil
	}
	return nil, fmt.Errorf("unrecognized date %q", s)
}
