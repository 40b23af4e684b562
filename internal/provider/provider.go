// Package provider abstracts weather-station data sources behind a single
// bulk-fetch operation, grounded on internal/transcribe/provider.go's
// pluggable-Provider pattern from the teacher repo.
package provider

import (
	"context"
	"math"
	"time"
)

// Measurement is the normalized reading returned by every provider,
// regardless of upstream wire format (spec §3/§4.3).
type Measurement struct {
	MeasurementAt time.Time // UTC, naive
	WindAvgKmh    float64
	WindMaxKmh    float64
	WindMinKmh    *float64
	// WindDirectionDeg, if present, is normalized to [0, 360).
	WindDirectionDeg *float64
}

// NormalizeDirection folds an arbitrary degree value into [0, 360), matching
// Python's `%` on floats (always non-negative for a positive modulus).
func NormalizeDirection(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// Provider is the contract every weather-station backend implements. It
// mirrors internal/transcribe/provider.go's shape: an identity accessor
// plus the one operation the rest of the system depends on.
type Provider interface {
	// ID returns the stable provider identifier (e.g. "ffvl").
	ID() string
	// RequiresCredentials reports whether SetCredentials must be called
	// with a non-empty map before FetchMeasurementsBulk can succeed.
	RequiresCredentials() bool
	// SetCredentials installs the provider's opaque credential map,
	// refreshed once per tick from the store (spec §4.3).
	SetCredentials(creds map[string]string)
	// FetchMeasurementsBulk fetches the latest measurement for each of the
	// given station IDs. It fails soft: a single station's fetch/parse
	// error yields a nil *Measurement for that key, never an aborted
	// batch (spec §4.3's "fails-soft" contract) — the returned error is
	// non-nil only for a failure that invalidates the entire batch (e.g.
	// the provider is completely unreachable).
	FetchMeasurementsBulk(ctx context.Context, stationIDs []string) (map[string]*Measurement, error)
}

// ErrMissingCredentials is returned by a credentialed provider when
// FetchMeasurementsBulk is called before SetCredentials has supplied a
// non-empty map — the ConfigurationError category from spec §7.
type ErrMissingCredentials struct {
	ProviderID string
}

func (e *ErrMissingCredentials) Error() string {
	return "provider " + e.ProviderID + ": missing credentials"
}
