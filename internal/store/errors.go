package store

import "errors"

var (
	// ErrDuplicateOffset signals a Channel with two identical offsets,
	// which violates spec §3's invariant.
	ErrDuplicateOffset = errors.New("store: channel has duplicate offsets")
	// ErrInvalidMeasurementPeriod signals measurement_period_seconds <= 0.
	ErrInvalidMeasurementPeriod = errors.New("store: measurement period must be > 0")
	// ErrInvalidMinInterval signals a negative min-interval-between-tx.
	ErrInvalidMinInterval = errors.New("store: min interval must be >= 0")

	// ErrNotFound is returned by single-row lookups that found nothing.
	ErrNotFound = errors.New("store: not found")
	// ErrTxExists is returned by InsertTxRow when tx-id already exists —
	// the idempotent-insert case spec §4.2 calls out explicitly: "a
	// duplicate insert returns 'exists' without error" to the caller,
	// which is why scheduler.go treats this as a no-op skip rather than
	// propagating it as a failure.
	ErrTxExists = errors.New("store: tx-id already exists")
)
