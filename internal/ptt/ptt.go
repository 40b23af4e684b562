// Package ptt abstracts the two-state Push-To-Talk output line behind one
// interface, grounded on original_source/app/ptt/controller.py's
// PTTController ABC (set_ptt/cleanup) and idempotence requirements.
package ptt

// Driver is the contract both concrete PTT implementations satisfy.
// Both Set and Cleanup must be idempotent (spec §4.6): calling Set(false)
// when already inactive, or Cleanup after Cleanup, must not error or
// double-toggle the line.
type Driver interface {
	// Set drives the line active or inactive. Failures are propagated —
	// the sequencer treats any Set error as a transmission failure but
	// still attempts to force the line inactive on every exit path
	// (spec §4.6/§4.7).
	Set(active bool) error
	// Cleanup forces the line inactive and releases any underlying
	// hardware handle. Safe to call multiple times.
	Cleanup() error
}
