package template

import (
	"testing"

	"pgregory.net/rapid"
)

// TestDirectionTablesPeriodicProperty is one of the concrete testable
// properties spec.md §8 names: the direction-name/cardinal tables must be
// periodic on 360 degrees for any input, not just the sampled cases in
// template_test.go.
func TestDirectionTablesPeriodicProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		deg := rapid.Float64Range(-10000, 10000).Draw(rt, "deg")
		k := rapid.IntRange(-5, 5).Draw(rt, "k")

		shifted := deg + float64(k)*360

		if DegreesToCardinal(deg) != DegreesToCardinal(shifted) {
			rt.Fatalf("cardinal not periodic: deg=%v shifted=%v", deg, shifted)
		}
		if DegreesToName(deg) != DegreesToName(shifted) {
			rt.Fatalf("name not periodic: deg=%v shifted=%v", deg, shifted)
		}
	})
}
