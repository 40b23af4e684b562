package template

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDirectionTablesAreConsistentWithOriginal(t *testing.T) {
	assert.Equal(t, "N", DegreesToCardinal(0))
	assert.Equal(t, "NE", DegreesToCardinal(45))
	assert.Equal(t, "S", DegreesToCardinal(180))
	assert.Equal(t, "NNO", DegreesToCardinal(337.5))

	assert.Equal(t, "Nord", DegreesToName(0))
	assert.Equal(t, "Nord-Este", DegreesToName(45))
	assert.Equal(t, "Sud", DegreesToName(180))
	assert.Equal(t, "Este", DegreesToName(90))
	assert.Equal(t, "Oueste", DegreesToName(270))
}

func TestDirectionTablesArePeriodicOn360(t *testing.T) {
	for _, deg := range []float64{0, 45, 123, 359} {
		assert.Equal(t, DegreesToCardinal(deg), DegreesToCardinal(deg+360))
		assert.Equal(t, DegreesToName(deg), DegreesToName(deg+360))
	}
}

func TestRenderSubstitutesKnownPlaceholders(t *testing.T) {
	dir := 45.0
	min := 5.0
	out := Render("{station_name}: vent {wind_avg_kmh} km/h, rafales {wind_max_kmh}, direction {wind_direction_name}", Input{
		StationName:      "Lac du Salagou",
		WindAvgKmh:       12.4,
		WindMaxKmh:       18.6,
		WindMinKmh:       &min,
		WindDirectionDeg: &dir,
	})
	assert.Equal(t, "Lac du Salagou: vent 12 km/h, rafales 19, direction Nord-Este", out)
}

func TestRenderMeasurementAgeUsesUneForOneMinute(t *testing.T) {
	now := time.Date(2024, 7, 15, 12, 1, 30, 0, time.UTC)
	measuredAt := now.Add(-61 * time.Second)
	out := Render("il y a {measurement_age_minutes} minute", Input{
		StationName: "x", MeasurementAt: measuredAt, Now: now,
	})
	assert.Equal(t, "il y a une minute", out)
}

func TestRenderMeasurementAgePluralUsesDigits(t *testing.T) {
	now := time.Date(2024, 7, 15, 12, 10, 0, 0, time.UTC)
	measuredAt := now.Add(-5 * time.Minute)
	out := Render("il y a {measurement_age_minutes} minutes", Input{
		StationName: "x", MeasurementAt: measuredAt, Now: now,
	})
	assert.Equal(t, "il y a 5 minutes", out)
}

func TestRenderLeavesUnknownPlaceholdersAsIs(t *testing.T) {
	out := Render("{station_name} {unknown_var}", Input{StationName: "x"})
	assert.Equal(t, "x {unknown_var}", out)
}

func TestValidateRejectsUnsupportedVariables(t *testing.T) {
	ok, msg := Validate("{station_name} {bogus}")
	assert.False(t, ok)
	assert.Contains(t, msg, "bogus")
}

func TestValidateAcceptsSupportedVariables(t *testing.T) {
	ok, _ := Validate("{station_name} {wind_avg_kmh} {wind_direction_cardinal}")
	assert.True(t, ok)
}

func TestExtractVariables(t *testing.T) {
	vars := ExtractVariables("{a} text {b} {a}")
	assert.Equal(t, map[string]bool{"a": true, "b": true}, vars)
}
