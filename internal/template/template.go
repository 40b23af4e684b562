// Package template renders spoken-text announcements from a Channel's
// template string and a measurement, grounded on
// original_source/app/services/template.py's literal-placeholder renderer.
package template

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// cardinalTable is the 16-entry abbreviation form, indexed by
// round(deg/22.5) mod 16.
var cardinalTable = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSO", "SO", "OSO", "O", "ONO", "NO", "NNO",
}

// nameTable is the TTS-friendly French full-name form. "Este"/"Oueste"
// replace "Est"/"Ouest" throughout to improve the synthesizer's liaison
// across the hyphen, per the original's comment.
var nameTable = [16]string{
	"Nord", "Nord-Nord-Este", "Nord-Este", "Este-Nord-Este",
	"Este", "Este-Sud-Este", "Sud-Este", "Sud-Sud-Este",
	"Sud", "Sud-Sud-Oueste", "Sud-Oueste", "Oueste-Sud-Oueste",
	"Oueste", "Oueste-Nord-Oueste", "Nord-Oueste", "Nord-Nord-Oueste",
}

func directionIndex(degrees float64) int {
	normalized := math.Mod(degrees, 360)
	if normalized < 0 {
		normalized += 360
	}
	idx := int(math.Round(normalized/22.5)) % 16
	if idx < 0 {
		idx += 16
	}
	return idx
}

// DegreesToCardinal returns the 16-abbreviation compass direction.
func DegreesToCardinal(degrees float64) string {
	return cardinalTable[directionIndex(degrees)]
}

// DegreesToName returns the TTS-optimized French direction name.
func DegreesToName(degrees float64) string {
	return nameTable[directionIndex(degrees)]
}

// roundHalfAwayFromZero rounds to the nearest integer with .5 going away
// from zero (12.5 -> 13), unlike Python's banker's-rounding round()
// (12.5 -> 12).
func roundHalfAwayFromZero(v float64) int64 {
	if v >= 0 {
		return int64(math.Floor(v + 0.5))
	}
	return -int64(math.Floor(-v + 0.5))
}

// Input bundles the measurement fields the renderer needs. WindMinKmh and
// WindDirectionDeg are optional; a nil pointer means the corresponding
// placeholders are left untouched if present in the template.
type Input struct {
	StationName      string
	WindAvgKmh       float64
	WindMaxKmh       float64
	WindMinKmh       *float64
	WindDirectionDeg *float64
	MeasurementAt    time.Time
	Now              time.Time
}

// Render performs literal placeholder substitution — no conditionals, no
// loops, matching spec §4.4. It is the sole authority for spoken text:
// both preview and live transmission call this with identical inputs.
func Render(tmpl string, in Input) string {
	ctx := map[string]string{
		"station_name":  in.StationName,
		"wind_avg_kmh":  fmt.Sprintf("%d", roundHalfAwayFromZero(in.WindAvgKmh)),
		"wind_max_kmh":  fmt.Sprintf("%d", roundHalfAwayFromZero(in.WindMaxKmh)),
	}
	if in.WindMinKmh != nil {
		ctx["wind_min_kmh"] = fmt.Sprintf("%d", roundHalfAwayFromZero(*in.WindMinKmh))
	}
	if in.WindDirectionDeg != nil {
		ctx["wind_direction_deg"] = fmt.Sprintf("%d", roundHalfAwayFromZero(*in.WindDirectionDeg))
		ctx["wind_direction_cardinal"] = DegreesToCardinal(*in.WindDirectionDeg)
		ctx["wind_direction_name"] = DegreesToName(*in.WindDirectionDeg)
	}
	if !in.MeasurementAt.IsZero() {
		now := in.Now
		if now.IsZero() {
			now = time.Now().UTC()
		}
		ageSeconds := now.Sub(in.MeasurementAt).Seconds()
		ageMinutes := roundHalfAwayFromZero(ageSeconds / 60)
		if ageMinutes == 1 {
			ctx["measurement_age_minutes"] = "une"
		} else {
			ctx["measurement_age_minutes"] = fmt.Sprintf("%d", ageMinutes)
		}
	}

	result := tmpl
	for varName, value := range ctx {
		result = strings.ReplaceAll(result, "{"+varName+"}", value)
	}
	return result
}

// supportedVars is the set validate_template checks placeholders against.
var supportedVars = map[string]bool{
	"station_name":            true,
	"wind_avg_kmh":            true,
	"wind_max_kmh":            true,
	"wind_min_kmh":            true,
	"wind_direction_name":     true,
	"wind_direction_cardinal": true,
	"wind_direction_deg":      true,
	"measurement_age_minutes": true,
}

var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// ExtractVariables returns the set of placeholder names used in a
// template.
func ExtractVariables(tmpl string) map[string]bool {
	out := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(tmpl, -1) {
		out[m[1]] = true
	}
	return out
}

// Validate reports whether every placeholder in tmpl is supported. At
// render time unknown placeholders are simply left as-is (spec §4.4); this
// check exists purely for the channel-authoring side (the out-of-scope
// admin API), kept here since it's a pure function of the template text.
func Validate(tmpl string) (bool, string) {
	used := ExtractVariables(tmpl)
	var unsupported []string
	for v := range used {
		if !supportedVars[v] {
			unsupported = append(unsupported, v)
		}
	}
	if len(unsupported) > 0 {
		return false, fmt.Sprintf("unsupported variables: %s", strings.Join(unsupported, ", "))
	}
	return true, ""
}
