package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenWindMapProvider fetches Pioupiou-network measurements. Grounded on
// original_source/app/providers/openwindmap.py: no credentials required,
// bulk endpoint with per-station fallback on bulk failure.
type OpenWindMapProvider struct {
	httpClient *http.Client
	baseURL    string
}

const openWindMapBaseURL = "https://api.pioupiou.fr/v1"

func NewOpenWindMapProvider() *OpenWindMapProvider {
	return &OpenWindMapProvider{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    openWindMapBaseURL,
	}
}

func (p *OpenWindMapProvider) ID() string                      { return "openwindmap" }
func (p *OpenWindMapProvider) RequiresCredentials() bool        { return false }
func (p *OpenWindMapProvider) SetCredentials(map[string]string) {}

type pioupiouMeasurements struct {
	WindSpeedAvg *float64 `json:"wind_speed_avg"`
	WindSpeedMax *float64 `json:"wind_speed_max"`
	WindSpeedMin *float64 `json:"wind_speed_min"`
	WindHeading  *float64 `json:"wind_heading"`
	Date         string   `json:"date"`
}

type pioupiouStation struct {
	ID           any                  `json:"id"`
	Date         string               `json:"date"`
	Measurements pioupiouMeasurements `json:"measurements"`
}

type pioupiouSingleResponse struct {
	Data *pioupiouStation `json:"data"`
}

type pioupiouBulkResponse struct {
	Data []pioupiouStation `json:"data"`
}

func (p *OpenWindMapProvider) FetchMeasurementsBulk(ctx context.Context, stationIDs []string) (map[string]*Measurement, error) {
	out, err := p.fetchAll(ctx)
	if err != nil {
		// Bulk failure falls back to individual calls, matching the
		// original's try/except around the /live/all request.
		out = make(map[string]*Measurement)
		for _, id := range stationIDs {
			m, ferr := p.fetchOne(ctx, id)
			if ferr != nil {
				out[id] = nil
				continue
			}
			out[id] = m
		}
		return out, nil
	}

	result := make(map[string]*Measurement, len(stationIDs))
	for _, id := range stationIDs {
		result[id] = out[id]
	}
	return result, nil
}

func (p *OpenWindMapProvider) fetchAll(ctx context.Context) (map[string]*Measurement, error) {
	body, err := p.get(ctx, p.baseURL+"/live/all")
	if err != nil {
		return nil, err
	}
	var resp pioupiouBulkResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("openwindmap: decode bulk response: %w", err)
	}

	out := make(map[string]*Measurement, len(resp.Data))
	for _, station := range resp.Data {
		id := fmt.Sprintf("%v", station.ID)
		m, err := parsePioupiouMeasurement(station)
		if err != nil {
			out[id] = nil
			continue
		}
		out[id] = m
	}
	return out, nil
}

func (p *OpenWindMapProvider) fetchOne(ctx context.Context, stationID string) (*Measurement, error) {
	body, err := p.get(ctx, p.baseURL+"/live/"+stationID)
	if err != nil {
		return nil, err
	}

	var single pioupiouSingleResponse
	if err := json.Unmarshal(body, &single); err == nil && single.Data != nil {
		return parsePioupiouMeasurement(*single.Data)
	}

	var flat pioupiouStation
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("openwindmap: decode station %s: %w", stationID, err)
	}
	return parsePioupiouMeasurement(flat)
}

func (p *OpenWindMapProvider) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("openwindmap: build request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openwindmap: request %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("openwindmap: station not found")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openwindmap: %s returned HTTP %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// parsePioupiouMeasurement requires both wind_speed_avg and wind_speed_max
// to be present, matching the original's "if wind_avg is None or wind_max
// is None: return None" guard.
func parsePioupiouMeasurement(station pioupiouStation) (*Measurement, error) {
	meas := station.Measurements
	if meas.WindSpeedAvg == nil || meas.WindSpeedMax == nil {
		return nil, fmt.Errorf("openwindmap: missing wind_speed_avg/wind_speed_max")
	}

	dateStr := meas.Date
	if dateStr == "" {
		dateStr = station.Date
	}

	var measurementAt time.Time
	if dateStr != "" {
		normalized := strings.Replace(dateStr, "Z", "+00:00", 1)
		t, err := time.Parse("2006-01-02T15:04:05-07:00", normalized)
		if err != nil {
			return nil, fmt.Errorf("openwindmap: parse date %q: %w", dateStr, err)
		}
		measurementAt = t.UTC()
	} else {
		measurementAt = time.Now().UTC()
	}

	m := &Measurement{
		MeasurementAt: measurementAt,
		WindAvgKmh:    *meas.WindSpeedAvg,
		WindMaxKmh:    *meas.WindSpeedMax,
		WindMinKmh:    meas.WindSpeedMin,
	}
	if meas.WindHeading != nil {
		d := NormalizeDirection(*meas.WindHeading)
		m.WindDirectionDeg = &d
	}
	return m, nil
}
