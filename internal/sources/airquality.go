package sources

import (
	"context"

	"citypulse/internal/types"
)

// airQualityService is the per-station realtime air measurement dataset.
const airQualityService = "RealtimeCityAir"

// airQualityRow is one measurement station's current reading.
type airQualityRow struct {
	StationCode string `json:"MSRSTE_CD"`
	StationName string `json:"MSRSTE_NM"`
	Lat         string `json:"MSRSTE_LAT"`
	Lon         string `json:"MSRSTE_LON"`
	PM10        string `json:"PM10"`
	PM25        string `json:"PM25"`
	Ozone       string `json:"O3"`
	AQIndex     string `json:"IDEX_MVL"`
	Grade       string `json:"IDEX_NM"`
}

// AirQualityAdapter ingests realtime air quality by measurement station.
// Stations are a fixed set updating in place; committed via upsert.
type AirQualityAdapter struct {
	base
}

func (a *AirQualityAdapter) Domain() types.Domain            { return types.DomainAirQuality }
func (a *AirQualityAdapter) Strategy() types.PersistStrategy { return types.PersistUpsert }

func (a *AirQualityAdapter) Fetch(ctx context.Context) (*Result, error) {
	rows, raw, fetchErr := fetchPaged[airQualityRow](ctx, a.client, a.cfg.BaseURL, a.cfg.APIKey, airQualityService, "", a.cfg.PageSize)
	if fetchErr != nil && len(rows) == 0 {
		return nil, fetchErr
	}

	now := a.clock.Now()
	records := make([]types.NormalizedRecord, 0, len(rows))
	for _, row := range rows {
		if row.StationCode == "" {
			continue
		}

		metrics := make(map[string]float64, 4)
		if v, ok := parseFloat(row.PM10); ok {
			metrics["pm10"] = v
		}
		if v, ok := parseFloat(row.PM25); ok {
			metrics["pm25"] = v
		}
		if v, ok := parseFloat(row.Ozone); ok {
			metrics["ozone_ppm"] = v
		}
		if v, ok := parseFloat(row.AQIndex); ok {
			metrics["aq_index"] = v
		}

		rec := types.NormalizedRecord{
			Domain:     types.DomainAirQuality,
			ExternalID: row.StationCode,
			Name:       row.StationName,
			Coordinate: parseCoord(row.Lat, row.Lon),
			Category:   row.Grade,
			Metrics:    metrics,
			FetchedAt:  now,
		}
		a.enrich(&rec)
		records = append(records, rec)
	}

	return &Result{Records: records, Raw: raw}, fetchErr
}
