package sources

import (
	"context"

	"citypulse/internal/types"
)

// weatherService is the open-API dataset of per-spot live weather readings.
const weatherService = "citydataWeather"

// weatherRow is one observation spot's current reading.
type weatherRow struct {
	SpotID      string `json:"AREA_CD"`
	SpotName    string `json:"AREA_NM"`
	Lat         string `json:"AREA_LAT"`
	Lon         string `json:"AREA_LON"`
	Temp        string `json:"TEMP"`
	SensibleTmp string `json:"SENSIBLE_TEMP"`
	Humidity    string `json:"HUMIDITY"`
	Precip      string `json:"PRECIPITATION"`
	WindSpeed   string `json:"WIND_SPD"`
	UVIndex     string `json:"UV_INDEX_LVL"`
}

// WeatherAdapter ingests live weather observations. Spots update in place,
// so the domain is committed via identifier-keyed upsert.
type WeatherAdapter struct {
	base
}

func (a *WeatherAdapter) Domain() types.Domain            { return types.DomainWeather }
func (a *WeatherAdapter) Strategy() types.PersistStrategy { return types.PersistUpsert }

func (a *WeatherAdapter) Fetch(ctx context.Context) (*Result, error) {
	rows, raw, fetchErr := fetchPaged[weatherRow](ctx, a.client, a.cfg.BaseURL, a.cfg.APIKey, weatherService, "", a.cfg.PageSize)
	if fetchErr != nil && len(rows) == 0 {
		return nil, fetchErr
	}

	now := a.clock.Now()
	records := make([]types.NormalizedRecord, 0, len(rows))
	for _, row := range rows {
		if row.SpotID == "" {
			continue
		}

		metrics := make(map[string]float64, 5)
		if v, ok := parseFloat(row.Temp); ok {
			metrics["temp_c"] = v
		}
		if v, ok := parseFloat(row.SensibleTmp); ok {
			metrics["sensible_temp_c"] = v
		}
		if v, ok := parseFloat(row.Humidity); ok {
			metrics["humidity_pct"] = v
		}
		if v, ok := parseFloat(row.Precip); ok {
			metrics["precip_mm"] = v
		}
		if v, ok := parseFloat(row.WindSpeed); ok {
			metrics["wind_mps"] = v
		}
		if v, ok := parseFloat(row.UVIndex); ok {
			metrics["uv_index"] = v
		}

		rec := types.NormalizedRecord{
			Domain:     types.DomainWeather,
			ExternalID: row.SpotID,
			Name:       row.SpotName,
			Coordinate: parseCoord(row.Lat, row.Lon),
			Metrics:    metrics,
			FetchedAt:  now,
		}
		a.enrich(&rec)
		records = append(records, rec)
	}

	return &Result{Records: records, Raw: raw}, fetchErr
}
