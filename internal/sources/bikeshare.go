package sources

import (
	"context"

	"citypulse/internal/types"
)

// bikeShareService is the live rental-station availability dataset.
const bikeShareService = "bikeList"

// bikeShareRow is one rental station's live availability.
type bikeShareRow struct {
	StationID   string `json:"stationId"`
	StationName string `json:"stationName"`
	Lat         string `json:"stationLatitude"`
	Lon         string `json:"stationLongitude"`
	RackCount   string `json:"rackTotCnt"`
	BikeCount   string `json:"parkingBikeTotCnt"`
	Shared      string `json:"shared"`
}

// BikeShareAdapter ingests live bike-share station availability. Counts are
// partial updates against a stable station set, so the domain is committed
// via identifier-keyed upsert.
type BikeShareAdapter struct {
	base
}

func (a *BikeShareAdapter) Domain() types.Domain            { return types.DomainBikeShare }
func (a *BikeShareAdapter) Strategy() types.PersistStrategy { return types.PersistUpsert }

func (a *BikeShareAdapter) Fetch(ctx context.Context) (*Result, error) {
	rows, raw, fetchErr := fetchPaged[bikeShareRow](ctx, a.client, a.cfg.BaseURL, a.cfg.APIKey, bikeShareService, "", a.cfg.PageSize)
	if fetchErr != nil && len(rows) == 0 {
		return nil, fetchErr
	}

	now := a.clock.Now()
	records := make([]types.NormalizedRecord, 0, len(rows))
	for _, row := range rows {
		if row.StationID == "" {
			continue
		}

		racks, _ := parseFloat(row.RackCount)
		bikes, _ := parseFloat(row.BikeCount)

		metrics := map[string]float64{
			"docks_total":     racks,
			"bikes_available": bikes,
		}
		if racks > 0 {
			// Ratio of empty docks; 1.0 means the station is full of empty
			// docks (no bikes to rent).
			metrics["empty_dock_ratio"] = (racks - bikes) / racks
		}

		rec := types.NormalizedRecord{
			Domain:     types.DomainBikeShare,
			ExternalID: row.StationID,
			Name:       row.StationName,
			Coordinate: parseCoord(row.Lat, row.Lon),
			Capacity:   int(racks),
			Available:  int(bikes),
			Metrics:    metrics,
			FetchedAt:  now,
		}
		a.enrich(&rec)
		records = append(records, rec)
	}

	return &Result{Records: records, Raw: raw}, fetchErr
}
