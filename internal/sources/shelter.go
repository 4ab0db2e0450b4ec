package sources

import (
	"context"

	"citypulse/internal/types"
)

// coolingShelterService is the seasonal cooling shelter dataset.
const coolingShelterService = "TbGtnHwcwP"

// coolingShelterRow is one cooling shelter listing.
type coolingShelterRow struct {
	FacilityID   string `json:"R_SEQ_NO"`
	Name         string `json:"R_AREA_NM"`
	Address      string `json:"R_DETL_ADD"`
	Lat          string `json:"LA"`
	Lon          string `json:"LO"`
	FacilityType string `json:"FCLT_TYPE"`
	Capacity     string `json:"USE_PRNB"`
	Remaining    string `json:"RMRK"`
	OpenHours    string `json:"WKDAY_OPER_TIME"`
}

// CoolingShelterAdapter ingests the cooling shelter roster. The roster is
// fully refreshed each cycle (shelters open and close seasonally), so it is
// committed via truncate-and-reload.
type CoolingShelterAdapter struct {
	base
}

func (a *CoolingShelterAdapter) Domain() types.Domain            { return types.DomainCoolingShelter }
func (a *CoolingShelterAdapter) Strategy() types.PersistStrategy { return types.PersistReload }

func (a *CoolingShelterAdapter) Fetch(ctx context.Context) (*Result, error) {
	rows, raw, fetchErr := fetchPaged[coolingShelterRow](ctx, a.client, a.cfg.BaseURL, a.cfg.APIKey, coolingShelterService, "", a.cfg.PageSize)
	if fetchErr != nil && len(rows) == 0 {
		return nil, fetchErr
	}

	now := a.clock.Now()
	records := make([]types.NormalizedRecord, 0, len(rows))
	for _, row := range rows {
		if row.FacilityID == "" {
			continue
		}

		capacity, _ := parseFloat(row.Capacity)
		remaining, hasRemaining := parseFloat(row.Remaining)
		if !hasRemaining {
			remaining = capacity
		}

		metrics := map[string]float64{
			"capacity":  capacity,
			"available": remaining,
		}
		if capacity > 0 {
			metrics["availability_ratio"] = remaining / capacity
		}

		rec := types.NormalizedRecord{
			Domain:     types.DomainCoolingShelter,
			ExternalID: row.FacilityID,
			Name:       row.Name,
			Coordinate: parseCoord(row.Lat, row.Lon),
			Category:   row.FacilityType,
			Capacity:   int(capacity),
			Available:  int(remaining),
			Metrics:    metrics,
			Attrs: map[string]string{
				"address":    row.Address,
				"open_hours": row.OpenHours,
			},
			FetchedAt: now,
		}
		a.enrich(&rec)
		records = append(records, rec)
	}

	return &Result{Records: records, Raw: raw}, fetchErr
}
