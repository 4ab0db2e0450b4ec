package sources

import (
	"context"

	"citypulse/internal/types"
)

const (
	parkService   = "SearchParkInfoService"
	libService    = "SeoulPublicLibraryInfo"
	sportsService = "ListPublicReservationSport"
)

// parkRow is one public park listing.
type parkRow struct {
	ParkID    string `json:"P_IDX"`
	Name      string `json:"P_PARK"`
	Zone      string `json:"P_ZONE"`
	Address   string `json:"P_ADDR"`
	Lat       string `json:"LATITUDE"`
	Lon       string `json:"LONGITUDE"`
	AreaSqm   string `json:"AREA"`
	MainPlant string `json:"MAIN_EQUIP"`
	OpenInfo  string `json:"USE_REFER"`
}

// ParkAdapter ingests the public park directory. Directory domains change
// rarely and arrive as a complete roster, so they are committed via
// truncate-and-reload.
type ParkAdapter struct {
	base
}

func (a *ParkAdapter) Domain() types.Domain            { return types.DomainPark }
func (a *ParkAdapter) Strategy() types.PersistStrategy { return types.PersistReload }

func (a *ParkAdapter) Fetch(ctx context.Context) (*Result, error) {
	rows, raw, fetchErr := fetchPaged[parkRow](ctx, a.client, a.cfg.BaseURL, a.cfg.APIKey, parkService, "", a.cfg.PageSize)
	if fetchErr != nil && len(rows) == 0 {
		return nil, fetchErr
	}

	now := a.clock.Now()
	records := make([]types.NormalizedRecord, 0, len(rows))
	for _, row := range rows {
		if row.ParkID == "" {
			continue
		}

		metrics := make(map[string]float64, 1)
		if v, ok := parseFloat(row.AreaSqm); ok {
			metrics["area_sqm"] = v
		}

		rec := types.NormalizedRecord{
			Domain:     types.DomainPark,
			ExternalID: row.ParkID,
			Name:       row.Name,
			Coordinate: parseCoord(row.Lat, row.Lon),
			Metrics:    metrics,
			Attrs: map[string]string{
				"address":    row.Address,
				"facilities": row.MainPlant,
				"open_info":  row.OpenInfo,
			},
			FetchedAt: now,
		}
		a.enrich(&rec)
		if row.Zone != "" {
			rec.DistrictName = row.Zone
		}
		records = append(records, rec)
	}

	return &Result{Records: records, Raw: raw}, fetchErr
}

// libraryRow is one public library listing.
type libraryRow struct {
	LibraryID string `json:"LBRRY_SEQ_NO"`
	Name      string `json:"LBRRY_NAME"`
	District  string `json:"CODE_VALUE"`
	Address   string `json:"ADRES"`
	Lat       string `json:"XCNTS"`
	Lon       string `json:"YDNTS"`
	Tel       string `json:"TEL_NO"`
	Homepage  string `json:"HMPG_URL"`
	OpenHours string `json:"OP_TIME"`
	ClosedDay string `json:"FDRM_CLOSE_DATE"`
}

// LibraryAdapter ingests the public library directory.
type LibraryAdapter struct {
	base
}

func (a *LibraryAdapter) Domain() types.Domain            { return types.DomainLibrary }
func (a *LibraryAdapter) Strategy() types.PersistStrategy { return types.PersistReload }

func (a *LibraryAdapter) Fetch(ctx context.Context) (*Result, error) {
	rows, raw, fetchErr := fetchPaged[libraryRow](ctx, a.client, a.cfg.BaseURL, a.cfg.APIKey, libService, "", a.cfg.PageSize)
	if fetchErr != nil && len(rows) == 0 {
		return nil, fetchErr
	}

	now := a.clock.Now()
	records := make([]types.NormalizedRecord, 0, len(rows))
	for _, row := range rows {
		if row.LibraryID == "" {
			continue
		}

		rec := types.NormalizedRecord{
			Domain:     types.DomainLibrary,
			ExternalID: row.LibraryID,
			Name:       row.Name,
			Coordinate: parseCoord(row.Lat, row.Lon),
			Attrs: map[string]string{
				"address":    row.Address,
				"tel":        row.Tel,
				"homepage":   row.Homepage,
				"open_hours": row.OpenHours,
				"closed_day": row.ClosedDay,
			},
			FetchedAt: now,
		}
		a.enrich(&rec)
		if row.District != "" {
			rec.DistrictName = row.District
		}
		records = append(records, rec)
	}

	return &Result{Records: records, Raw: raw}, fetchErr
}

// sportsRow is one reservable sports facility slot.
type sportsRow struct {
	ServiceID string `json:"SVCID"`
	Name      string `json:"SVCNM"`
	Category  string `json:"MINCLASSNM"`
	Place     string `json:"PLACENM"`
	District  string `json:"AREANM"`
	Lat       string `json:"Y"`
	Lon       string `json:"X"`
	Status    string `json:"SVCSTATNM"`
	Pay       string `json:"PAYATNM"`
	UseBegin  string `json:"SVCOPNBGNDT"`
	UseEnd    string `json:"SVCOPNENDDT"`
	RcvBegin  string `json:"RCPTBGNDT"`
	RcvEnd    string `json:"RCPTENDDT"`
	DetailURL string `json:"SVCURL"`
}

// SportsFacilityAdapter ingests reservable public sports facilities together
// with their reservation windows.
type SportsFacilityAdapter struct {
	base
}

func (a *SportsFacilityAdapter) Domain() types.Domain            { return types.DomainSportsFacility }
func (a *SportsFacilityAdapter) Strategy() types.PersistStrategy { return types.PersistReload }

func (a *SportsFacilityAdapter) Fetch(ctx context.Context) (*Result, error) {
	rows, raw, fetchErr := fetchPaged[sportsRow](ctx, a.client, a.cfg.BaseURL, a.cfg.APIKey, sportsService, "", a.cfg.PageSize)
	if fetchErr != nil && len(rows) == 0 {
		return nil, fetchErr
	}

	now := a.clock.Now()
	records := make([]types.NormalizedRecord, 0, len(rows))
	for _, row := range rows {
		if row.ServiceID == "" {
			continue
		}

		var window *types.TimeWindow
		if start, ok := parseOpenDate(row.RcvBegin); ok {
			w := types.TimeWindow{Start: start}
			if end, ok := parseOpenDate(row.RcvEnd); ok {
				w.End = end
			}
			window = &w
		}

		rec := types.NormalizedRecord{
			Domain:     types.DomainSportsFacility,
			ExternalID: row.ServiceID,
			Name:       row.Name,
			Coordinate: parseCoord(row.Lat, row.Lon),
			Category:   row.Category,
			Attrs: map[string]string{
				"place":      row.Place,
				"status":     row.Status,
				"pay_type":   row.Pay,
				"use_begin":  row.UseBegin,
				"use_end":    row.UseEnd,
				"detail_url": row.DetailURL,
			},
			Window:    window,
			FetchedAt: now,
		}
		a.enrich(&rec)
		if row.District != "" {
			rec.DistrictName = row.District
		}
		records = append(records, rec)
	}

	return &Result{Records: records, Raw: raw}, fetchErr
}
