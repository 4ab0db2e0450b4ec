package sources

import (
	"context"
	"strconv"
	"strings"
	"time"

	"citypulse/internal/config"
	"citypulse/internal/types"
)

// Result is one adapter's output for a cycle: the normalized records plus
// the raw upstream payload kept for re-parse and debugging.
type Result struct {
	Records []types.NormalizedRecord
	Raw     []byte
}

// Adapter is the per-domain capability: fetch raw data from the external API
// and normalize it. Implementations must not surface recoverable HTTP errors
// as panics or plain failures; they return typed AppErrors so the pipeline
// can contain the damage to one source.
type Adapter interface {
	// Domain returns the data category this adapter provides.
	Domain() types.Domain
	// Strategy selects how the pipeline commits this domain's records.
	Strategy() types.PersistStrategy
	// Fetch retrieves and normalizes the domain's current dataset.
	Fetch(ctx context.Context) (*Result, error)
}

// DistrictResolver is the geocoding capability adapters use for location
// enrichment during normalization. A failed resolution degrades the record
// to the unresolved-district marker; it never aborts ingestion.
type DistrictResolver interface {
	Resolve(types.Coordinate) (types.AdministrativeDistrict, bool)
}

// base carries the shared wiring for every adapter.
type base struct {
	client   *Client
	cfg      config.SourcesConfig
	resolver DistrictResolver
	clock    types.Clock
}

// enrich fills the district fields from the record's coordinate. Records
// without a coordinate, or outside coverage, get the unresolved marker.
func (b base) enrich(rec *types.NormalizedRecord) {
	rec.DistrictCode = ""
	rec.DistrictName = types.UnresolvedDistrict
	if rec.Coordinate == nil {
		return
	}
	if d, ok := b.resolver.Resolve(*rec.Coordinate); ok {
		rec.DistrictCode = d.Code
		rec.DistrictName = d.Name
	}
}

// parseCoord converts upstream lat/lon strings into a validated coordinate.
// Returns nil for absent, unparseable, or out-of-range values; the caller
// keeps the record but skips enrichment and radius matching.
func parseCoord(latStr, lonStr string) *types.Coordinate {
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if errLat != nil || errLon != nil {
		return nil
	}
	c := types.Coordinate{Lat: lat, Lon: lon}
	if c.Validate() != nil {
		return nil
	}
	// Some feeds emit 0/0 for unknown positions.
	if lat == 0 && lon == 0 {
		return nil
	}
	return &c
}

// parseFloat is a lenient numeric parse for metric fields; missing or
// malformed values simply omit the metric.
func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseOpenDate parses the date formats the open API mixes freely:
// "2006-01-02 15:04:05.0", "2006-01-02", and "20060102".
func parseOpenDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02 15:04:05.0", "2006-01-02 15:04:05", "2006-01-02", "20060102"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// All constructs the full adapter set wired to one shared client, resolver,
// and clock. The order matches types.AllDomains.
func All(client *Client, cfg config.SourcesConfig, resolver DistrictResolver, clock types.Clock) []Adapter {
	b := base{client: client, cfg: cfg, resolver: resolver, clock: clock}
	return []Adapter{
		&WeatherAdapter{base: b},
		&AirQualityAdapter{base: b},
		&BikeShareAdapter{base: b},
		&CultureAdapter{base: b},
		&CoolingShelterAdapter{base: b},
		&ParkAdapter{base: b},
		&LibraryAdapter{base: b},
		&SportsFacilityAdapter{base: b},
	}
}
