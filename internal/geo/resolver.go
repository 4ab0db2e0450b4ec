// Package geo implements the administrative district resolver and the
// great-circle distance math shared by ingestion enrichment and trigger
// radius filtering.
//
// The resolver is a pure lookup over static reference data: it never fails,
// it returns not-found for out-of-coverage coordinates, and it is safe for
// concurrent use by parallel ingestion workers.
package geo

import (
	"math"

	"citypulse/internal/types"
)

const earthRadiusKM = 6371.0

// DistanceKM computes the haversine great-circle distance between two
// coordinates in kilometers.
func DistanceKM(a, b types.Coordinate) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKM * math.Asin(math.Sqrt(h))
}

// coverageLimitKM bounds how far a coordinate may be from the nearest
// district centroid and still resolve. Beyond this the coordinate is
// considered out of coverage.
const coverageLimitKM = 12.0

// Resolver maps coordinates to administrative districts via nearest-centroid
// lookup over the static reference table. Zero-value is not usable; construct
// with NewResolver.
type Resolver struct {
	districts []district
}

// NewResolver builds a resolver over the built-in district reference data.
func NewResolver() *Resolver {
	return &Resolver{districts: districtTable}
}

// Resolve returns the administrative district containing the coordinate, or
// ok=false when the coordinate is invalid or outside the coverage area.
// It never returns an error: out-of-coverage is an expected answer, not a
// failure.
func (r *Resolver) Resolve(coord types.Coordinate) (types.AdministrativeDistrict, bool) {
	if err := coord.Validate(); err != nil {
		return types.AdministrativeDistrict{}, false
	}

	bestIdx := -1
	bestDist := math.MaxFloat64
	for i := range r.districts {
		d := r.districts[i]
		dist := DistanceKM(coord, types.Coordinate{Lat: d.lat, Lon: d.lon})
		if dist < bestDist {
			bestDist = dist
			bestIdx = i
		}
	}

	if bestIdx < 0 || bestDist > coverageLimitKM {
		return types.AdministrativeDistrict{}, false
	}

	found := r.districts[bestIdx]
	return types.AdministrativeDistrict{Code: found.code, Name: found.name}, true
}
