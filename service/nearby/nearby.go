// Package nearby answers proximity queries over the current cycle's
// located submissions: a bounding-box prefilter in SQL, refined with
// exact haversine distances.
package nearby

import (
	"context"
	"math"
	"sort"

	"github.com/aux-fm/auxio/db"
	"github.com/aux-fm/auxio/errs"
	"github.com/aux-fm/auxio/models"
)

// CycleSource reads the live cycle.
type CycleSource interface {
	Current(ctx context.Context) (*models.Cycle, error)
}

const earthRadiusKm = 6371.0

type Service struct {
	db     *db.DB
	cycles CycleSource
}

func NewService(database *db.DB, cycles CycleSource) *Service {
	return &Service{db: database, cycles: cycles}
}

// GetNearby returns privacy-stripped submissions for the current cycle
// within radiusKm of the center, nearest first.
func (s *Service) GetNearby(ctx context.Context, lat, lon, radiusKm float64) ([]models.NearbySubmission, error) {
	const op errs.Op = "nearby.GetNearby"

	if radiusKm <= 0 || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, errs.E(op, errs.Invalid, "bad center or radius")
	}

	cyc, err := s.cycles.Current(ctx)
	if err != nil {
		return nil, errs.E(op, err)
	}

	minLat, maxLat, minLon, maxLon := boundingBox(lat, lon, radiusKm)

	subs, err := s.db.SubmissionsInBox(cyc.Number, minLat, maxLat, minLon, maxLon)
	if err != nil {
		return nil, errs.E(op, err)
	}

	results := []models.NearbySubmission{}
	for _, sub := range subs {
		if sub.Latitude == nil || sub.Longitude == nil {
			continue
		}

		dist := haversineKm(lat, lon, *sub.Latitude, *sub.Longitude)
		if dist > radiusKm {
			continue
		}

		results = append(results, models.NearbySubmission{
			ID:         sub.ID,
			Username:   sub.Username,
			Song:       sub.Song,
			Audial:     sub.Audial,
			Latitude:   *sub.Latitude,
			Longitude:  *sub.Longitude,
			DistanceKm: dist,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].DistanceKm < results[j].DistanceKm
	})

	return results, nil
}

// boundingBox computes the lat/lon window containing a radius around
// the center, on a spherical earth. The longitude delta degenerates
// near the poles, so it is clamped to the full range there.
func boundingBox(lat, lon, radiusKm float64) (minLat, maxLat, minLon, maxLon float64) {
	latDelta := (radiusKm / earthRadiusKm) * (180 / math.Pi)

	lonDelta := 180.0
	if cosLat := math.Cos(lat * math.Pi / 180); cosLat > 1e-6 {
		lonDelta = latDelta / cosLat
	}

	return lat - latDelta, lat + latDelta, lon - lonDelta, lon + lonDelta
}

// haversineKm is the great-circle distance between two coordinates.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := math.Pi / 180

	dLat := (lat2 - lat1) * toRad
	dLon := (lon2 - lon1) * toRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*toRad)*math.Cos(lat2*toRad)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
