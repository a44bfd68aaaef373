// Package geo converts a center and radius into the rectangular coordinate
// ranges used to pre-filter nearby stories.
//
// The conversion is the flat-earth approximation 1° latitude ≈ 111 km and
// 1° longitude ≈ 111 km·cos(latitude). The result is a bounding box, not a
// circle: points near the box corners can be up to √2·radius away. Callers
// must tolerate those false positives.
package geo

import (
	"math"

	"github.com/beunreal/story-service/internal/apperr"
	"github.com/beunreal/story-service/internal/domain"
)

const (
	KmPerDegree = 111.0

	// DefaultRadiusMeters applies when the caller does not send a radius.
	DefaultRadiusMeters = 5000.0

	// below this cos(lat) the longitude delta is treated as unbounded
	minCos = 1e-9
)

type Range struct {
	Min float64
	Max float64
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Box is a latitude range plus one or two longitude ranges. Two ranges
// appear when the box crosses the antimeridian. No ranges with AllLongitudes
// set means every longitude matches.
type Box struct {
	Lat           Range
	Lng           []Range
	AllLongitudes bool
}

// NewBox validates the center and radius and returns the search box.
func NewBox(lat, lng, radiusMeters float64) (Box, error) {
	if _, err := domain.NewLocation(lat, lng); err != nil {
		return Box{}, err
	}
	if math.IsNaN(radiusMeters) || math.IsInf(radiusMeters, 0) || radiusMeters <= 0 {
		return Box{}, apperr.Field("radius", "must be a positive number of meters")
	}

	radiusKm := radiusMeters / 1000
	latDelta := radiusKm / KmPerDegree

	box := Box{
		Lat: Range{
			Min: math.Max(lat-latDelta, -90),
			Max: math.Min(lat+latDelta, 90),
		},
	}

	lngDelta, ok := longitudeDelta(lat, radiusKm)
	if !ok {
		box.AllLongitudes = true
		return box, nil
	}

	lo, hi := lng-lngDelta, lng+lngDelta
	switch {
	case lo < -180:
		box.Lng = []Range{{Min: -180, Max: hi}, {Min: lo + 360, Max: 180}}
	case hi > 180:
		box.Lng = []Range{{Min: lo, Max: 180}, {Min: -180, Max: hi - 360}}
	default:
		box.Lng = []Range{{Min: lo, Max: hi}}
	}
	return box, nil
}

// longitudeDelta returns false when the delta would cover the whole globe,
// which happens near the poles where cos(lat) approaches zero.
func longitudeDelta(lat, radiusKm float64) (float64, bool) {
	c := math.Cos(lat * math.Pi / 180)
	if c < minCos {
		return 0, false
	}
	d := radiusKm / (KmPerDegree * c)
	if math.IsNaN(d) || math.IsInf(d, 0) || d >= 180 {
		return 0, false
	}
	return d, true
}

// Contains reports whether loc falls inside the box.
func (b Box) Contains(loc domain.Location) bool {
	if !b.Lat.Contains(loc.Latitude) {
		return false
	}
	if b.AllLongitudes {
		return true
	}
	for _, r := range b.Lng {
		if r.Contains(loc.Longitude) {
			return true
		}
	}
	return false
}
