// Package geo finds entities within a radius of a point using great-circle
// distance, with an exact city-name fallback for entities without
// coordinates.
package geo

import (
	"math"
	"sort"
	"strings"

	"github.com/jwalitptl/lifedrop-api/pkg/errors"
)

// EarthRadiusKm is the mean earth radius used by Distance.
const EarthRadiusKm = 6371.0

type Point struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// PointOf builds a Point from optional stored coordinates.
func PointOf(lat, lng *float64) (Point, bool) {
	if lat == nil || lng == nil {
		return Point{}, false
	}
	p := Point{Lat: *lat, Lng: *lng}
	return p, p.Valid()
}

func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Distance returns the haversine distance between a and b in kilometres.
func Distance(a, b Point) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLat := lat2 - lat1
	dLng := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// Box is a latitude/longitude rectangle used to narrow candidates in storage.
type Box struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

func (b Box) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// BoundingBox returns a rectangle that contains every point within radiusKm
// of center. It reports false when the circle touches a pole or crosses the
// antimeridian; callers then skip the prefilter.
func BoundingBox(center Point, radiusKm float64) (Box, bool) {
	if !center.Valid() || radiusKm <= 0 {
		return Box{}, false
	}

	// slight widening so float error never drops a boundary point
	angular := radiusKm / EarthRadiusKm * 1.001
	lat := toRad(center.Lat)
	minLat := lat - angular
	maxLat := lat + angular
	if minLat <= -math.Pi/2 || maxLat >= math.Pi/2 {
		return Box{}, false
	}

	ratio := math.Sin(angular) / math.Cos(lat)
	if ratio >= 1 {
		return Box{}, false
	}
	dLng := math.Asin(ratio)
	minLng := toRad(center.Lng) - dLng
	maxLng := toRad(center.Lng) + dLng
	if minLng < -math.Pi || maxLng > math.Pi {
		return Box{}, false
	}

	return Box{
		MinLat: toDeg(minLat),
		MaxLat: toDeg(maxLat),
		MinLng: toDeg(minLng),
		MaxLng: toDeg(maxLng),
	}, true
}

// Locatable is implemented by anything that can be matched by location.
type Locatable interface {
	Coordinates() (Point, bool)
	CityName() string
}

// Query describes one radius search. Center may be nil when the origin has no
// coordinates, in which case only the city fallback applies.
type Query struct {
	Center   *Point
	RadiusKm float64
	City     string
}

func (q Query) Validate() error {
	verr := errors.NewValidation("invalid location search")
	if math.IsNaN(q.RadiusKm) || q.RadiusKm <= 0 {
		verr.Field("radius_km", "must be greater than zero")
	}
	if q.Center != nil && !q.Center.Valid() {
		verr.Field("center", "must be a valid latitude/longitude")
	}
	if q.Center == nil && strings.TrimSpace(q.City) == "" {
		verr.Field("center", "a center point or a city is required")
	}
	return verr.OrNil()
}

// Box returns the storage prefilter for the query, if one applies.
func (q Query) Box() (Box, bool) {
	if q.Center == nil {
		return Box{}, false
	}
	return BoundingBox(*q.Center, q.RadiusKm)
}

// Match is one accepted candidate. DistanceKm is nil when the candidate was
// accepted through the city fallback.
type Match[T any] struct {
	Item       T        `json:"item"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

// Includes decides a single candidate. Missing coordinates mean the distance
// is undefined, never zero.
func (q Query) Includes(c Locatable) (bool, *float64) {
	if q.Center != nil {
		if p, ok := c.Coordinates(); ok {
			d := Distance(*q.Center, p)
			if d <= q.RadiusKm {
				return true, &d
			}
			return false, nil
		}
	}
	return SameCity(q.City, c.CityName()), nil
}

// SameCity is the city fallback rule: both names trimmed, then compared
// exactly. Storage keeps city names trimmed so SQL equality agrees.
func SameCity(a, b string) bool {
	a = strings.TrimSpace(a)
	return a != "" && a == strings.TrimSpace(b)
}

// Filter applies q and keep to items and orders the result. When less is nil
// matches are ordered by distance with city-only matches last.
func Filter[T Locatable](q Query, items []T, keep func(T) bool, less func(a, b Match[T]) bool) ([]Match[T], error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	out := make([]Match[T], 0, len(items))
	for _, item := range items {
		if keep != nil && !keep(item) {
			continue
		}
		if ok, d := q.Includes(item); ok {
			out = append(out, Match[T]{Item: item, DistanceKm: d})
		}
	}

	if less == nil {
		less = ByDistance[T]
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}

// ByDistance orders nearer matches first and city-only matches last.
func ByDistance[T any](a, b Match[T]) bool {
	switch {
	case a.DistanceKm == nil:
		return false
	case b.DistanceKm == nil:
		return true
	default:
		return *a.DistanceKm < *b.DistanceKm
	}
}

// Items strips the match metadata.
func Items[T any](matches []Match[T]) []T {
	out := make([]T, len(matches))
	for i, m := range matches {
		out[i] = m.Item
	}
	return out
}
