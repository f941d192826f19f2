package geo

import (
	stderrors "errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lifedrop-api/pkg/errors"
)

type place struct {
	name string
	lat  *float64
	lng  *float64
	city string
}

func (p place) Coordinates() (Point, bool) { return PointOf(p.lat, p.lng) }
func (p place) CityName() string           { return p.city }

func at(name string, lat, lng float64, city string) place {
	return place{name: name, lat: &lat, lng: &lng, city: city}
}

var mumbai = Point{Lat: 19.0760, Lng: 72.8777}

func TestDistanceKnownPairs(t *testing.T) {
	pune := Point{Lat: 18.5204, Lng: 73.8567}
	assert.InDelta(t, 120.0, Distance(mumbai, pune), 2.0)
	assert.Zero(t, Distance(mumbai, mumbai))
	assert.InDelta(t, math.Pi*EarthRadiusKm, Distance(Point{0, 0}, Point{0, 180}), 0.001)
}

func TestFilterIncludesBoundaryAndZeroDistance(t *testing.T) {
	edge := Point{Lat: 19.2, Lng: 72.9}
	radius := Distance(mumbai, edge)

	items := []place{
		at("here", mumbai.Lat, mumbai.Lng, "Mumbai"),
		at("edge", edge.Lat, edge.Lng, "Thane"),
		at("far", 28.6139, 77.2090, "Delhi"),
	}

	got, err := Filter(Query{Center: &mumbai, RadiusKm: radius}, items, nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "here", got[0].Item.name)
	assert.Equal(t, 0.0, *got[0].DistanceKm)
	assert.Equal(t, "edge", got[1].Item.name)
}

func TestMissingCoordinatesNeverMatchByDistance(t *testing.T) {
	noCoords := place{name: "unknown", city: "Mumbai"}
	elsewhere := place{name: "other-city", city: "Pune"}

	got, err := Filter(Query{Center: &mumbai, RadiusKm: 50}, []place{noCoords, elsewhere}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got, "no city given, so no fallback")

	got, err = Filter(Query{Center: &mumbai, RadiusKm: 50, City: "Mumbai"}, []place{noCoords, elsewhere}, nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "unknown", got[0].Item.name)
	assert.Nil(t, got[0].DistanceKm)
}

func TestCityFallbackIsExact(t *testing.T) {
	items := []place{{name: "a", city: "Mumbai"}, {name: "b", city: "mumbai"}, {name: "c", city: "Navi Mumbai"}}
	got, err := Filter(Query{RadiusKm: 10, City: "Mumbai"}, items, nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Item.name)
}

func TestSameCityTrimsButKeepsCase(t *testing.T) {
	assert.True(t, SameCity(" Pune", "Pune "))
	assert.False(t, SameCity("Pune", "pune"))
	assert.False(t, SameCity("  ", "  "))

	got, err := Filter(Query{RadiusKm: 10, City: " Mumbai "}, []place{{name: "a", city: "Mumbai"}}, nil, nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCandidateWithCoordinatesOutsideRadiusIgnoresCity(t *testing.T) {
	items := []place{at("far-same-city", 28.6, 77.2, "Mumbai")}
	got, err := Filter(Query{Center: &mumbai, RadiusKm: 10, City: "Mumbai"}, items, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInvalidRadiusRejected(t *testing.T) {
	for _, r := range []float64{0, -5, math.NaN()} {
		_, err := Filter(Query{Center: &mumbai, RadiusKm: r}, []place{}, nil, nil)
		var verr *errors.ValidationError
		require.True(t, stderrors.As(err, &verr), "radius %v", r)
		assert.Contains(t, verr.Fields, "radius_km")
	}
}

func TestKeepAndCustomOrder(t *testing.T) {
	items := []place{
		at("b", 19.08, 72.88, "Mumbai"),
		at("a", 19.09, 72.89, "Mumbai"),
		at("skip", 19.07, 72.87, "Mumbai"),
	}
	got, err := Filter(Query{Center: &mumbai, RadiusKm: 25}, items,
		func(p place) bool { return p.name != "skip" },
		func(x, y Match[place]) bool { return x.Item.name < y.Item.name },
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, []string{got[0].Item.name, got[1].Item.name})
}

func TestBoundingBoxContainsCircle(t *testing.T) {
	box, ok := BoundingBox(mumbai, 30)
	require.True(t, ok)

	// sample the circle edge in every direction
	for bearing := 0.0; bearing < 360; bearing += 15 {
		p := destination(mumbai, 30, bearing)
		assert.True(t, box.Contains(p), "bearing %v point %+v", bearing, p)
	}
}

func TestBoundingBoxSkippedAcrossAntimeridianAndPoles(t *testing.T) {
	_, ok := BoundingBox(Point{Lat: -17.7, Lng: 179.9}, 50)
	assert.False(t, ok)

	_, ok = BoundingBox(Point{Lat: 89.9, Lng: 0}, 50)
	assert.False(t, ok)
}

// destination returns the point distKm away from p along bearing degrees.
func destination(p Point, distKm, bearing float64) Point {
	d := distKm / EarthRadiusKm
	b := toRad(bearing)
	lat1 := toRad(p.Lat)
	lng1 := toRad(p.Lng)
	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(b))
	lng2 := lng1 + math.Atan2(math.Sin(b)*math.Sin(d)*math.Cos(lat1), math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))
	return Point{Lat: toDeg(lat2), Lng: toDeg(lng2)}
}
