package zones

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/zonemap/internal/projection"
)

func squareRing() []projection.GeoPoint {
	return []projection.GeoPoint{
		{Lat: 50.5, Lon: 14.2},
		{Lat: 50.5, Lon: 14.8},
		{Lat: 50.7, Lon: 14.8},
		{Lat: 50.7, Lon: 14.2},
		{Lat: 50.5, Lon: 14.2},
	}
}

func TestZoneValidate(t *testing.T) {
	open := squareRing()[:4]
	tooShort := []projection.GeoPoint{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}, {Lat: 1, Lon: 1}}
	outOfRange := squareRing()
	outOfRange[2] = projection.GeoPoint{Lat: 95, Lon: 14}
	nonFinite := squareRing()
	nonFinite[1] = projection.GeoPoint{Lat: math.NaN(), Lon: 14}

	tests := []struct {
		name    string
		zone    Zone
		wantErr bool
	}{
		{"valid", Zone{Name: "a", Rings: [][]projection.GeoPoint{squareRing()}, Intensity: 0.5}, false},
		{"no rings", Zone{Name: "a", Intensity: 0.5}, true},
		{"open ring", Zone{Name: "a", Rings: [][]projection.GeoPoint{open}, Intensity: 0.5}, true},
		{"too short", Zone{Name: "a", Rings: [][]projection.GeoPoint{tooShort}, Intensity: 0.5}, true},
		{"out of range", Zone{Name: "a", Rings: [][]projection.GeoPoint{outOfRange}, Intensity: 0.5}, true},
		{"non-finite", Zone{Name: "a", Rings: [][]projection.GeoPoint{nonFinite}, Intensity: 0.5}, true},
		{"intensity", Zone{Name: "a", Rings: [][]projection.GeoPoint{squareRing()}, Intensity: 1.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.zone.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidZone)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestZoneBBox(t *testing.T) {
	z := Zone{Rings: [][]projection.GeoPoint{squareRing(), {{Lat: 49, Lon: 16}}}}
	b, ok := z.BBox()
	require.True(t, ok)
	assert.Equal(t, projection.GeoPoint{Lat: 50.7, Lon: 14.2}, b.TopLeft)
	assert.Equal(t, projection.GeoPoint{Lat: 49, Lon: 16}, b.BottomRight)

	_, ok = Zone{}.BBox()
	assert.False(t, ok)
}

func TestZoneKey(t *testing.T) {
	a := Zone{Name: "x", Year: 2024, Rings: [][]projection.GeoPoint{squareRing()}}
	b := a
	b.Description = "same zone, other chunk"
	assert.Equal(t, a.Key(), b.Key())

	c := a
	c.Year = 2023
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestCleanText(t *testing.T) {
	// "e" followed by a combining acute accent composes to a single rune.
	assert.Equal(t, "\u00e9cole", cleanText("  e\u0301cole "))
}

func TestParseCoordOrder(t *testing.T) {
	o, err := ParseCoordOrder("")
	require.NoError(t, err)
	assert.Equal(t, LatLon, o)

	o, err = ParseCoordOrder("lonlat")
	require.NoError(t, err)
	assert.Equal(t, LonLat, o)

	_, err = ParseCoordOrder("xy")
	assert.Error(t, err)
}

func TestWireColor(t *testing.T) {
	n := func(v int) *int { return &v }

	c, err := wireColor(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultColor, c)

	c, err = wireColor([]*int{n(1), n(2), n(3)})
	require.NoError(t, err)
	assert.Equal(t, RGB{1, 2, 3}, c)

	_, err = wireColor([]*int{n(1), n(2)})
	assert.ErrorIs(t, err, ErrInvalidZone)

	_, err = wireColor([]*int{n(1), nil, n(3)})
	assert.ErrorIs(t, err, ErrInvalidZone)

	_, err = wireColor([]*int{n(-1), n(2), n(3)})
	assert.ErrorIs(t, err, ErrInvalidZone)
}
