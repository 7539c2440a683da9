package geo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoint_JSONRoundTrip(t *testing.T) {
	p := Point{Lng: 78.4867, Lat: 17.385}

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Point","coordinates":[78.4867,17.385]}`, string(data))

	var back Point
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, p, back)
}

func TestPoint_UnmarshalRejectsNonPoint(t *testing.T) {
	var p Point
	err := json.Unmarshal([]byte(`{"type":"Polygon","coordinates":[0,0]}`), &p)
	assert.ErrorIs(t, err, ErrInvalidPoint)
}

func TestNewPoint_Bounds(t *testing.T) {
	_, err := NewPoint(181, 0)
	assert.ErrorIs(t, err, ErrInvalidPoint)

	_, err = NewPoint(0, -91)
	assert.ErrorIs(t, err, ErrInvalidPoint)

	_, err = NewPoint(78.48, 17.38)
	assert.NoError(t, err)
}

func TestDistanceMeters(t *testing.T) {
	vizag := Point{Lng: 83.2185, Lat: 17.6868}
	vijayawada := Point{Lng: 80.648, Lat: 16.5062}

	d := DistanceMeters(vizag, vijayawada)
	// Roughly 300km between the two cities.
	assert.InDelta(t, 303000, d, 10000)

	assert.Zero(t, DistanceMeters(vizag, vizag))
}
