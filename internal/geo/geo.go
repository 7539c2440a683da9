package geo

import (
	"encoding/json"
	"errors"
	"math"
)

// Point is a WGS84 coordinate pair. It marshals to the GeoJSON shape
// {"type":"Point","coordinates":[lng,lat]} used by the order API.
type Point struct {
	Lng float64
	Lat float64
}

var ErrInvalidPoint = errors.New("invalid geo point")

func NewPoint(lng, lat float64) (Point, error) {
	if lng < -180 || lng > 180 || lat < -90 || lat > 90 {
		return Point{}, ErrInvalidPoint
	}
	return Point{Lng: lng, Lat: lat}, nil
}

type geoJSON struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(geoJSON{Type: "Point", Coordinates: [2]float64{p.Lng, p.Lat}})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var g geoJSON
	if err := json.Unmarshal(data, &g); err != nil {
		return err
	}
	if g.Type != "Point" {
		return ErrInvalidPoint
	}
	pt, err := NewPoint(g.Coordinates[0], g.Coordinates[1])
	if err != nil {
		return err
	}
	*p = pt
	return nil
}

const earthRadiusMeters = 6371000

// DistanceMeters returns the haversine great-circle distance between two points.
func DistanceMeters(a, b Point) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
