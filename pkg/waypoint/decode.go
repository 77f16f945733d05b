package waypoint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Coord is a coordinate as written in a tour file. Tour files carry
// coordinates either as JSON strings or as numbers.
type Coord string

// UnmarshalJSON accepts a JSON string or number.
func (c *Coord) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*c = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Coord(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("coordinate must be a string or number: %w", err)
		}
		*c = Coord(n)
	}
	return nil
}

// Record is one entry of a tour file:
//
//	{"value": {"longitude": "-87.6226", "latitude": "41.8826", "name": "Millennium Park"}}
type Record struct {
	Value RecordValue `json:"value"`
}

// RecordValue holds the fields of a Record.
type RecordValue struct {
	Longitude Coord  `json:"longitude"`
	Latitude  Coord  `json:"latitude"`
	Name      string `json:"name,omitempty"`
}

// NewRecord builds a Record from numeric coordinates.
func NewRecord(lng, lat float64, name string) Record {
	return Record{Value: RecordValue{
		Longitude: Coord(strconv.FormatFloat(lng, 'f', -1, 64)),
		Latitude:  Coord(strconv.FormatFloat(lat, 'f', -1, 64)),
		Name:      name,
	}}
}

// Decode reads a tour file: a JSON array of records.
func Decode(r io.Reader) ([]Record, error) {
	var records []Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, &ParseError{Index: -1, Reason: fmt.Sprintf("invalid tour file: %v", err)}
	}
	return records, nil
}

// DecodeGeoJSON reads a FeatureCollection of Point features in tour order.
// The optional "name" property becomes the waypoint name.
func DecodeGeoJSON(data []byte) ([]Record, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, &ParseError{Index: -1, Reason: fmt.Sprintf("invalid GeoJSON: %v", err)}
	}

	records := make([]Record, len(fc.Features))
	for i, f := range fc.Features {
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			kind := "null"
			if f.Geometry != nil {
				kind = f.Geometry.GeoJSONType()
			}
			return nil, &ParseError{Index: i, Field: "geometry", Reason: fmt.Sprintf("want Point, got %s", kind)}
		}
		records[i] = NewRecord(p.Lon(), p.Lat(), f.Properties.MustString("name", ""))
	}
	return records, nil
}
