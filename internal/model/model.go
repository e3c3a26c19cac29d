package model

import "time"

// Coordinate is a WGS84 latitude/longitude pair. Values are not range checked.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Event is a geo-tagged activity shown as a marker on the map.
//
// Start and End are kept as the ISO 8601 strings supplied by the dataset;
// they are only parsed when a consumer needs real times (calendar export).
type Event struct {
	// ID is a stable identifier. Optional in input data; the store derives
	// one when it is empty.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	Name  string `json:"name" yaml:"name"`
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`

	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`

	URL         string `json:"url" yaml:"url"`
	Description string `json:"description" yaml:"description"`

	// Location is an optional venue label (e.g. "Tokyo Studio, Japan").
	Location string `json:"location,omitempty" yaml:"location,omitempty"`

	// AllDay marks date-only events; Start and End then sit at midnight.
	AllDay bool `json:"all_day,omitempty" yaml:"all_day,omitempty"`
}

// Position returns the event's coordinate.
func (e Event) Position() Coordinate {
	return Coordinate{Lat: e.Lat, Lng: e.Lng}
}

// StartTime parses Start as RFC 3339.
func (e Event) StartTime() (time.Time, error) {
	return time.Parse(time.RFC3339, e.Start)
}

// EndTime parses End as RFC 3339.
func (e Event) EndTime() (time.Time, error) {
	return time.Parse(time.RFC3339, e.End)
}

// MapView is what the map surface was last told to display.
type MapView struct {
	Center Coordinate `json:"center"`
	Zoom   int        `json:"zoom"`
}
