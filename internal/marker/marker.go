// Package marker projects store events onto the map as clickable markers.
package marker

import (
	"errors"
	"fmt"

	"eventmap/internal/model"
)

// ErrUnknownMarker is returned when a click names no marker on the layer.
var ErrUnknownMarker = errors.New("unknown marker")

// Icon is the image drawn for a marker, in Leaflet icon terms.
type Icon struct {
	URL         string `json:"icon_url"`
	Size        [2]int `json:"icon_size"`
	Anchor      [2]int `json:"icon_anchor"`
	PopupAnchor [2]int `json:"popup_anchor"`
}

// DefaultIcon is used for every event marker.
var DefaultIcon = Icon{
	URL:         "https://cdn-icons-png.flaticon.com/512/1673/1673188.png",
	Size:        [2]int{32, 32},
	Anchor:      [2]int{16, 32},
	PopupAnchor: [2]int{0, -32},
}

// Marker is one point on the map bound to a single event.
type Marker struct {
	EventID  string           `json:"event_id"`
	Position model.Coordinate `json:"position"`
	Icon     Icon             `json:"icon"`
}

// Layer holds one marker per event. Markers are created once and never
// removed or changed afterwards.
type Layer struct {
	markers []Marker
	events  map[string]model.Event
	onClick func(model.Event)
}

// NewLayer builds the markers for events in order. onClick receives the
// full record of a clicked marker; it may be nil.
func NewLayer(events []model.Event, icon Icon, onClick func(model.Event)) *Layer {
	l := &Layer{
		markers: make([]Marker, 0, len(events)),
		events:  make(map[string]model.Event, len(events)),
		onClick: onClick,
	}
	for _, ev := range events {
		l.markers = append(l.markers, Marker{
			EventID:  ev.ID,
			Position: ev.Position(),
			Icon:     icon,
		})
		l.events[ev.ID] = ev
	}
	return l
}

// Markers returns a copy of the markers in event order.
func (l *Layer) Markers() []Marker {
	out := make([]Marker, len(l.markers))
	copy(out, l.markers)
	return out
}

// Len returns the number of markers.
func (l *Layer) Len() int {
	return len(l.markers)
}

// Click reports the event behind the marker to the layer's callback.
func (l *Layer) Click(eventID string) (model.Event, error) {
	ev, ok := l.events[eventID]
	if !ok {
		return model.Event{}, fmt.Errorf("%w: %s", ErrUnknownMarker, eventID)
	}
	if l.onClick != nil {
		l.onClick(ev)
	}
	return ev, nil
}
