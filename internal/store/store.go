// Package store holds the immutable, ordered sequence of events shown on the
// map. A Store is built once at startup and only read afterwards.
package store

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"

	appLog "eventmap/internal/log"
	"eventmap/internal/model"
)

//go:embed data/events.json
var bundled embed.FS

// idNamespace scopes derived event IDs so they never collide with random UUIDs.
var idNamespace = uuid.MustParse("6f1c7a52-3b9e-4f0e-9a55-2d8e61c0b7a4")

// ErrNotFound is returned by Get for an unknown ID.
var ErrNotFound = errors.New("event not found")

// Store is an ordered, read-only event sequence with lookup by ID.
type Store struct {
	events []model.Event
	byID   map[string]int
}

// New concatenates base and extra (in that order) into a new Store.
//
// Inputs are never modified. Events without an ID get one derived from their
// content, so the same dataset yields the same IDs on every start. Repeated
// IDs are disambiguated with an ordinal suffix ("-2", "-3", ...) in sequence
// order.
func New(base []model.Event, extra ...model.Event) *Store {
	events := make([]model.Event, 0, len(base)+len(extra))
	events = append(events, base...)
	events = append(events, extra...)

	s := &Store{
		events: events,
		byID:   make(map[string]int, len(events)),
	}

	for i := range s.events {
		base := s.events[i].ID
		if base == "" {
			base = DeriveID(s.events[i])
		}
		id := base
		for n := 2; ; n++ {
			if _, taken := s.byID[id]; !taken {
				break
			}
			id = base + "-" + strconv.Itoa(n)
		}
		s.events[i].ID = id
		s.byID[id] = i
	}

	return s
}

// DeriveID returns the content-derived identifier used for events that do
// not carry one.
func DeriveID(ev model.Event) string {
	key := fmt.Sprintf("%s|%s|%s|%s",
		ev.Name,
		ev.Start,
		strconv.FormatFloat(ev.Lat, 'f', -1, 64),
		strconv.FormatFloat(ev.Lng, 'f', -1, 64),
	)
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// Events returns a copy of the sequence in store order.
func (s *Store) Events() []model.Event {
	out := make([]model.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of events.
func (s *Store) Len() int {
	return len(s.events)
}

// Get looks up an event by ID.
func (s *Store) Get(id string) (model.Event, error) {
	i, ok := s.byID[id]
	if !ok {
		return model.Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.events[i], nil
}

// Load reads a JSON array of events from path. An empty path returns the
// bundled dataset. Records are not validated; only undecodable JSON fails.
func Load(path string) ([]model.Event, error) {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = bundled.ReadFile("data/events.json")
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	var events []model.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("decode events %q: %w", sourceName(path), err)
	}

	appLog.Info("events loaded", "source", sourceName(path), "count", len(events))
	return events, nil
}

func sourceName(path string) string {
	if path == "" {
		return "bundled"
	}
	return path
}
