package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "eventmap/internal/log"
	"eventmap/internal/model"
)

const defaultMaxOccurrencesPerEvent = 500

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// RangeStart / RangeEnd bound the instances produced for recurring
	// events. One-off events are always kept.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps a single RRULE. Zero means
	// defaultMaxOccurrencesPerEvent.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the map events and the UIDs that hit the cap.
type ExpandResult struct {
	Events          []model.Event
	TruncatedEvents []string
}

// ExpandEvents turns parsed VEVENTs into map events. Recurring events become
// one event per instance inside the range, each with its own ID; EXDATE and
// RECURRENCE-ID overrides are honoured. Output order follows input order,
// instances in time order.
func ExpandEvents(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		}
	}

	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			continue
		}
		ov := overridesByUID[ev.UID]

		if ev.RawRRule == "" {
			if o, ok := findOverrideForStart(ov, ev.Start); ok {
				ev = o
			}
			result.Events = append(result.Events, makeEvent(ev, ev.Start, ev.End, ""))
			continue
		}

		expanded, hitCap := expandRecurring(ev, ov, cfg)
		result.Events = append(result.Events, expanded...)
		if hitCap {
			result.TruncatedEvents = append(result.TruncatedEvents, ev.UID)
			appLog.Warn("expand: truncated occurrences for UID due to cap",
				"uid", ev.UID,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	return result, nil
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	loc := ev.Start.Location()
	starts := set.Between(cfg.RangeStart.In(loc), cfg.RangeEnd.In(loc), true)

	hitCap := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	dur := ev.End.Sub(ev.Start)
	out := make([]model.Event, 0, len(starts))
	for _, start := range starts {
		instance := ev
		end := start.Add(dur)
		key := start.Format(time.RFC3339)

		if o, ok := findOverrideForStart(overrides, start); ok {
			instance = o
			start, end = o.Start, o.End
		}
		out = append(out, makeEvent(instance, start, end, key))
	}
	return out, hitCap
}

// findOverrideForStart finds the override whose RECURRENCE-ID equals start.
func findOverrideForStart(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// makeEvent converts one (possibly overridden) instance into a map event.
// instanceKey is empty for one-off events.
func makeEvent(ev ParsedEvent, start, end time.Time, instanceKey string) model.Event {
	id := "ics:" + ev.Source.ID + ":" + ev.UID
	if instanceKey != "" {
		id += ":" + instanceKey
	}
	return model.Event{
		ID:          id,
		Name:        ev.Summary,
		Start:       start.Format(time.RFC3339),
		End:         end.Format(time.RFC3339),
		Lat:         ev.Geo.Lat,
		Lng:         ev.Geo.Lng,
		URL:         ev.URL,
		Description: ev.Description,
		Location:    ev.Location,
		AllDay:      ev.AllDay,
	}
}
