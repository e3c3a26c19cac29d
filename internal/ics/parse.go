package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "eventmap/internal/log"
	"eventmap/internal/model"
)

// ErrNoGeo marks a VEVENT without a usable GEO property. Such events cannot
// be placed on the map and are skipped.
var ErrNoGeo = errors.New("missing GEO")

// ParsedEvent is a geo-tagged VEVENT before recurrence expansion.
type ParsedEvent struct {
	Source Source

	UID string

	Summary     string
	Description string
	Location    string
	URL         string

	Geo model.Coordinate

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID, if this VEVENT overrides one instance
	IsOverride bool
}

// ParseICS parses a single iCalendar payload into geo-tagged events.
// VEVENTs without UID or GEO are logged and skipped.
func ParseICS(src Source, body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	skipped := 0
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(src, comp)
		if perr != nil {
			skipped++
			appLog.Debug("ics vevent skipped", "id", src.ID, "reason", perr.Error())
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "id", src.ID, "url", redactURL(src.URL), "event_count", len(events), "skipped", skipped)
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (ParsedEvent, error) {
	out := ParsedEvent{Source: src}

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	geoProp := ve.GetProperty(ical.ComponentPropertyGeo)
	if geoProp == nil {
		return out, fmt.Errorf("%w: uid=%s", ErrNoGeo, out.UID)
	}
	geo, err := parseGeo(geoProp.Value)
	if err != nil {
		return out, fmt.Errorf("%w: uid=%s: %v", ErrNoGeo, out.UID, err)
	}
	out.Geo = geo

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyUrl); p != nil {
		out.URL = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, fmt.Errorf("uid=%s: DTSTART: %w", out.UID, err)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		end = start
	}
	out.Start = start
	out.End = end

	// VALUE=DATE or a value without a time part marks an all-day event.
	if dt := ve.GetProperty(ical.ComponentPropertyDtStart); dt != nil {
		if vs, ok := dt.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			out.AllDay = true
		}
		if !strings.Contains(dt.Value, "T") {
			out.AllDay = true
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		loc := propLocation(p, start.Location())
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if rid := ve.GetProperty("RECURRENCE-ID"); rid != nil {
		if t, err := parseICSTime(rid.Value, propLocation(rid, start.Location())); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

// parseGeo parses the RFC 5545 GEO value "lat;lng".
func parseGeo(v string) (model.Coordinate, error) {
	latS, lngS, ok := strings.Cut(strings.TrimSpace(v), ";")
	if !ok {
		return model.Coordinate{}, fmt.Errorf("malformed GEO %q", v)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latS), 64)
	if err != nil {
		return model.Coordinate{}, err
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngS), 64)
	if err != nil {
		return model.Coordinate{}, err
	}
	return model.Coordinate{Lat: lat, Lng: lng}, nil
}

// propLocation resolves a property's TZID parameter. Values without one (or
// with an unknown zone) are read in fallback, the zone of DTSTART.
func propLocation(p *ical.IANAProperty, fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.Local
	}
	tzid, ok := p.ICalParameters["TZID"]
	if !ok || len(tzid) == 0 || tzid[0] == "" {
		return fallback
	}
	loc, err := time.LoadLocation(strings.Trim(tzid[0], `"`))
	if err != nil {
		appLog.Warn("ics: unknown TZID, using DTSTART zone", "tzid", tzid[0])
		return fallback
	}
	return loc
}

// parseICSTime parses a basic DATE or DATE-TIME value. UTC values carry a
// trailing Z; anything else is read in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
