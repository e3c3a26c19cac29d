package ics

import (
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "eventmap/internal/log"
	"eventmap/internal/model"
)

// Export serializes events as an iCalendar document. Each event keeps its ID
// as UID and its coordinate as GEO. Events whose start or end is not valid
// RFC 3339 are left out of the calendar.
func Export(events []model.Event, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//eventmap//events//EN")

	skipped := 0
	for _, ev := range events {
		start, err := ev.StartTime()
		if err != nil {
			skipped++
			continue
		}
		end, err := ev.EndTime()
		if err != nil {
			skipped++
			continue
		}

		ve := cal.AddEvent(ev.ID)
		ve.SetDtStampTime(now.UTC())
		if ev.AllDay {
			ve.SetAllDayStartAt(start)
			ve.SetAllDayEndAt(end)
		} else {
			ve.SetStartAt(start)
			ve.SetEndAt(end)
		}
		ve.SetSummary(ev.Name)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if ev.URL != "" {
			ve.SetURL(ev.URL)
		}
		ve.SetProperty(ical.ComponentPropertyGeo, formatGeo(ev.Lat, ev.Lng))
	}

	if skipped > 0 {
		appLog.Warn("ics export skipped events with unparseable times", "skipped", skipped)
	}
	return cal.Serialize()
}

func formatGeo(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + ";" + strconv.FormatFloat(lng, 'f', -1, 64)
}
