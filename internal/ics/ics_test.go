package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventmap/internal/model"
)

const campusFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//campus//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:fair@campus\r\n" +
	"DTSTAMP:20250101T000000Z\r\n" +
	"DTSTART:20250219T170000Z\r\n" +
	"DTEND:20250219T210000Z\r\n" +
	"SUMMARY:Career Fair\r\n" +
	"DESCRIPTION:Employers on campus\r\n" +
	"LOCATION:Student Union\r\n" +
	"URL:https://career.example.edu/\r\n" +
	"GEO:35.1;-80.2\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:club@campus\r\n" +
	"DTSTAMP:20250101T000000Z\r\n" +
	"DTSTART:20250106T230000Z\r\n" +
	"DTEND:20250107T000000Z\r\n" +
	"RRULE:FREQ=WEEKLY;COUNT=4\r\n" +
	"EXDATE:20250113T230000Z\r\n" +
	"SUMMARY:Sketch Club\r\n" +
	"GEO:35.3;-80.7\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:club@campus\r\n" +
	"DTSTAMP:20250101T000000Z\r\n" +
	"RECURRENCE-ID:20250120T230000Z\r\n" +
	"DTSTART:20250121T000000Z\r\n" +
	"DTEND:20250121T010000Z\r\n" +
	"SUMMARY:Sketch Club (moved)\r\n" +
	"GEO:35.3;-80.7\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:online@campus\r\n" +
	"DTSTAMP:20250101T000000Z\r\n" +
	"DTSTART:20250301T170000Z\r\n" +
	"DTEND:20250301T180000Z\r\n" +
	"SUMMARY:Webinar without a place\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

var src = Source{ID: "campus", URL: "./campus.ics"}

func TestParseICSKeepsGeoTaggedEvents(t *testing.T) {
	events, err := ParseICS(src, []byte(campusFeed))
	require.NoError(t, err)
	require.Len(t, events, 3, "the VEVENT without GEO is skipped")

	fair := events[0]
	assert.Equal(t, "fair@campus", fair.UID)
	assert.Equal(t, "Career Fair", fair.Summary)
	assert.Equal(t, "Employers on campus", fair.Description)
	assert.Equal(t, "Student Union", fair.Location)
	assert.Equal(t, "https://career.example.edu/", fair.URL)
	assert.Equal(t, model.Coordinate{Lat: 35.1, Lng: -80.2}, fair.Geo)
	assert.False(t, fair.AllDay)

	assert.Equal(t, "FREQ=WEEKLY;COUNT=4", events[1].RawRRule)
	require.Len(t, events[1].ExDates, 1)
	assert.True(t, events[2].IsOverride)
}

func TestParseICSRejectsEmptyBody(t *testing.T) {
	_, err := ParseICS(src, nil)
	assert.Error(t, err)
}

func TestParseGeo(t *testing.T) {
	c, err := parseGeo(" 35.64126013351904 ; 139.60309040974118 ")
	require.NoError(t, err)
	assert.Equal(t, model.Coordinate{Lat: 35.64126013351904, Lng: 139.60309040974118}, c)

	for _, bad := range []string{"", "35.1", "a;b", "35.1;x"} {
		_, err := parseGeo(bad)
		assert.Error(t, err, bad)
	}
}

func TestExpandEvents(t *testing.T) {
	parsed, err := ParseICS(src, []byte(campusFeed))
	require.NoError(t, err)

	res, err := ExpandEvents(parsed, ExpandConfig{
		RangeStart: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	// One-off fair + weekly club (4 instances, one excluded).
	require.Len(t, res.Events, 4)

	fair := res.Events[0]
	assert.Equal(t, "ics:campus:fair@campus", fair.ID)
	assert.Equal(t, "Career Fair", fair.Name)
	assert.Equal(t, "2025-02-19T17:00:00Z", fair.Start)
	assert.Equal(t, 35.1, fair.Lat)
	assert.Equal(t, -80.2, fair.Lng)

	club := res.Events[1:]
	ids := map[string]bool{}
	for _, ev := range club {
		assert.False(t, ids[ev.ID])
		ids[ev.ID] = true
		assert.True(t, strings.HasPrefix(ev.ID, "ics:campus:club@campus:"))
	}
	assert.Equal(t, "Sketch Club", club[0].Name)
	assert.Equal(t, "2025-01-06T23:00:00Z", club[0].Start)
	assert.Equal(t, "Sketch Club (moved)", club[1].Name)
	assert.Equal(t, "2025-01-21T00:00:00Z", club[1].Start)
	assert.Equal(t, "2025-01-27T23:00:00Z", club[2].Start)
	assert.Empty(t, res.TruncatedEvents)
}

func TestExpandEventsCap(t *testing.T) {
	parsed, err := ParseICS(src, []byte(campusFeed))
	require.NoError(t, err)

	res, err := ExpandEvents(parsed, ExpandConfig{
		RangeStart:             time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:               time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		MaxOccurrencesPerEvent: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"club@campus"}, res.TruncatedEvents)
}

func TestExpandEventsRejectsInvertedRange(t *testing.T) {
	_, err := ExpandEvents(nil, ExpandConfig{
		RangeStart: time.Now(),
		RangeEnd:   time.Now().Add(-time.Hour),
	})
	assert.Error(t, err)
}

func TestExportRoundTrip(t *testing.T) {
	events := []model.Event{
		{
			ID:          "tokyo",
			Name:        "Japan Summer Program 2025",
			Location:    "Tokyo Studio, Japan",
			Start:       "2025-05-17T00:00:00+00:00",
			End:         "2025-06-15T00:00:00+00:00",
			Lat:         35.64126013351904,
			Lng:         139.60309040974118,
			URL:         "https://coaa.charlotte.edu/",
			Description: "Study abroad",
		},
		{ID: "broken", Name: "Bad dates", Start: "tomorrow", End: "later"},
	}

	out := Export(events, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Contains(t, out, "GEO:35.64126013351904;139.60309040974118")
	assert.NotContains(t, out, "Bad dates")

	parsed, err := ParseICS(Source{ID: "export"}, []byte(out))
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, "tokyo", parsed[0].UID)
	assert.Equal(t, "Japan Summer Program 2025", parsed[0].Summary)
	assert.True(t, parsed[0].Start.Equal(time.Date(2025, 5, 17, 0, 0, 0, 0, time.UTC)))
}

func TestFetchOneLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campus.ics")
	require.NoError(t, os.WriteFile(path, []byte(campusFeed), 0o600))

	res, err := NewFetcher(t.TempDir()).FetchOne(context.Background(), Source{ID: "file", URL: path})
	require.NoError(t, err)
	assert.Equal(t, campusFeed, string(res.Body))
	assert.False(t, res.FromCache)
}

func TestFetchOneHonoursETag(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(campusFeed))
	}))
	defer ts.Close()

	f := NewFetcher(t.TempDir())
	s := Source{ID: "remote", URL: ts.URL + "/feed.ics?token=secret"}

	first, err := f.FetchOne(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := f.FetchOne(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchAllCollectsErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer ts.Close()

	results, errs := NewFetcher(t.TempDir()).FetchAll(context.Background(), []Source{
		{ID: "gone", URL: ts.URL},
		{ID: "empty"},
	})
	assert.Empty(t, results)
	assert.Len(t, errs, 2)
}

func TestImportSkipsBrokenFeeds(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.ics")
	bad := filepath.Join(dir, "bad.ics")
	require.NoError(t, os.WriteFile(good, []byte(campusFeed), 0o600))
	require.NoError(t, os.WriteFile(bad, []byte("not a calendar"), 0o600))

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	res := Import(context.Background(), NewFetcher(dir), []Feed{
		{Source: Source{ID: "missing", URL: filepath.Join(dir, "missing.ics")}},
		{Source: Source{ID: "bad", URL: bad}},
		{Source: Source{ID: "good", URL: good}, HorizonDays: 365},
	}, now)

	require.NotEmpty(t, res.Events)
	assert.Equal(t, "ics:good:fair@campus", res.Events[0].ID)
	require.Len(t, res.Errors, 2)
	assert.ErrorContains(t, res.Errors[0], "feed missing")
	assert.ErrorContains(t, res.Errors[1], "feed bad")
	assert.Empty(t, res.TruncatedEvents)
}

func TestImportReportsTruncatedRecurrences(t *testing.T) {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n")
	b.WriteString("BEGIN:VEVENT\r\nUID:daily@campus\r\nDTSTAMP:20250101T000000Z\r\n")
	b.WriteString("DTSTART:20250101T120000Z\r\nDTEND:20250101T130000Z\r\n")
	b.WriteString("RRULE:FREQ=HOURLY\r\nSUMMARY:Shuttle\r\nGEO:35.3;-80.7\r\nEND:VEVENT\r\n")
	b.WriteString("END:VCALENDAR\r\n")
	path := filepath.Join(t.TempDir(), "daily.ics")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	res := Import(context.Background(), NewFetcher(t.TempDir()), []Feed{
		{Source: Source{ID: "shuttle", URL: path}, HorizonDays: 365},
	}, now)

	assert.Len(t, res.Events, defaultMaxOccurrencesPerEvent)
	assert.Equal(t, []string{"shuttle:daily@campus"}, res.TruncatedEvents)
	assert.Empty(t, res.Errors)
}

func TestExpandReadsTZIDOnExdateAndRecurrenceID(t *testing.T) {
	prev := time.Local
	time.Local = time.UTC
	t.Cleanup(func() { time.Local = prev })

	body := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//test//EN\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:standup@campus\r\n" +
		"DTSTAMP:20250101T000000Z\r\n" +
		"DTSTART;TZID=America/New_York:20300107T090000\r\n" +
		"DTEND;TZID=America/New_York:20300107T093000\r\n" +
		"RRULE:FREQ=WEEKLY;COUNT=4\r\n" +
		"EXDATE;TZID=America/New_York:20300114T090000\r\n" +
		"SUMMARY:Standup\r\n" +
		"GEO:35.3;-80.7\r\n" +
		"END:VEVENT\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:standup@campus\r\n" +
		"DTSTAMP:20250101T000000Z\r\n" +
		"RECURRENCE-ID;TZID=America/New_York:20300121T090000\r\n" +
		"DTSTART;TZID=America/New_York:20300121T100000\r\n" +
		"DTEND;TZID=America/New_York:20300121T103000\r\n" +
		"SUMMARY:Standup (late)\r\n" +
		"GEO:35.3;-80.7\r\n" +
		"END:VEVENT\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:standup@campus\r\n" +
		"DTSTAMP:20250101T000000Z\r\n" +
		"RECURRENCE-ID:20300128T090000\r\n" +
		"DTSTART;TZID=America/New_York:20300128T110000\r\n" +
		"DTEND;TZID=America/New_York:20300128T113000\r\n" +
		"SUMMARY:Standup (floating id)\r\n" +
		"GEO:35.3;-80.7\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	parsed, err := ParseICS(src, []byte(body))
	require.NoError(t, err)

	res, err := ExpandEvents(parsed, ExpandConfig{
		RangeStart: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2030, 2, 28, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.Len(t, res.Events, 3, "the 01-14 instance is excluded")
	assert.Equal(t, "Standup", res.Events[0].Name)
	assert.Equal(t, "2030-01-07T09:00:00-05:00", res.Events[0].Start)
	assert.Equal(t, "Standup (late)", res.Events[1].Name)
	assert.Equal(t, "2030-01-21T10:00:00-05:00", res.Events[1].Start)
	assert.Equal(t, "Standup (floating id)", res.Events[2].Name)
	assert.Equal(t, "2030-01-28T11:00:00-05:00", res.Events[2].Start)
}

func TestExportAllDayAsDate(t *testing.T) {
	out := Export([]model.Event{{
		ID:     "open-day",
		Name:   "Open Day",
		Start:  "2025-04-12T00:00:00Z",
		End:    "2025-04-13T00:00:00Z",
		AllDay: true,
	}}, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	assert.Contains(t, out, "DTSTART;VALUE=DATE:20250412")
	assert.Contains(t, out, "DTEND;VALUE=DATE:20250413")
}

func TestParseAllDayCarriesThroughExpand(t *testing.T) {
	body := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n" +
		"BEGIN:VEVENT\r\nUID:open@campus\r\nDTSTAMP:20250101T000000Z\r\n" +
		"DTSTART;VALUE=DATE:20250412\r\nDTEND;VALUE=DATE:20250413\r\n" +
		"SUMMARY:Open Day\r\nGEO:35.3;-80.7\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"

	parsed, err := ParseICS(src, []byte(body))
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.True(t, parsed[0].AllDay)

	res, err := ExpandEvents(parsed, ExpandConfig{})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.True(t, res.Events[0].AllDay)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://cal.example.com/...(redacted)", redactURL("https://cal.example.com/private/abc.ics?token=x"))
	assert.Equal(t, "./local.ics", redactURL("./local.ics"))
}
