package ics

import (
	"context"
	"fmt"
	"time"

	appLog "eventmap/internal/log"
	"eventmap/internal/model"
)

// Feed is one configured source plus its recurrence horizon.
type Feed struct {
	Source      Source
	HorizonDays int
}

// ImportResult holds the imported events in feed order, plus what went wrong
// along the way.
type ImportResult struct {
	Events []model.Event
	// Errors has one entry per feed that could not be fetched, parsed or
	// expanded.
	Errors []error
	// TruncatedEvents lists "feed:uid" for recurring events that hit the
	// occurrence cap.
	TruncatedEvents []string
}

// Import fetches, parses and expands every feed into map events. Feeds that
// fail are logged and skipped; the result holds whatever could be imported.
func Import(ctx context.Context, f *Fetcher, feeds []Feed, now time.Time) ImportResult {
	sources := make([]Source, 0, len(feeds))
	horizons := make(map[Source]int, len(feeds))
	for _, feed := range feeds {
		sources = append(sources, feed.Source)
		horizons[feed.Source] = feed.HorizonDays
	}

	var out ImportResult
	fetched, errs := f.FetchAll(ctx, sources)
	out.Errors = append(out.Errors, errs...)

	for _, res := range fetched {
		src := res.Source
		parsed, err := ParseICS(src, res.Body)
		if err != nil {
			appLog.Error("feed import: parse failed", err, "id", src.ID)
			out.Errors = append(out.Errors, fmt.Errorf("feed %s: %w", src.ID, err))
			continue
		}

		horizon := horizons[src]
		if horizon <= 0 {
			horizon = 90
		}
		expanded, err := ExpandEvents(parsed, ExpandConfig{
			RangeStart: now,
			RangeEnd:   now.AddDate(0, 0, horizon),
		})
		if err != nil {
			appLog.Error("feed import: expand failed", err, "id", src.ID)
			out.Errors = append(out.Errors, fmt.Errorf("feed %s: %w", src.ID, err))
			continue
		}

		appLog.Info("feed imported", "id", src.ID, "events", len(expanded.Events), "from_cache", res.FromCache)
		out.Events = append(out.Events, expanded.Events...)
		for _, uid := range expanded.TruncatedEvents {
			out.TruncatedEvents = append(out.TruncatedEvents, src.ID+":"+uid)
		}
	}

	return out
}
