package store

import "eventmap/internal/model"

// Supplementary returns the records appended to the bundled dataset at startup.
func Supplementary() []model.Event {
	return []model.Event{
		{
			Name:     "Japan Summer Program 2025",
			Location: "Tokyo Studio, Japan",
			Start:    "2025-05-17T00:00:00+00:00",
			End:      "2025-06-15T00:00:00+00:00",
			Lat:      35.64126013351904,
			Lng:      139.60309040974118,
			URL:      "https://coaa.charlotte.edu/architecture/study-abroad/japan-summer-program/",
			Description: "The Japan Summer Program is a study abroad experience for architecture students, " +
				"featuring visits to architectural sites, including Tokyo and World Expo 2025 in Osaka. " +
				"Led by Professor Chris Jarrett, the program includes coursework, site visits, and " +
				"collaborations with Meiji University.",
		},
	}
}
