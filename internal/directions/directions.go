// Package directions builds outbound turn-by-turn links for an event.
package directions

import "strconv"

const baseURL = "https://www.google.com/maps/dir/?api=1&destination="

// URL returns the Google Maps directions link to (lat, lng). Coordinates are
// written in their shortest decimal form and are not range checked.
func URL(lat, lng float64) string {
	return baseURL + formatCoord(lat) + "," + formatCoord(lng)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
