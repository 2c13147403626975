package agent

import (
	"regexp"
	"strings"
)

// Trip-info slot capture. A user message mentioning route, dates, party
// size, or budget fills TurnState.TripInfo so later reasoning passes
// keep the trip parameters even after window truncation drops the
// original message.

var (
	routeRe   = regexp.MustCompile(`(?i)\bfrom\s+([A-Z]{3})\s+to\s+([A-Z]{3})\b|\b([A-Z]{3})\s+to\s+([A-Z]{3})\b`)
	dateRe    = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	adultsRe  = regexp.MustCompile(`(?i)\b(\d+)\s+(?:adults?|people|passengers|travellers|travelers)\b`)
	budgetRe  = regexp.MustCompile(`(?i)(?:under|below|budget of|max(?:imum)? of)?\s*\$(\d[\d,]*)`)
	returnKey = regexp.MustCompile(`(?i)\b(return|round.?trip|back on|coming back)\b`)
)

// CaptureTripInfo scans one user message and merges any slots it finds
// into info. Existing slots are overwritten only when the message
// mentions them again.
func CaptureTripInfo(info map[string]string, message string) {
	if m := routeRe.FindStringSubmatch(message); m != nil {
		origin, dest := m[1], m[2]
		if origin == "" {
			origin, dest = m[3], m[4]
		}
		info["origin"] = strings.ToUpper(origin)
		info["destination"] = strings.ToUpper(dest)
	}

	dates := dateRe.FindAllString(message, 2)
	switch {
	case len(dates) >= 2:
		info["departure_date"] = dates[0]
		info["return_date"] = dates[1]
	case len(dates) == 1:
		// A lone date alongside return phrasing refines the return leg
		// of an already-known departure.
		if returnKey.MatchString(message) && info["departure_date"] != "" && info["departure_date"] != dates[0] {
			info["return_date"] = dates[0]
		} else {
			info["departure_date"] = dates[0]
		}
	}

	if m := adultsRe.FindStringSubmatch(message); m != nil {
		info["adults"] = m[1]
	}
	if m := budgetRe.FindStringSubmatch(message); m != nil {
		info["budget_usd"] = strings.ReplaceAll(m[1], ",", "")
	}
}
