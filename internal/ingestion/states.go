package ingestion

import "strings"

var stateCodes = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR", "california": "CA",
	"colorado": "CO", "connecticut": "CT", "delaware": "DE", "florida": "FL", "georgia": "GA",
	"hawaii": "HI", "idaho": "ID", "illinois": "IL", "indiana": "IN", "iowa": "IA",
	"kansas": "KS", "kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN", "mississippi": "MS", "missouri": "MO",
	"montana": "MT", "nebraska": "NE", "nevada": "NV", "new hampshire": "NH", "new jersey": "NJ",
	"new mexico": "NM", "new york": "NY", "north carolina": "NC", "north dakota": "ND", "ohio": "OH",
	"oklahoma": "OK", "oregon": "OR", "pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT", "vermont": "VT",
	"virginia": "VA", "washington": "WA", "west virginia": "WV", "wisconsin": "WI", "wyoming": "WY",
	"district of columbia": "DC", "puerto rico": "PR",
}

var knownCodes = func() map[string]bool {
	m := make(map[string]bool, len(stateCodes))
	for _, code := range stateCodes {
		m[code] = true
	}
	return m
}()

// stateFromPlace reads the region after the last comma of a USGS place,
// e.g. "10 km NE of Ridgecrest, CA" or "5 km S of Volcano, Hawaii".
// Places outside the US yield "".
func stateFromPlace(place string) string {
	i := strings.LastIndex(place, ",")
	if i < 0 {
		return ""
	}
	region := strings.TrimSpace(place[i+1:])
	if code := strings.ToUpper(region); knownCodes[code] {
		return code
	}
	return stateCodes[strings.ToLower(region)]
}

// statesFromUGC returns every state named by the zone codes, in first-seen
// order.
func statesFromUGC(codes []string) []string {
	var states []string
	seen := make(map[string]bool)
	for _, c := range codes {
		if len(c) < 2 {
			continue
		}
		code := strings.ToUpper(c[:2])
		if knownCodes[code] && !seen[code] {
			seen[code] = true
			states = append(states, code)
		}
	}
	return states
}

// stateFromUGC takes the state from the first zone code, e.g. "CAZ041".
// An event carries a single state, so alerts spanning several states match
// rules on the first one only; the full list is in sourceData.states.
func stateFromUGC(codes []string) string {
	for _, c := range codes {
		if len(c) < 2 {
			continue
		}
		if code := strings.ToUpper(c[:2]); knownCodes[code] {
			return code
		}
	}
	return ""
}
