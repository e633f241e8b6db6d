package normalize

import (
	"regexp"
	"strings"
)

var (
	remoteRe    = regexp.MustCompile(`(?i)\b(remote|anywhere|work from home|wfh|telecommute|distributed)\b`)
	cityStateRe = regexp.MustCompile(`^([A-Za-z][A-Za-z .'-]*?),\s*([A-Za-z]{2})\b`)
	// multi-location postings keep only the first location
	locationSplitRe = regexp.MustCompile(`\s*(?:/|\||;|\bor\b|\band\b)\s*`)
	remoteNoiseRe   = regexp.MustCompile(`(?i)\b(remote|anywhere|work from home|wfh|telecommute|distributed|hybrid|on-?site|in office)\b|[()\[\]]|\s+-\s+|^\s*-|-\s*$`)
)

var usStates = map[string]string{
	"al": "alabama", "ak": "alaska", "az": "arizona", "ar": "arkansas", "ca": "california",
	"co": "colorado", "ct": "connecticut", "de": "delaware", "fl": "florida", "ga": "georgia",
	"hi": "hawaii", "id": "idaho", "il": "illinois", "in": "indiana", "ia": "iowa",
	"ks": "kansas", "ky": "kentucky", "la": "louisiana", "me": "maine", "md": "maryland",
	"ma": "massachusetts", "mi": "michigan", "mn": "minnesota", "ms": "mississippi", "mo": "missouri",
	"mt": "montana", "ne": "nebraska", "nv": "nevada", "nh": "new hampshire", "nj": "new jersey",
	"nm": "new mexico", "ny": "new york", "nc": "north carolina", "nd": "north dakota", "oh": "ohio",
	"ok": "oklahoma", "or": "oregon", "pa": "pennsylvania", "ri": "rhode island", "sc": "south carolina",
	"sd": "south dakota", "tn": "tennessee", "tx": "texas", "ut": "utah", "vt": "vermont",
	"va": "virginia", "wa": "washington", "wv": "west virginia", "wi": "wisconsin", "wy": "wyoming",
	"dc": "district of columbia",
}

var stateByName = func() map[string]string {
	m := make(map[string]string, len(usStates))
	for abbr, name := range usStates {
		m[name] = abbr
	}
	return m
}()

var countries = map[string]string{
	"us":                       "united states",
	"usa":                      "united states",
	"u.s.":                     "united states",
	"u.s.a.":                   "united states",
	"united states":            "united states",
	"united states of america": "united states",
	"uk":                       "united kingdom",
	"u.k.":                     "united kingdom",
	"gb":                       "united kingdom",
	"united kingdom":           "united kingdom",
	"england":                  "united kingdom",
	"canada":                   "canada",
	"mexico":                   "mexico",
	"brazil":                   "brazil",
	"argentina":                "argentina",
	"germany":                  "germany",
	"deutschland":              "germany",
	"france":                   "france",
	"spain":                    "spain",
	"portugal":                 "portugal",
	"italy":                    "italy",
	"netherlands":              "netherlands",
	"the netherlands":          "netherlands",
	"ireland":                  "ireland",
	"poland":                   "poland",
	"sweden":                   "sweden",
	"switzerland":              "switzerland",
	"india":                    "india",
	"singapore":                "singapore",
	"japan":                    "japan",
	"australia":                "australia",
	"israel":                   "israel",
	"uzbekistan":               "uzbekistan",
	"europe":                   "europe",
	"emea":                     "emea",
	"latam":                    "latam",
	"apac":                     "apac",
}

// ParseLocation turns a free-text location into its structured form.
// Canonical is "city, state, country" lowercased, with empty parts dropped,
// and "remote" when only a remote signal is present.
func ParseLocation(raw string) Location {
	raw = collapse(raw)
	loc := Location{Remote: remoteRe.MatchString(raw)}

	rest := locationSplitRe.Split(raw, 2)[0]
	rest = collapse(remoteNoiseRe.ReplaceAllString(rest, " "))
	rest = strings.Trim(rest, " ,-")

	if m := cityStateRe.FindStringSubmatch(rest); m != nil {
		if _, ok := usStates[strings.ToLower(m[2])]; ok {
			loc.City = strings.TrimSpace(m[1])
			loc.State = strings.ToUpper(m[2])
			loc.Country = "united states"
			if tail := strings.TrimSpace(rest[len(m[0]):]); tail != "" {
				if c := lookupCountry(strings.Trim(tail, " ,")); c != "" {
					loc.Country = c
				}
			}
			loc.Canonical = canonicalLocation(loc)
			return loc
		}
	}

	var parts []string
	for _, p := range strings.Split(rest, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if n := len(parts); n > 0 {
		if c := lookupCountry(parts[n-1]); c != "" {
			loc.Country = c
			parts = parts[:n-1]
		}
	}
	switch len(parts) {
	case 0:
	case 1:
		if abbr, ok := lookupState(parts[0]); ok && loc.City == "" {
			loc.State = abbr
		} else {
			loc.City = parts[0]
		}
	default:
		loc.City = parts[0]
		if abbr, ok := lookupState(parts[1]); ok {
			loc.State = abbr
		} else {
			loc.State = parts[1]
		}
	}
	if loc.Country == "" && loc.State != "" {
		if _, ok := usStates[strings.ToLower(loc.State)]; ok {
			loc.Country = "united states"
		}
	}
	loc.Canonical = canonicalLocation(loc)
	return loc
}

func markRemote(loc Location) Location {
	loc.Remote = true
	loc.Canonical = canonicalLocation(loc)
	return loc
}

func canonicalLocation(loc Location) string {
	var parts []string
	if loc.Remote {
		parts = append(parts, "remote")
	}
	for _, p := range []string{loc.City, loc.State, loc.Country} {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func lookupCountry(s string) string {
	return countries[strings.ToLower(strings.TrimSpace(s))]
}

// lookupState accepts a two letter code or a full state name.
func lookupState(s string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	if _, ok := usStates[key]; ok {
		return strings.ToUpper(key), true
	}
	if abbr, ok := stateByName[key]; ok {
		return strings.ToUpper(abbr), true
	}
	return "", false
}
