// Package timezone resolves short timezone aliases and IANA zone names to
// concrete locations.
package timezone

import "time"

// aliases maps the short forms accepted in tag values to IANA zone names.
// Resolution always goes through IANA names so daylight savings is applied
// by the zone database, never by a fixed offset.
var aliases = map[string]string{
	"pdt": "America/Los_Angeles",
	"pt":  "America/Los_Angeles",
	"pst": "America/Los_Angeles",
	"est": "America/New_York",
	"edt": "America/New_York",
	"et":  "America/New_York",
	"cst": "America/Chicago",
	"cdt": "America/Chicago",
	"ct":  "America/Chicago",
	"mt":  "America/Denver",
	"gmt": "Etc/GMT",
	"gt":  "Etc/GMT",
	"bst": "Europe/London",
	"ist": "Europe/Dublin",
	"cet": "Europe/Berlin",
	// Technically IST (Indian Standard Time), but that collides with Ireland
	"it":  "Asia/Kolkata",
	"jst": "Asia/Tokyo",
	"kst": "Asia/Seoul",
	"sgt": "Asia/Singapore",
	"aet": "Australia/Sydney",
	"brt": "America/Sao_Paulo",
}

// Resolve maps an alias or IANA zone name to a location. Returns nil if the
// key is not an alias and not present in the system zone database.
func Resolve(key string) *time.Location {
	name, ok := aliases[key]
	if !ok {
		name = key
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil
	}

	return loc
}
