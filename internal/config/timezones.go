package config

import "time"

// TimezoneOption is one labelled entry of the curated timezone catalog.
type TimezoneOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// commonTimezones is the curated set offered by the admin UI. Any valid
// IANA name is still accepted on write; this list is only a menu.
var commonTimezones = []string{
	"UTC",
	"America/New_York",
	"America/Chicago",
	"America/Denver",
	"America/Los_Angeles",
	"America/Phoenix",
	"America/Anchorage",
	"America/Halifax",
	"America/Sao_Paulo",
	"Europe/London",
	"Europe/Paris",
	"Europe/Berlin",
	"Europe/Madrid",
	"Europe/Rome",
	"Europe/Warsaw",
	"Europe/Moscow",
	"Africa/Johannesburg",
	"Asia/Dubai",
	"Asia/Kolkata",
	"Asia/Singapore",
	"Asia/Hong_Kong",
	"Asia/Shanghai",
	"Asia/Tokyo",
	"Asia/Seoul",
	"Australia/Sydney",
	"Australia/Perth",
}

// TimezoneOptions returns labelled timezone options, with any extras
// (e.g. the configured default) prepended and de-duplicated. Labels
// carry the current abbreviation ("America/New_York (EST)") when the
// zone resolves.
func TimezoneOptions(extra ...string) []TimezoneOption {
	seen := make(map[string]bool, len(commonTimezones)+len(extra))
	values := make([]string, 0, len(commonTimezones)+len(extra))
	for _, name := range append(append([]string{}, extra...), commonTimezones...) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		values = append(values, name)
	}

	now := time.Now().UTC()
	options := make([]TimezoneOption, 0, len(values))
	for _, name := range values {
		label := name
		if loc, err := time.LoadLocation(name); err == nil {
			if abbr := now.In(loc).Format("MST"); abbr != "" {
				label = name + " (" + abbr + ")"
			}
		}
		options = append(options, TimezoneOption{Value: name, Label: label})
	}
	return options
}
