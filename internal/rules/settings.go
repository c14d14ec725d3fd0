package rules

import (
	"strings"

	"github.com/codewithboateng/jitprof/internal/reporting"
)

type Settings struct {
	Disabled     map[string]bool
	WarningLimit int
}

var rsettings = Settings{
	Disabled:     map[string]bool{},
	WarningLimit: reporting.DefaultLimit,
}

func SetSettings(s Settings) {
	// fill defaults
	if s.Disabled == nil {
		s.Disabled = map[string]bool{}
	}
	if s.WarningLimit <= 0 {
		s.WarningLimit = reporting.DefaultLimit
	}
	norm := make(map[string]bool, len(s.Disabled))
	for id, off := range s.Disabled {
		norm[strings.ToUpper(strings.TrimSpace(id))] = off
	}
	s.Disabled = norm
	rsettings = s
}

// CurrentSettings returns a copy of the active settings.
func CurrentSettings() Settings {
	d := make(map[string]bool, len(rsettings.Disabled))
	for k, v := range rsettings.Disabled {
		d[k] = v
	}
	return Settings{Disabled: d, WarningLimit: rsettings.WarningLimit}
}
