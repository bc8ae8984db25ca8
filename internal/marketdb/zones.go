package marketdb

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata" // Embedded IANA database so binaries do not depend on the host.
)

// ZoneRegistry resolves IANA zone names to shared *time.Location values.
// Calendars hold the registry's pointer rather than their own copy.
type ZoneRegistry struct {
	zones sync.Map // name -> *time.Location
}

// DefaultZones is the process-wide registry.
var DefaultZones = &ZoneRegistry{}

// Resolve returns the location for name, loading it on first use. An empty
// name is an error rather than UTC so that a missing field surfaces early.
func (r *ZoneRegistry) Resolve(name string) (*time.Location, error) {
	if name == "" {
		return nil, fmt.Errorf("empty time zone name")
	}
	if loc, ok := r.zones.Load(name); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading time zone %q: %w", name, err)
	}
	actual, _ := r.zones.LoadOrStore(name, loc)
	return actual.(*time.Location), nil
}
