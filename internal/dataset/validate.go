package dataset

import (
	"errors"
	"fmt"
)

// Validate checks the invariants a dataset received from elsewhere must hold: every entity
// has a unique, non-empty name, no entity observes the same year twice, observations are in
// year order and no attendance is negative.
func Validate(entities []Entity) error {
	var errs []error
	names := map[string]struct{}{}
	for i, e := range entities {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("entity %d: empty name", i))
			continue
		}
		if _, dup := names[e.Name]; dup {
			errs = append(errs, fmt.Errorf("entity %q: duplicate name", e.Name))
		}
		names[e.Name] = struct{}{}

		years := map[int]struct{}{}
		for j, o := range e.Observations {
			if _, dup := years[o.Year]; dup {
				errs = append(errs, fmt.Errorf("entity %q: duplicate year %d", e.Name, o.Year))
			}
			years[o.Year] = struct{}{}
			if j > 0 && e.Observations[j-1].Year > o.Year {
				errs = append(errs, fmt.Errorf("entity %q: observations out of year order", e.Name))
			}
			if o.Attendance != nil && *o.Attendance < 0 {
				errs = append(errs, fmt.Errorf("entity %q: negative attendance in %d", e.Name, o.Year))
			}
		}
	}
	return errors.Join(errs...)
}
