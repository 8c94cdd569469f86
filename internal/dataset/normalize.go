package dataset

import (
	"cmp"
	"slices"
)

type yearEntry struct {
	entity     int
	attendance int
}

// NormalizeYear assigns a dense 1..N ranking for year to every entity that has an
// observation for that year. Higher attendance ranks better, missing attendance ranks
// lowest and ties keep the input order. Entities are modified in place.
func NormalizeYear(year int, entities []Entity) {
	var entries []yearEntry
	for i, e := range entities {
		o, ok := e.Observation(year)
		if !ok {
			continue
		}
		attendance := -1
		if o.Attendance != nil {
			attendance = *o.Attendance
		}
		entries = append(entries, yearEntry{entity: i, attendance: attendance})
	}

	slices.SortStableFunc(entries, func(a, b yearEntry) int {
		return cmp.Compare(b.attendance, a.attendance)
	})

	for rank, entry := range entries {
		e := &entities[entry.entity]
		idx := e.observationIndex(year)
		e.Observations[idx].Rank = rank + 1
	}
}

// Normalize runs NormalizeYear once for every year present in entities. Years are ranked
// independently of each other.
func Normalize(entities []Entity) {
	for _, year := range Years(entities) {
		NormalizeYear(year, entities)
	}
}
