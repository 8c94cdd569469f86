// Package dataset holds the multi-year church attendance model along with the pure
// operations over it: per-year ranking, trend/growth metrics, merging and queries.
package dataset

import (
	"slices"
)

const (
	LocationNotFound = "Location not found"
	PastorNotFound   = "Pastor not found"
)

// Observation is one year's measurement for an Entity.
type Observation struct {
	Year int `json:"year" yaml:"year"`
	// Attendance is nil when it could not be determined.
	Attendance *int `json:"attendance" yaml:"attendance"`
	// Rank is 1-based and dense within a year once the dataset is normalized, 0 means unknown.
	Rank int `json:"ranking" yaml:"ranking"`
}

// Entity is a single church tracked across years. Name is the identity key.
type Entity struct {
	Name     string `json:"name" yaml:"name"`
	Location string `json:"location" yaml:"location"`
	Pastor   string `json:"pastor" yaml:"pastor"`
	// Observations is ordered by year ascending and never holds the same year twice.
	Observations []Observation `json:"data" yaml:"data"`
}

// Observation returns the observation for year, if any.
func (e Entity) Observation(year int) (Observation, bool) {
	idx := e.observationIndex(year)
	if idx < 0 {
		return Observation{}, false
	}
	return e.Observations[idx], true
}

func (e Entity) observationIndex(year int) int {
	for i, o := range e.Observations {
		if o.Year == year {
			return i
		}
	}
	return -1
}

// SetObservation inserts or replaces the observation for o.Year, keeping year order.
func (e *Entity) SetObservation(o Observation) {
	idx := e.observationIndex(o.Year)
	if idx >= 0 {
		e.Observations[idx] = o
		return
	}
	insertAt, _ := slices.BinarySearchFunc(e.Observations, o.Year, func(existing Observation, year int) int {
		return existing.Year - year
	})
	e.Observations = slices.Insert(e.Observations, insertAt, o)
}

// Years returns every distinct year observed across entities, ascending.
func Years(entities []Entity) []int {
	seen := map[int]struct{}{}
	var years []int
	for _, e := range entities {
		for _, o := range e.Observations {
			if _, ok := seen[o.Year]; ok {
				continue
			}
			seen[o.Year] = struct{}{}
			years = append(years, o.Year)
		}
	}
	slices.Sort(years)
	return years
}

// YearRange returns the inclusive range [from, to]. An inverted range is empty.
func YearRange(from, to int) []int {
	var years []int
	for y := from; y <= to; y++ {
		years = append(years, y)
	}
	return years
}

// Clone returns a deep copy of entities so callers can normalize or mutate without touching
// a dataset someone else holds.
func Clone(entities []Entity) []Entity {
	out := make([]Entity, len(entities))
	for i, e := range entities {
		out[i] = e
		if e.Observations == nil {
			continue
		}
		out[i].Observations = make([]Observation, len(e.Observations))
		for j, o := range e.Observations {
			out[i].Observations[j] = o
			if o.Attendance != nil {
				value := *o.Attendance
				out[i].Observations[j].Attendance = &value
			}
		}
	}
	return out
}

// Attendance is a helper for building an attendance value.
func Attendance(n int) *int {
	return &n
}
