package dataset

import (
	"strings"

	"churchrank/lib/textutil"
)

// Filter returns the entities whose name, location or pastor contain query, ignoring case.
// An empty query matches everything.
func Filter(entities []Entity, query string) []Entity {
	query = strings.TrimSpace(query)
	if query == "" {
		return entities
	}
	var out []Entity
	for _, e := range entities {
		if textutil.ContainsFold(e.Name, query) ||
			textutil.ContainsFold(e.Location, query) ||
			textutil.ContainsFold(e.Pastor, query) {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the entity with exactly the given name.
func Find(entities []Entity, name string) (Entity, bool) {
	for _, e := range entities {
		if e.Name == name {
			return e, true
		}
	}
	return Entity{}, false
}

// SeriesPoint is one x-axis point of a chart, Values holds one entry per selected entity that
// has data for the year.
type SeriesPoint struct {
	Year   int            `json:"year"`
	Values map[string]int `json:"values"`
}

// Series builds chart data for the selected entity names over years. Names that don't exist
// are ignored, as are years an entity has no value for.
func Series(entities []Entity, names []string, years []int, metric Metric) []SeriesPoint {
	if len(names) == 0 {
		return nil
	}

	selected := make([]Entity, 0, len(names))
	for _, name := range names {
		e, ok := Find(entities, name)
		if ok {
			selected = append(selected, e)
		}
	}

	points := make([]SeriesPoint, len(years))
	for i, year := range years {
		point := SeriesPoint{Year: year, Values: map[string]int{}}
		for _, e := range selected {
			o, ok := e.Observation(year)
			if !ok {
				continue
			}
			switch metric {
			case MetricRank:
				if o.Rank > 0 {
					point.Values[e.Name] = o.Rank
				}
			default:
				if o.Attendance != nil {
					point.Values[e.Name] = *o.Attendance
				}
			}
		}
		points[i] = point
	}
	return points
}

// DuplicateSuspect is a pair of entity names that probably refer to the same church.
type DuplicateSuspect = textutil.SimilarPair

// SuspectDuplicates reports entity names that are near-identical, since merging is by exact
// name these show up as separate entities.
func SuspectDuplicates(entities []Entity, threshold float64) []DuplicateSuspect {
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Name
	}
	return textutil.SimilarPairs(names, threshold)
}
