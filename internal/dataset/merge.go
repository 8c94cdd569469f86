package dataset

// Record is one entity's data for a single year, as produced by a scrape.
type Record struct {
	Name       string
	Location   string
	Pastor     string
	Attendance *int
	// Rank is the rank as found in the source, it is only kept until Normalize runs.
	Rank int
}

// Merger accumulates per-year records into entities keyed by exact name.
type Merger struct {
	entities []Entity
	index    map[string]int
}

func NewMerger() *Merger {
	return &Merger{index: map[string]int{}}
}

func isPlaceholder(value string) bool {
	return value == "" || value == LocationNotFound || value == PastorNotFound
}

// Add merges records observed in year. The first seen location and pastor of an entity are
// kept, unless they are placeholders and a later record has a real value. A record for a
// year the entity already has replaces the earlier one.
func (m *Merger) Add(year int, records []Record) {
	for _, r := range records {
		if r.Name == "" {
			continue
		}

		idx, ok := m.index[r.Name]
		if !ok {
			idx = len(m.entities)
			m.index[r.Name] = idx
			m.entities = append(m.entities, Entity{
				Name:     r.Name,
				Location: r.Location,
				Pastor:   r.Pastor,
			})
		}

		e := &m.entities[idx]
		if isPlaceholder(e.Location) && !isPlaceholder(r.Location) {
			e.Location = r.Location
		}
		if isPlaceholder(e.Pastor) && !isPlaceholder(r.Pastor) {
			e.Pastor = r.Pastor
		}
		e.SetObservation(Observation{
			Year:       year,
			Attendance: r.Attendance,
			Rank:       r.Rank,
		})
	}
}

// Entities returns the merged entities in first-seen order.
func (m *Merger) Entities() []Entity {
	return m.entities
}
