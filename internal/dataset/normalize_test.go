package dataset

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func randomEntities(rndm *rand.Rand, n int, years []int) []Entity {
	entities := make([]Entity, n)
	for i := range entities {
		entities[i].Name = string(rune('A'+i%26)) + string(rune('a'+i/26))
		for _, year := range years {
			// leave some years unobserved and some attendance missing
			switch rndm.Intn(6) {
			case 0:
				continue
			case 1:
				entities[i].Observations = append(entities[i].Observations, Observation{Year: year, Rank: 99})
			default:
				// a small value range so ties are common
				entities[i].Observations = append(entities[i].Observations, Observation{
					Year:       year,
					Attendance: Attendance(1000 * rndm.Intn(8)),
				})
			}
		}
	}
	return entities
}

func TestNormalizeProperties(t *testing.T) {
	rndm := rand.New(rand.NewSource(42))
	years := []int{2019, 2020, 2021}

	for iteration := 0; iteration < 50; iteration++ {
		entities := randomEntities(rndm, 1+rndm.Intn(30), years)
		Normalize(entities)

		for _, year := range years {
			type ranked struct {
				attendance int
				rank       int
			}
			var observed []ranked
			for _, e := range entities {
				o, ok := e.Observation(year)
				if !ok {
					continue
				}
				attendance := -1
				if o.Attendance != nil {
					attendance = *o.Attendance
				}
				observed = append(observed, ranked{attendance: attendance, rank: o.Rank})
			}

			// ranks are exactly 1..N
			seen := make([]bool, len(observed)+1)
			for _, r := range observed {
				require.GreaterOrEqual(t, r.rank, 1)
				require.LessOrEqual(t, r.rank, len(observed))
				require.False(t, seen[r.rank], "rank %d assigned twice in %d", r.rank, year)
				seen[r.rank] = true
			}

			// strictly greater attendance always ranks better
			for _, a := range observed {
				for _, b := range observed {
					if a.attendance > b.attendance {
						require.Less(t, a.rank, b.rank)
					}
				}
			}
		}

		// idempotent
		again := Clone(entities)
		Normalize(again)
		if diff := cmp.Diff(entities, again); diff != "" {
			t.Fatalf("normalize is not idempotent (-first +second):\n%s", diff)
		}
	}
}

func TestNormalizeYearTieBreak(t *testing.T) {
	entities := []Entity{
		{Name: "first", Observations: []Observation{{Year: 2020, Attendance: Attendance(5000), Rank: 7}}},
		{Name: "missing", Observations: []Observation{{Year: 2020, Rank: 1}}},
		{Name: "second", Observations: []Observation{{Year: 2020, Attendance: Attendance(5000), Rank: 3}}},
		{Name: "largest", Observations: []Observation{{Year: 2020, Attendance: Attendance(9000)}}},
		{Name: "other-year", Observations: []Observation{{Year: 2021, Attendance: Attendance(1), Rank: 5}}},
	}
	NormalizeYear(2020, entities)

	ranks := map[string]int{}
	for _, e := range entities {
		ranks[e.Name] = e.Observations[0].Rank
	}
	require.Equal(t, map[string]int{
		"largest":    1,
		"first":      2,
		"second":     3,
		"missing":    4,
		"other-year": 5,
	}, ranks)
}

func TestNormalizeYearsIndependent(t *testing.T) {
	entities := []Entity{
		{Name: "a", Observations: []Observation{
			{Year: 2015, Attendance: Attendance(100)},
			{Year: 2016, Attendance: Attendance(900)},
		}},
		{Name: "b", Observations: []Observation{
			{Year: 2015, Attendance: Attendance(500)},
		}},
	}
	Normalize(entities)

	a2015, _ := entities[0].Observation(2015)
	a2016, _ := entities[0].Observation(2016)
	b2015, _ := entities[1].Observation(2015)
	require.Equal(t, 2, a2015.Rank)
	require.Equal(t, 1, a2016.Rank)
	require.Equal(t, 1, b2015.Rank)
}
