package dataset

import (
	"encoding/json"
	"fmt"
	"math"
)

type Metric string

const (
	MetricAttendance Metric = "attendance"
	MetricRank       Metric = "ranking"
)

// ParseMetric accepts the metric names used on the wire, "rank" is accepted as an alias.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "", string(MetricAttendance):
		return MetricAttendance, nil
	case string(MetricRank), "rank":
		return MetricRank, nil
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Growth is the change between an entity's first and last observation. For attendance it
// is a percentage, for rank it is the number of places gained.
type Growth struct {
	Metric Metric
	Value  float64
	// Defined is false when the change cannot be computed, ex. a zero or missing baseline
	// attendance.
	Defined bool
}

// rounded is the value as displayed, a decline that rounds to zero is plain 0.
func (g Growth) rounded() float64 {
	value := g.Value
	if g.Metric != MetricRank {
		value = math.Round(value*10) / 10
	}
	if value == 0 {
		return 0
	}
	return value
}

func (g Growth) String() string {
	if !g.Defined {
		return "n/a"
	}
	value := g.rounded()
	sign := ""
	if value > 0 {
		sign = "+"
	}
	if g.Metric == MetricRank {
		return fmt.Sprintf("%s%d", sign, int(value))
	}
	return fmt.Sprintf("%s%.1f%%", sign, value)
}

func (g Growth) MarshalJSON() ([]byte, error) {
	if !g.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(g.rounded())
}

type Trend struct {
	Direction Direction `json:"direction"`
	Growth    Growth    `json:"growth"`
}

func attendanceOrZero(o Observation) int {
	if o.Attendance == nil {
		return 0
	}
	return *o.Attendance
}

// ComputeTrend returns the direction between the latest two observations and the growth
// over the whole span. ok is false when the entity has fewer than 2 observations.
func ComputeTrend(e Entity, metric Metric) (trend Trend, ok bool) {
	n := len(e.Observations)
	if n < 2 {
		return Trend{}, false
	}
	latest := e.Observations[n-1]
	previous := e.Observations[n-2]

	direction := DirectionDown
	switch metric {
	case MetricRank:
		// a numerically lower rank is an improvement
		if latest.Rank < previous.Rank {
			direction = DirectionUp
		}
	default:
		// equal attendance counts as down
		if attendanceOrZero(latest) > attendanceOrZero(previous) {
			direction = DirectionUp
		}
	}

	return Trend{
		Direction: direction,
		Growth:    ComputeGrowth(e.Observations[0], latest, metric),
	}, true
}

// ComputeGrowth computes the change from first to last.
func ComputeGrowth(first, last Observation, metric Metric) Growth {
	if metric == MetricRank {
		if first.Rank <= 0 || last.Rank <= 0 {
			return Growth{Metric: MetricRank}
		}
		return Growth{
			Metric:  MetricRank,
			Value:   float64(first.Rank - last.Rank),
			Defined: true,
		}
	}

	if first.Attendance == nil || last.Attendance == nil || *first.Attendance == 0 {
		return Growth{Metric: MetricAttendance}
	}
	pct := float64(*last.Attendance-*first.Attendance) / float64(*first.Attendance) * 100
	growth := Growth{Metric: MetricAttendance, Value: pct, Defined: true}
	growth.Value = growth.rounded()
	return growth
}

// EntityTrend is an entity's trend along with the values it was computed from.
type EntityTrend struct {
	Name      string      `json:"name"`
	Location  string      `json:"location"`
	Pastor    string      `json:"pastor"`
	First     Observation `json:"first"`
	Latest    Observation `json:"latest"`
	Direction Direction   `json:"direction"`
	Growth    Growth      `json:"growth"`
	// Display is Growth rendered for humans, ex. "+50.0%" or "n/a".
	Display string `json:"display"`
}

// Trends computes the trend of every entity with at least 2 observations, in input order.
func Trends(entities []Entity, metric Metric) []EntityTrend {
	out := []EntityTrend{}
	for _, e := range entities {
		trend, ok := ComputeTrend(e, metric)
		if !ok {
			continue
		}
		out = append(out, EntityTrend{
			Name:      e.Name,
			Location:  e.Location,
			Pastor:    e.Pastor,
			First:     e.Observations[0],
			Latest:    e.Observations[len(e.Observations)-1],
			Direction: trend.Direction,
			Growth:    trend.Growth,
			Display:   trend.Growth.String(),
		})
	}
	return out
}
