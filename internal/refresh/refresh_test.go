package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"churchrank/internal/config"
	"churchrank/internal/dataset"
	"churchrank/internal/scrapers/listing"
	"churchrank/internal/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type fakeWalker struct {
	mu      sync.Mutex
	years   map[int][]listing.Candidate
	errs    map[int]error
	panics  map[int]bool
	onWalk  func(year int)
	visited []int
}

func (w *fakeWalker) WalkYear(ctx context.Context, year int) ([]listing.Candidate, error) {
	w.mu.Lock()
	w.visited = append(w.visited, year)
	onWalk := w.onWalk
	w.mu.Unlock()

	if onWalk != nil {
		onWalk(year)
	}
	if w.panics[year] {
		panic("malformed page")
	}
	return w.years[year], w.errs[year]
}

func candidate(year int, name string, attendance int, rank int) listing.Candidate {
	return listing.Candidate{
		Year:       year,
		Name:       name,
		Location:   "Houston, TX",
		Pastor:     dataset.PastorNotFound,
		Attendance: dataset.Attendance(attendance),
		Rank:       rank,
		RankSource: listing.RankFromSibling,
	}
}

func TestDirectPartialFailure(t *testing.T) {
	walker := &fakeWalker{
		years: map[int][]listing.Candidate{
			2021: {
				candidate(2021, "Lakewood Church", 45000, 1),
				candidate(2021, "Second Baptist Church", 60000, 2),
			},
		},
		errs: map[int]error{
			2020: fmt.Errorf("%w: year 2020: connection refused", ErrSourceUnavailable),
		},
	}
	tel := telemetry.NewRecorder()

	result, err := NewDirect(walker, nil, 2, tel).Refresh(context.Background(), []int{2021, 2020})
	require.NoError(t, err)
	require.NotEmpty(t, result.RunId)

	require.Len(t, result.Errors, 1)
	require.Equal(t, 2020, result.Errors[0].Year)
	require.ErrorIs(t, result.Errors[0], ErrSourceUnavailable)

	expected := []dataset.Entity{
		{
			Name:     "Lakewood Church",
			Location: "Houston, TX",
			Pastor:   dataset.PastorNotFound,
			Observations: []dataset.Observation{
				{Year: 2021, Attendance: dataset.Attendance(45000), Rank: 2},
			},
		},
		{
			Name:     "Second Baptist Church",
			Location: "Houston, TX",
			Pastor:   dataset.PastorNotFound,
			Observations: []dataset.Observation{
				{Year: 2021, Attendance: dataset.Attendance(60000), Rank: 1},
			},
		},
	}
	if diff := cmp.Diff(expected, result.Entities); diff != "" {
		t.Fatalf("unexpected entities (-want +got):\n%s", diff)
	}

	count, ok := tel.Count("refresh: " + report_direct_entities)
	require.True(t, ok)
	require.EqualValues(t, 2, count)
	require.True(t, tel.HasWarning(report_direct_walk_year))
}

func TestDirectMergesYearsInOrder(t *testing.T) {
	walker := &fakeWalker{
		years: map[int][]listing.Candidate{
			2015: {candidate(2015, "Gateway Church", 20000, 1)},
			2016: {
				{Year: 2016, Name: "Gateway Church", Location: "Southlake, TX", Pastor: "Robert Morris", Attendance: dataset.Attendance(25000), Rank: 3},
				candidate(2016, "Church of the Highlands", 30000, 1),
				candidate(2016, "Church Of The Highlands", 1000, 2),
			},
		},
	}
	tel := telemetry.NewRecorder()

	result, err := NewDirect(walker, []int{2016, 2015}, 1, tel).Refresh(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	require.NotNil(t, result.Errors)

	gateway, ok := dataset.Find(result.Entities, "Gateway Church")
	require.True(t, ok)
	require.Equal(t, "Houston, TX", gateway.Location)
	require.Equal(t, "Robert Morris", gateway.Pastor)
	require.Equal(t, []dataset.Observation{
		{Year: 2015, Attendance: dataset.Attendance(20000), Rank: 1},
		{Year: 2016, Attendance: dataset.Attendance(25000), Rank: 2},
	}, gateway.Observations)

	require.NoError(t, dataset.Validate(result.Entities))
	require.True(t, tel.HasWarning(report_direct_duplicate))
}

func TestDirectPanicOnlyFailsYear(t *testing.T) {
	walker := &fakeWalker{
		years: map[int][]listing.Candidate{
			2019: {candidate(2019, "Saddleback Church", 22000, 1)},
		},
		panics: map[int]bool{2018: true},
	}
	tel := telemetry.NewRecorder()

	result, err := NewDirect(walker, nil, 2, tel).Refresh(context.Background(), []int{2018, 2019})
	require.NoError(t, err)
	require.Len(t, result.Entities, 1)
	require.Len(t, result.Errors, 1)
	require.Equal(t, 2018, result.Errors[0].Year)
	require.True(t, tel.HasBroken(report_direct_walk_year))
}

func TestDirectNoData(t *testing.T) {
	walker := &fakeWalker{
		errs: map[int]error{
			2020: fmt.Errorf("%w: %w", ErrSourceUnavailable, ErrDirectAccessBlocked),
			2021: fmt.Errorf("%w: %w", ErrSourceUnavailable, ErrDirectAccessBlocked),
		},
	}

	result, err := NewDirect(walker, nil, 2, telemetry.NewRecorder()).Refresh(context.Background(), []int{2020, 2021})
	require.ErrorIs(t, err, ErrNoData)
	require.ErrorIs(t, err, ErrDirectAccessBlocked)
	require.Len(t, result.Errors, 2)
	require.Empty(t, result.Entities)

	_, err = NewDirect(&fakeWalker{}, nil, 2, telemetry.NewRecorder()).Refresh(context.Background(), []int{2020})
	require.ErrorIs(t, err, ErrNoData)
}

func TestDirectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	walker := &fakeWalker{
		years: map[int][]listing.Candidate{
			2015: {candidate(2015, "Willow Creek", 25000, 1)},
			2016: {candidate(2016, "Willow Creek", 24000, 1)},
			2017: {candidate(2017, "Willow Creek", 23000, 1)},
		},
		onWalk: func(year int) {
			if year == 2015 {
				cancel()
			}
		},
	}

	result, err := NewDirect(walker, nil, 1, telemetry.NewRecorder()).Refresh(ctx, []int{2015, 2016, 2017})
	require.NoError(t, err)

	require.Len(t, result.Entities, 1)
	require.Len(t, result.Entities[0].Observations, 1)
	require.Len(t, result.Errors, 2)
	for _, yearErr := range result.Errors {
		require.ErrorIs(t, yearErr, ErrCancelled)
	}
	require.Equal(t, []int{2015}, walker.visited)
}

func TestBackend(t *testing.T) {
	var mu sync.Mutex
	var payload string
	status := http.StatusOK
	respond := func(s int, p string) {
		mu.Lock()
		defer mu.Unlock()
		status = s
		payload = p
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ScrapeAllPath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(payload))
	}))
	defer server.Close()

	backend, err := NewBackend(server.URL+"/", telemetry.NewRecorder(), nil)
	require.NoError(t, err)

	t.Run("forwards payload", func(t *testing.T) {
		respond(http.StatusOK, `{
			"consolidatedData": [
				{"name": "Life.Church", "location": "Edmond, OK", "pastor": "Craig Groeschel",
				 "data": [{"year": 2023, "attendance": 80000, "ranking": 1}, {"year": 2024, "attendance": null, "ranking": 1}]}
			],
			"errors": [{"year": 2020, "message": "Backend timeout"}]
		}`)

		result, err := backend.Refresh(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, result.Entities, 1)
		require.Nil(t, result.Entities[0].Observations[1].Attendance)
		require.Equal(t, []YearError{{Year: 2020, Message: "Backend timeout"}}, result.Errors)
	})

	t.Run("empty data violates contract", func(t *testing.T) {
		respond(http.StatusOK, `{"consolidatedData": [], "errors": [{"year": 2020, "message": "x"}]}`)

		_, err := backend.Refresh(context.Background(), nil)
		require.ErrorIs(t, err, ErrBackendContractViolation)
	})

	t.Run("missing data violates contract", func(t *testing.T) {
		respond(http.StatusOK, `{"errors": []}`)

		_, err := backend.Refresh(context.Background(), nil)
		require.ErrorIs(t, err, ErrBackendContractViolation)
	})

	t.Run("invalid data violates contract", func(t *testing.T) {
		respond(http.StatusOK, `{"consolidatedData": [{"name": "a", "data": [{"year": 2020}, {"year": 2020}]}]}`)

		_, err := backend.Refresh(context.Background(), nil)
		require.ErrorIs(t, err, ErrBackendContractViolation)
	})

	t.Run("non json violates contract", func(t *testing.T) {
		respond(http.StatusOK, `<html>oops</html>`)

		_, err := backend.Refresh(context.Background(), nil)
		require.ErrorIs(t, err, ErrBackendContractViolation)
	})

	t.Run("error status", func(t *testing.T) {
		respond(http.StatusBadGateway, `{}`)

		_, err := backend.Refresh(context.Background(), nil)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrBackendContractViolation)
		require.Contains(t, err.Error(), "502")
	})
}

func TestResultJSON(t *testing.T) {
	result := Result{
		Entities: []dataset.Entity{{Name: "a", Observations: []dataset.Observation{{Year: 2020, Rank: 1}}}},
		Errors:   []YearError{NewYearError(2021, errors.New("boom"))},
	}
	encoded, err := json.Marshal(result)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"consolidatedData": [{"name": "a", "location": "", "pastor": "", "data": [{"year": 2020, "attendance": null, "ranking": 1}]}],
		"errors": [{"year": 2021, "message": "boom"}]
	}`, string(encoded))
}

func TestNew(t *testing.T) {
	cfg := config.Defaults
	cfg.Backend = config.BackendConfig{Url: "http://localhost:9000", Enabled: true}
	source, err := New(cfg, telemetry.NewRecorder(), nil)
	require.NoError(t, err)
	require.IsType(t, Backend{}, source)

	cfg.Backend.Enabled = false
	cfg.Source.BaseUrl = "https://rankings.example.com/largest"
	source, err = New(cfg, telemetry.NewRecorder(), nil)
	require.NoError(t, err)
	require.IsType(t, Direct{}, source)

	cfg.Source.BaseUrl = ""
	_, err = New(cfg, telemetry.NewRecorder(), nil)
	require.Error(t, err)
}
