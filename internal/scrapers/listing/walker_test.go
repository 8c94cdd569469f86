package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"churchrank/internal/telemetry"

	"github.com/stretchr/testify/require"
)

// pageMarkup renders a listing page in the table layout, ranks start at firstRank.
func pageMarkup(firstRank int, names ...string) string {
	var rows strings.Builder
	for i, name := range names {
		slug := strings.ToLower(strings.ReplaceAll(name, " ", "-"))
		fmt.Fprintf(
			&rows,
			`<tr><td>%d</td><td><a href="/church/%s">%s</a></td><td>Dallas, TX</td><td>%d</td></tr>`,
			firstRank+i, slug, name, 50000-(firstRank+i)*100,
		)
	}
	return "<html><body><table>" + rows.String() + "</table></body></html>"
}

type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[int]string
	failures map[int]error
	onFetch  func(page int)
	calls    []int
}

func (f *fakeFetcher) FetchPage(ctx context.Context, year, page int) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, page)
	onFetch := f.onFetch
	f.mu.Unlock()

	if onFetch != nil {
		onFetch(page)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err, ok := f.failures[page]; ok {
		return "", err
	}
	return f.pages[page], nil
}

func (f *fakeFetcher) Calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.calls...)
}

func newTestWalker(fetcher PageFetcher, opts Options, tel telemetry.API) Walker {
	return NewWalker(fetcher, NewExtractor(nil, "", tel), opts, tel)
}

func candidateNames(candidates []Candidate) []string {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	return names
}

func TestWalkYearStopsOnEmptyPage(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[int]string{
		1: pageMarkup(1, "Alpha Church", "Beta Church"),
		2: pageMarkup(3, "Gamma Church"),
		3: "<html><body><p>No more results</p></body></html>",
		4: pageMarkup(4, "Unreachable Church"),
	}}
	tel := telemetry.NewRecorder()

	candidates, err := newTestWalker(fetcher, Options{}, tel).WalkYear(context.Background(), 2020)
	require.NoError(t, err)
	require.Equal(t, []string{"Alpha Church", "Beta Church", "Gamma Church"}, candidateNames(candidates))
	require.Equal(t, []int{1, 2, 3}, fetcher.Calls())
	require.Empty(t, tel.Warnings())

	for _, c := range candidates {
		require.Equal(t, 2020, c.Year)
		require.Equal(t, "Dallas, TX", c.Location)
	}
}

func TestWalkYearFirstPageFailure(t *testing.T) {
	fetcher := &fakeFetcher{
		pages:    map[int]string{2: pageMarkup(1, "Alpha Church")},
		failures: map[int]error{1: errors.New("connection refused")},
	}

	candidates, err := newTestWalker(fetcher, Options{}, telemetry.NewRecorder()).WalkYear(context.Background(), 2020)
	require.ErrorIs(t, err, ErrSourceUnavailable)
	require.Contains(t, err.Error(), "connection refused")
	require.Nil(t, candidates)
	require.Equal(t, []int{1}, fetcher.Calls())
}

func TestWalkYearBlockedFirstPage(t *testing.T) {
	fetcher := &fakeFetcher{
		failures: map[int]error{1: fmt.Errorf("fetch: %w", ErrDirectAccessBlocked)},
	}

	_, err := newTestWalker(fetcher, Options{}, telemetry.NewRecorder()).WalkYear(context.Background(), 2020)
	require.ErrorIs(t, err, ErrSourceUnavailable)
	require.ErrorIs(t, err, ErrDirectAccessBlocked)
}

func TestWalkYearPartialFailure(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: map[int]string{
			1: pageMarkup(1, "Alpha Church"),
			2: pageMarkup(2, "Beta Church"),
			4: pageMarkup(4, "Delta Church"),
		},
		failures: map[int]error{3: errors.New("timeout")},
	}
	tel := telemetry.NewRecorder()

	candidates, err := newTestWalker(fetcher, Options{}, tel).WalkYear(context.Background(), 2021)
	require.NoError(t, err)
	require.Equal(t, []string{"Alpha Church", "Beta Church"}, candidateNames(candidates))
	require.Equal(t, []int{1, 2, 3}, fetcher.Calls())
	require.True(t, tel.HasWarning(report_walker_partial))
}

func TestWalkYearCeiling(t *testing.T) {
	pages := map[int]string{}
	for i := 1; i <= 5; i++ {
		pages[i] = pageMarkup(i, fmt.Sprintf("Church %d", i))
	}
	fetcher := &fakeFetcher{pages: pages}

	candidates, err := newTestWalker(fetcher, Options{MaxPages: 3}, telemetry.NewRecorder()).WalkYear(context.Background(), 2022)
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	require.Equal(t, []int{1, 2, 3}, fetcher.Calls())
}

func TestWalkYearCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := &fakeFetcher{
		pages: map[int]string{
			1: pageMarkup(1, "Alpha Church"),
			2: pageMarkup(2, "Beta Church"),
			3: pageMarkup(3, "Gamma Church"),
		},
		// cancelling during the second fetch must still let it complete
		onFetch: func(page int) {
			if page == 2 {
				cancel()
			}
		},
	}

	candidates, err := newTestWalker(fetcher, Options{}, telemetry.NewRecorder()).WalkYear(ctx, 2023)
	require.ErrorIs(t, err, ErrCancelled)
	require.Equal(t, []string{"Alpha Church", "Beta Church"}, candidateNames(candidates))
	require.Equal(t, []int{1, 2}, fetcher.Calls())
}

func TestPagesRestartable(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[int]string{
		1: pageMarkup(1, "Alpha Church"),
		2: pageMarkup(2, "Beta Church"),
	}}
	walker := newTestWalker(fetcher, Options{}, telemetry.NewRecorder())
	pages := walker.Pages(context.Background(), 2019)

	var first []int
	for page, err := range pages {
		require.NoError(t, err)
		first = append(first, page.Number)
	}

	var second []int
	for page, err := range pages {
		require.NoError(t, err)
		second = append(second, page.Number)
		break
	}

	require.Equal(t, []int{1, 2}, first)
	require.Equal(t, []int{1}, second)
	// 1, 2 and the empty page 3 the first time, only page 1 the second time
	require.Equal(t, []int{1, 2, 3, 1}, fetcher.Calls())
}

func TestPagesDelayFollowsFetch(t *testing.T) {
	var mu sync.Mutex
	starts := map[int]time.Time{}
	ends := map[int]time.Time{}
	fetcher := &fakeFetcher{
		pages: map[int]string{
			1: pageMarkup(1, "Alpha Church"),
			2: pageMarkup(2, "Beta Church"),
			3: pageMarkup(3, "Gamma Church"),
		},
		// each fetch is slower than the delay
		onFetch: func(page int) {
			mu.Lock()
			starts[page] = time.Now()
			mu.Unlock()
			time.Sleep(60 * time.Millisecond)
			mu.Lock()
			ends[page] = time.Now()
			mu.Unlock()
		},
	}
	walker := newTestWalker(fetcher, Options{Delay: 40 * time.Millisecond, MaxPages: 3}, telemetry.NewRecorder())

	_, err := walker.WalkYear(context.Background(), 2018)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	for page := 2; page <= 3; page++ {
		gap := starts[page].Sub(ends[page-1])
		// some slack for timer granularity
		require.GreaterOrEqual(t, gap, 35*time.Millisecond, "gap before page %d", page)
	}
}

func TestPagesDelayCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fetcher := &fakeFetcher{
		pages: map[int]string{
			1: pageMarkup(1, "Alpha Church"),
			2: pageMarkup(2, "Beta Church"),
		},
		// cancelled while waiting out the delay after page 1
		onFetch: func(page int) {
			if page == 1 {
				time.AfterFunc(50*time.Millisecond, cancel)
			}
		},
	}
	walker := newTestWalker(fetcher, Options{Delay: time.Hour, MaxPages: 3}, telemetry.NewRecorder())

	start := time.Now()
	candidates, err := walker.WalkYear(ctx, 2018)
	require.ErrorIs(t, err, ErrCancelled)
	require.Equal(t, []string{"Alpha Church"}, candidateNames(candidates))
	require.Equal(t, []int{1}, fetcher.Calls())
	require.Less(t, time.Since(start), time.Minute)
}
