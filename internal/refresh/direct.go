package refresh

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"churchrank/internal/assert"
	"churchrank/internal/dataset"
	"churchrank/internal/scrapers/listing"
	"churchrank/internal/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

const (
	report_direct_walk_year  = "direct.walk-year"
	report_direct_duplicate  = "direct.duplicate-name"
	report_direct_entities   = "direct.entities"
	report_direct_year_count = "direct.year-errors"
)

// DuplicateThreshold is the Jaro-Winkler similarity above which two entity names are
// reported as a probable duplicate.
const DuplicateThreshold = 0.95

var tracer = otel.Tracer("churchrank/internal/refresh")

// YearWalker collects the candidates of a single year.
type YearWalker interface {
	WalkYear(ctx context.Context, year int) ([]listing.Candidate, error)
}

// Direct scrapes every year from the listing itself.
type Direct struct {
	walker       YearWalker
	defaultYears []int
	concurrency  int
	tel          telemetry.API
}

func NewDirect(walker YearWalker, defaultYears []int, concurrency int, tel telemetry.API) Direct {
	assert.NotNil(walker)
	assert.NotNil(tel)
	if concurrency < 1 {
		concurrency = 1
	}
	return Direct{
		walker:       walker,
		defaultYears: defaultYears,
		concurrency:  concurrency,
		tel:          telemetry.NewScopedAPI("refresh", tel),
	}
}

// Refresh walks each year independently, a failing year becomes an entry in Result.Errors and
// does not affect the others. Years are merged in ascending order and ranks are recomputed
// per year afterwards.
//
// When ctx is cancelled, years that have not started are recorded as cancelled and the
// partial data collected so far is still returned.
func (d Direct) Refresh(ctx context.Context, years []int) (Result, error) {
	if len(years) == 0 {
		years = d.defaultYears
	}
	years = slices.Clone(years)
	slices.Sort(years)
	years = slices.Compact(years)

	ctx, span := tracer.Start(ctx, "Direct.Refresh")
	defer span.End()
	span.SetAttributes(attribute.IntSlice("years", years))

	candidates := make([][]listing.Candidate, len(years))
	errs := make([]error, len(years))

	group := errgroup.Group{}
	group.SetLimit(d.concurrency)
	for i, year := range years {
		group.Go(func() error {
			candidates[i], errs[i] = d.walkYear(ctx, year)
			return nil
		})
	}
	group.Wait()

	result := Result{
		RunId:  uuid.NewString(),
		Errors: []YearError{},
	}
	merger := dataset.NewMerger()
	for i, year := range years {
		if errs[i] != nil {
			d.tel.ReportWarning(report_direct_walk_year, errs[i], year)
			result.Errors = append(result.Errors, NewYearError(year, errs[i]))
		}
		merger.Add(year, listing.Records(candidates[i]))
	}

	result.Entities = merger.Entities()
	if result.Entities == nil {
		result.Entities = []dataset.Entity{}
	}
	dataset.Normalize(result.Entities)

	for _, pair := range dataset.SuspectDuplicates(result.Entities, DuplicateThreshold) {
		d.tel.ReportWarning(report_direct_duplicate, pair.Left, pair.Right, pair.Similarity)
	}
	d.tel.ReportCount(report_direct_entities, int64(len(result.Entities)))
	d.tel.ReportCount(report_direct_year_count, int64(len(result.Errors)))

	span.SetAttributes(
		attribute.Int("entities", len(result.Entities)),
		attribute.Int("errors", len(result.Errors)),
	)

	if len(result.Entities) == 0 {
		err := fmt.Errorf("%w: no candidates were found for any year", ErrNoData)
		if len(result.Errors) > 0 {
			err = fmt.Errorf("%w: %w", ErrNoData, result.ErrorsJoined())
		}
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	return result, nil
}

// walkYear walks a single year, a panic inside the walk only fails that year.
func (d Direct) walkYear(ctx context.Context, year int) (candidates []listing.Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.tel.ReportBroken(report_direct_walk_year, fmt.Errorf("panic: %v", r), year)
			candidates = nil
			err = fmt.Errorf("year %d: %v", year, r)
		}
	}()

	if ctx.Err() != nil {
		return nil, fmt.Errorf("year %d: %w", year, ErrCancelled)
	}
	candidates, err = d.walker.WalkYear(ctx, year)
	if err != nil && !errors.Is(err, ErrCancelled) {
		candidates = nil
	}
	return candidates, err
}
