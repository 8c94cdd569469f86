package listing

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"churchrank/internal/assert"
	"churchrank/internal/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_walker_partial = "walker.partial"
	report_walker_ceiling = "walker.ceiling"
	report_walker_pages   = "walker.pages"
)

var tracer = otel.Tracer("churchrank/internal/scrapers/listing")

// Page is one fetched and extracted listing page.
type Page struct {
	Year       int
	Number     int
	Candidates []Candidate
}

// Walker walks the pages of a year sequentially.
type Walker struct {
	fetcher   PageFetcher
	extractor Extractor
	maxPages  int
	delay     time.Duration
	timeout   time.Duration
	tel       telemetry.API
}

func NewWalker(fetcher PageFetcher, extractor Extractor, opts Options, tel telemetry.API) Walker {
	assert.NotNil(fetcher)
	assert.NotNil(tel)
	opts = opts.withDefaults()
	assert.Positive(opts.MaxPages, "max pages")
	return Walker{
		fetcher:   fetcher,
		extractor: extractor,
		maxPages:  opts.MaxPages,
		delay:     opts.Delay,
		timeout:   opts.Timeout,
		tel:       telemetry.NewScopedAPI("listing", tel),
	}
}

// Pages lazily fetches the pages of year, at most maxPages of them. Iteration ends after the
// first page without candidates, or after yielding an error. A fresh sequence is started on
// every range over the result.
//
// Each fetch completes and the configured delay elapses before the next page is requested.
// Once ctx is done no further page is requested and ErrCancelled is yielded, a fetch already
// in flight is allowed to finish within its own timeout.
func (w Walker) Pages(ctx context.Context, year int) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		for number := 1; number <= w.maxPages; number++ {
			page := Page{Year: year, Number: number}

			if ctx.Err() != nil {
				yield(page, fmt.Errorf("year %d page %d: %w", year, number, ErrCancelled))
				return
			}
			if number > 1 && w.delay > 0 {
				err := pause(ctx, w.delay)
				if err != nil {
					yield(page, fmt.Errorf("year %d page %d: %w: %w", year, number, ErrCancelled, err))
					return
				}
			}

			markup, err := w.fetch(ctx, year, number)
			if err != nil {
				yield(page, err)
				return
			}
			page.Candidates, err = w.extractor.Extract(markup, year)
			if err != nil {
				yield(page, err)
				return
			}
			if len(page.Candidates) == 0 {
				return
			}
			if !yield(page, nil) {
				return
			}
		}
		w.tel.ReportDebug(report_walker_ceiling, year, w.maxPages)
	}
}

// pause waits for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w Walker) fetch(ctx context.Context, year, page int) (string, error) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()
	return w.fetcher.FetchPage(fetchCtx, year, page)
}

// WalkYear collects the candidates of every page of year. A failure on the first page fails
// the year with ErrSourceUnavailable, a failure on a later page ends the walk early with the
// pages collected so far. On cancellation the collected candidates are returned along with
// ErrCancelled.
func (w Walker) WalkYear(ctx context.Context, year int) ([]Candidate, error) {
	ctx, span := tracer.Start(ctx, "WalkYear")
	defer span.End()
	span.SetAttributes(attribute.Int("year", year))

	var candidates []Candidate
	pages := 0
	for page, err := range w.Pages(ctx, year) {
		if err != nil {
			if errors.Is(err, ErrCancelled) {
				span.SetStatus(codes.Error, err.Error())
				return candidates, err
			}
			if page.Number <= 1 {
				err = fmt.Errorf("%w: year %d: %w", ErrSourceUnavailable, year, err)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
			w.tel.ReportWarning(report_walker_partial, err, year, page.Number)
			break
		}
		candidates = append(candidates, page.Candidates...)
		pages++
	}

	w.tel.ReportCount(report_walker_pages, int64(pages))
	span.SetAttributes(
		attribute.Int("pages", pages),
		attribute.Int("candidates", len(candidates)),
	)
	return candidates, nil
}
