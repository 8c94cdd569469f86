// Package refresh builds the consolidated multi-year dataset, either by scraping the listing
// directly or by forwarding the results of a cooperating backend.
package refresh

import (
	"context"
	"errors"
	"fmt"

	"churchrank/internal/config"
	"churchrank/internal/dataset"
	"churchrank/internal/scrapers/listing"
	"churchrank/internal/telemetry"
)

var (
	ErrSourceUnavailable   = listing.ErrSourceUnavailable
	ErrDirectAccessBlocked = listing.ErrDirectAccessBlocked
	ErrCancelled           = listing.ErrCancelled
	// ErrBackendContractViolation is returned when the backend answers successfully with a
	// payload that cannot be used. It fails the whole refresh.
	ErrBackendContractViolation = errors.New("backend contract violation")
	// ErrNoData is returned when a refresh produced no entities at all.
	ErrNoData = errors.New("no usable data")
)

// YearError records why a single year is missing from (or incomplete in) a Result.
type YearError struct {
	Year    int    `json:"year" yaml:"year"`
	Message string `json:"message" yaml:"message"`
	Err     error  `json:"-" yaml:"-"`
}

func NewYearError(year int, err error) YearError {
	return YearError{Year: year, Message: err.Error(), Err: err}
}

func (e YearError) Error() string {
	return fmt.Sprintf("%d: %s", e.Year, e.Message)
}

func (e YearError) Unwrap() error {
	return e.Err
}

// Result is the outcome of a refresh, it is also the consolidated wire payload.
type Result struct {
	RunId    string           `json:"runId,omitempty" yaml:"runId,omitempty"`
	Entities []dataset.Entity `json:"consolidatedData" yaml:"consolidatedData"`
	Errors   []YearError      `json:"errors" yaml:"errors"`
}

// ErrorsJoined returns every year error as a single error, or nil.
func (r Result) ErrorsJoined() error {
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Source produces a Result for a set of years. An empty set of years means the source's
// default range.
type Source interface {
	Refresh(ctx context.Context, years []int) (Result, error)
}

// New picks the backend source when it is enabled in cfg and the direct source otherwise.
func New(cfg config.Config, tel telemetry.API, output telemetry.MessageOutput) (Source, error) {
	if cfg.Backend.Enabled {
		if cfg.Backend.Url == "" {
			return nil, fmt.Errorf("backend is enabled but no backend url is configured")
		}
		return NewBackend(cfg.Backend.Url, tel, output)
	}

	opts := cfg.Source.Options()
	client, err := listing.NewClient(opts, tel, output)
	if err != nil {
		return nil, err
	}
	extractor := listing.NewExtractor(client.BaseUrl(), opts.DetailPattern, tel)
	walker := listing.NewWalker(client, extractor, opts, tel)
	return NewDirect(walker, cfg.Years.List(), cfg.Concurrency, tel), nil
}
