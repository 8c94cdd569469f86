// Package listing scrapes the paged third-party church ranking listing: one HTML page per
// (year, page), from which candidate entities are inferred heuristically.
package listing

import (
	"errors"
	"time"

	"churchrank/internal/dataset"
)

var (
	// ErrSourceUnavailable is returned when the first page of a year cannot be fetched.
	ErrSourceUnavailable = errors.New("listing source unavailable")
	// ErrDirectAccessBlocked is returned when the source refuses direct requests (auth/rate
	// limit statuses or a cloudflare challenge).
	ErrDirectAccessBlocked = errors.New("direct access to the listing was blocked by the source, configure backend.url and set backend.enabled to fetch through the backend instead")
	// ErrCancelled is returned when a walk was cut short by its context.
	ErrCancelled = errors.New("cancelled")
)

type Options struct {
	// BaseUrl is the listing root, page urls are <BaseUrl>/<year>[?<PageParam>=<n>].
	BaseUrl string
	// DetailPattern is the substring an anchor's href must contain to be a candidate.
	DetailPattern string
	PageParam     string
	MaxPages      int
	// Delay is the pause between the end of one page fetch and the start of the next.
	Delay   time.Duration
	Timeout time.Duration
	// RequestsPerSecond caps requests made by a client across every concurrent year walk.
	RequestsPerSecond float64
	UserAgent         string
}

const (
	DefaultDetailPattern     = "/church/"
	DefaultPageParam         = "page"
	DefaultMaxPages          = 10
	DefaultDelay             = 200 * time.Millisecond
	DefaultTimeout           = 15 * time.Second
	DefaultRequestsPerSecond = 4
	DefaultUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
)

func (o Options) withDefaults() Options {
	if o.DetailPattern == "" {
		o.DetailPattern = DefaultDetailPattern
	}
	if o.PageParam == "" {
		o.PageParam = DefaultPageParam
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	return o
}

// RankSource records which strategy determined a candidate's rank.
type RankSource string

const (
	RankFromSibling RankSource = "sibling"
	RankFromText    RankSource = "text"
	// RankFromPosition is the anchor's index on its page. It is only the real rank on the
	// first page (and only when the listing has no gaps), treat it as a guess.
	RankFromPosition RankSource = "position"
)

// Candidate is a provisional entity inferred from a listing page.
type Candidate struct {
	Year     int    `json:"year"`
	Name     string `json:"name"`
	Location string `json:"location"`
	Pastor   string `json:"pastor"`
	// Attendance is nil when no plausible number was found near the anchor.
	Attendance *int       `json:"attendance"`
	Rank       int        `json:"rank"`
	RankSource RankSource `json:"rankSource"`
	DetailUrl  string     `json:"detailUrl"`
}

func (c Candidate) Record() dataset.Record {
	return dataset.Record{
		Name:       c.Name,
		Location:   c.Location,
		Pastor:     c.Pastor,
		Attendance: c.Attendance,
		Rank:       c.Rank,
	}
}

// Records converts candidates into merge records.
func Records(candidates []Candidate) []dataset.Record {
	out := make([]dataset.Record, len(candidates))
	for i, c := range candidates {
		out[i] = c.Record()
	}
	return out
}
