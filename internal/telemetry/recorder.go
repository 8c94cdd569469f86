package telemetry

import (
	"strings"
	"sync"
)

// Report is a single call recorded by Recorder.
type Report struct {
	ID     string
	Params []any
}

// Recorder is an API that keeps every report in memory so tests can assert on what a
// component reported. It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	broken   []Report
	warnings []Report
	debug    []Report
	counts   map[string]int64
}

func NewRecorder() *Recorder {
	return &Recorder{counts: map[string]int64{}}
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broken = append(r.broken, Report{ID: id, Params: params})
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, Report{ID: id, Params: params})
}

func (r *Recorder) ReportDebug(msg string, params ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.debug = append(r.debug, Report{ID: msg, Params: params})
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[id] = count
}

func (r *Recorder) Broken() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Report(nil), r.broken...)
}

func (r *Recorder) Warnings() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Report(nil), r.warnings...)
}

// Count returns the last count reported for id and whether it was reported at all.
func (r *Recorder) Count(id string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.counts[id]
	return n, ok
}

// HasWarning returns true if a warning whose id ends with suffix was reported. Ids are
// matched by suffix so tests don't depend on ScopedAPI namespaces.
func (r *Recorder) HasWarning(suffix string) bool {
	for _, w := range r.Warnings() {
		if strings.HasSuffix(w.ID, suffix) {
			return true
		}
	}
	return false
}

// HasBroken is HasWarning for ReportBroken.
func (r *Recorder) HasBroken(suffix string) bool {
	for _, b := range r.Broken() {
		if strings.HasSuffix(b.ID, suffix) {
			return true
		}
	}
	return false
}
