package listing

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"churchrank/internal/assert"
	"churchrank/internal/dataset"
	"churchrank/internal/telemetry"
	"churchrank/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	report_extractor_parse   = "extractor.parse"
	report_extractor_inspect = "extractor.inspect"
	report_extractor_miss    = "extractor.field-miss"
)

// Extractor infers candidates from a listing page by looking at the text surrounding each
// anchor that links to a detail page.
type Extractor struct {
	base          *url.URL
	detailPattern string
	tel           telemetry.API
}

// NewExtractor creates an Extractor, base is used to resolve relative detail links and may be
// nil.
func NewExtractor(base *url.URL, detailPattern string, tel telemetry.API) Extractor {
	assert.NotNil(tel)
	if detailPattern == "" {
		detailPattern = DefaultDetailPattern
	}
	return Extractor{
		base:          base,
		detailPattern: detailPattern,
		tel:           telemetry.NewScopedAPI("listing", tel),
	}
}

// Extract returns the candidates found on a page of year, deduplicated and ordered by rank.
// It only fails when the markup cannot be read at all, a page without matching anchors
// yields an empty slice.
func (e Extractor) Extract(markup string, year int) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		e.tel.ReportBroken(report_extractor_parse, err, year)
		return nil, fmt.Errorf("parse listing page: %w", err)
	}
	return e.ExtractDocument(doc, year), nil
}

func (e Extractor) ExtractDocument(doc *goquery.Document, year int) []Candidate {
	var anchors []*goquery.Selection
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if strings.Contains(a.AttrOr("href", ""), e.detailPattern) {
			anchors = append(anchors, a)
		}
	})

	candidates := []Candidate{}
	seenUrls := map[string]struct{}{}
	seenNames := map[string]struct{}{}
	for i, anchor := range anchors {
		candidate, ok := e.inspect(anchor, year, i+1)
		if !ok {
			continue
		}
		if candidate.DetailUrl != "" {
			if _, dup := seenUrls[candidate.DetailUrl]; dup {
				continue
			}
			seenUrls[candidate.DetailUrl] = struct{}{}
		}
		if _, dup := seenNames[candidate.Name]; dup {
			continue
		}
		seenNames[candidate.Name] = struct{}{}
		candidates = append(candidates, candidate)
	}

	slices.SortStableFunc(candidates, func(a, b Candidate) int {
		return a.Rank - b.Rank
	})
	return candidates
}

// inspect infers a single candidate. A panic while inspecting is reported and only drops
// this candidate.
func (e Extractor) inspect(anchor *goquery.Selection, year, position int) (candidate Candidate, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.tel.ReportBroken(report_extractor_inspect, fmt.Errorf("panic: %v", r), year, position)
			candidate = Candidate{}
			ok = false
		}
	}()

	container := anchor.Closest("tr, li, article, section, div")
	if container.Length() == 0 {
		container = anchor.Parent()
	}

	fc := fieldContext{
		anchor:    anchor,
		container: container,
		texts:     containerTexts(container),
		year:      year,
		position:  position,
	}

	name, found := firstOf(fc, nameStrategies)
	if !found {
		return Candidate{}, false
	}
	fc.name = name

	rank, found := firstOf(fc, rankStrategies)
	if !found {
		return Candidate{}, false
	}

	candidate = Candidate{
		Year:       year,
		Name:       name,
		Location:   dataset.LocationNotFound,
		Pastor:     dataset.PastorNotFound,
		Rank:       rank.rank,
		RankSource: rank.source,
	}

	if location, found := firstOf(fc, locationStrategies); found {
		candidate.Location = location
	} else {
		e.tel.ReportDebug(report_extractor_miss, "location", name, year)
	}
	if pastor, found := firstOf(fc, pastorStrategies); found {
		candidate.Pastor = pastor
	} else {
		e.tel.ReportDebug(report_extractor_miss, "pastor", name, year)
	}
	if attendance, found := firstOf(fc, attendanceStrategies); found {
		candidate.Attendance = dataset.Attendance(attendance)
	} else {
		e.tel.ReportDebug(report_extractor_miss, "attendance", name, year)
	}

	links := htmlutil.GetAnchors(e.base, anchor)
	if len(links) > 0 {
		candidate.DetailUrl = htmlutil.NormalizeUrl(links[0].Url)
	}

	return candidate, true
}

func containerTexts(container *goquery.Selection) []string {
	texts := htmlutil.TextNodes(container)
	container.Find("*").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		if node.Type == html.ElementNode && (node.Data == "script" || node.Data == "style") {
			return
		}
		text := htmlutil.CleanText(htmlutil.GetText(node))
		if text != "" {
			texts = append(texts, text)
		}
	})
	return texts
}
