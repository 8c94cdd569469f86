package listing

import (
	"regexp"
	"strconv"
	"strings"

	"churchrank/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// fieldContext is everything a field strategy may look at for one candidate anchor.
type fieldContext struct {
	anchor    *goquery.Selection
	container *goquery.Selection
	// texts holds the container's text nodes in document order followed by the text of every
	// descendant element, so fields split across inline tags can still be matched.
	texts []string
	// name is the already inferred name, strategies for other fields skip it.
	name     string
	year     int
	position int
}

type strategy[T any] func(fc fieldContext) (T, bool)

// firstOf runs strategies in order and returns the first result found.
func firstOf[T any](fc fieldContext, strategies []strategy[T]) (T, bool) {
	for _, s := range strategies {
		value, ok := s(fc)
		if ok {
			return value, true
		}
	}
	var zero T
	return zero, false
}

type rankGuess struct {
	rank   int
	source RankSource
}

var (
	nameStrategies       = []strategy[string]{nameFromAnchor, nameFromHeading}
	rankStrategies       = []strategy[rankGuess]{rankFromPrecedingSibling, rankFromBareInteger, rankFromPosition}
	locationStrategies   = []strategy[string]{locationFromText}
	pastorStrategies     = []strategy[string]{pastorFromHyphenatedText}
	attendanceStrategies = []strategy[int]{attendanceFromNumber}
)

func nameFromAnchor(fc fieldContext) (string, bool) {
	name := htmlutil.CleanText(fc.anchor.Text())
	return name, name != ""
}

func nameFromHeading(fc fieldContext) (string, bool) {
	heading := fc.container.Find("h1, h2, h3, h4, h5, h6").First()
	if heading.Length() == 0 {
		return "", false
	}
	name := htmlutil.CleanText(heading.Text())
	return name, name != ""
}

var leadingIntRegex = regexp.MustCompile(`^\s*#?(\d+)`)

// rankFromPrecedingSibling looks at the element right before the anchor, or right before the
// element wrapping it (ex. the previous table cell), up to the container.
func rankFromPrecedingSibling(fc fieldContext) (rankGuess, bool) {
	containerNode := fc.container.Get(0)
	for current := fc.anchor; current.Length() > 0; current = current.Parent() {
		if current.Get(0) == containerNode {
			break
		}
		prev := current.Prev()
		if prev.Length() == 0 {
			continue
		}
		groups := leadingIntRegex.FindStringSubmatch(prev.Text())
		if len(groups) < 2 {
			return rankGuess{}, false
		}
		rank, err := strconv.Atoi(groups[1])
		if err != nil || rank <= 0 {
			return rankGuess{}, false
		}
		return rankGuess{rank: rank, source: RankFromSibling}, true
	}
	return rankGuess{}, false
}

var bareIntRegex = regexp.MustCompile(`^#?(\d{1,3})\.?$`)

func rankFromBareInteger(fc fieldContext) (rankGuess, bool) {
	for _, text := range fc.texts {
		groups := bareIntRegex.FindStringSubmatch(text)
		if len(groups) < 2 {
			continue
		}
		rank, err := strconv.Atoi(groups[1])
		if err != nil || rank <= 0 || rank > 100 {
			continue
		}
		return rankGuess{rank: rank, source: RankFromText}, true
	}
	return rankGuess{}, false
}

func rankFromPosition(fc fieldContext) (rankGuess, bool) {
	if fc.position <= 0 {
		return rankGuess{}, false
	}
	return rankGuess{rank: fc.position, source: RankFromPosition}, true
}

var locationRegex = regexp.MustCompile(`^[A-Z][A-Za-z.'\- ]*, [A-Z][A-Za-z]{1,3}\.?$`)

func locationFromText(fc fieldContext) (string, bool) {
	for _, text := range fc.texts {
		if text == fc.name || len(text) >= 50 {
			continue
		}
		if locationRegex.MatchString(text) {
			return text, true
		}
	}
	return "", false
}

func pastorFromHyphenatedText(fc fieldContext) (string, bool) {
	for _, text := range fc.texts {
		if text == fc.name || len(text) < 5 || len(text) > 100 {
			continue
		}
		parts := strings.Split(text, "-")
		if len(parts) != 2 {
			continue
		}
		pastor := strings.TrimSpace(parts[1])
		if pastor == "" || strings.Contains(pastor, ",") || len(pastor) >= 50 {
			continue
		}
		return pastor, true
	}
	return "", false
}

var numberRegex = regexp.MustCompile(`\b(?:\d{1,3}(?:,\d{3})+|\d{3,6})\b`)

func attendanceFromNumber(fc fieldContext) (int, bool) {
	for _, text := range fc.texts {
		for _, token := range numberRegex.FindAllString(text, -1) {
			digits := strings.ReplaceAll(token, ",", "")
			if len(digits) < 3 || len(digits) > 6 {
				continue
			}
			value, err := strconv.Atoi(digits)
			if err != nil || value == fc.year {
				continue
			}
			if value >= 1000 && value <= 100000 {
				return value, true
			}
		}
	}
	return 0, false
}
