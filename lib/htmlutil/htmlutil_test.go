package htmlutil

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, markup string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestCleanText(t *testing.T) {
	require.Equal(t, "Life.Church Edmond", CleanText("  Life.Church\n\t  Edmond \u0000"))
	require.Equal(t, "", CleanText(" \n\t "))
}

func TestTextNodes(t *testing.T) {
	doc := parse(t, `<div id="row">
		<span>1</span>
		<a href="/church/life">Life.Church</a>
		<script>var x = "ignored";</script>
		<p>Edmond, <b>OK</b></p>
	</div>`)

	texts := TextNodes(doc.Find("#row"))
	require.Equal(t, []string{"1", "Life.Church", "Edmond,", "OK"}, texts)
}

func TestGetAnchors(t *testing.T) {
	base, err := url.Parse("https://example.com/rankings/2024")
	require.NoError(t, err)

	doc := parse(t, `<ul>
		<li><a href="/church/life-church">  Life.Church </a></li>
		<li><a href="other#section">Other
			Church</a></li>
	</ul>`)

	anchors := GetAnchors(base, doc.Find("a"))
	require.Len(t, anchors, 2)
	require.Equal(t, "Life.Church", anchors[0].Name)
	require.Equal(t, "https://example.com/church/life-church", anchors[0].Url.String())
	require.Equal(t, "Other Church", anchors[1].Name)
	require.Equal(t, "https://example.com/rankings/other#section", anchors[1].Url.String())
}

func TestNormalizeUrl(t *testing.T) {
	a, _ := url.Parse("https://Example.com:443/church/life/index.html?b=2&a=1#top")
	b, _ := url.Parse("https://example.com/church/life/?a=1&b=2")
	require.Equal(t, NormalizeUrl(a), NormalizeUrl(b))
	require.Equal(t, "", NormalizeUrl(nil))
}
