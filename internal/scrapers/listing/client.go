package listing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"churchrank/internal/assert"
	"churchrank/internal/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_client_fetch_page = "client.fetch-page"
)

// PageFetcher returns the raw markup of one listing page.
type PageFetcher interface {
	FetchPage(ctx context.Context, year, page int) (string, error)
}

// Client fetches listing pages over http.
type Client struct {
	baseUrl   *url.URL
	pageParam string
	http      *resty.Client
	tel       telemetry.API
}

// NewClient creates a listing client. `output` receives a dump of every exchange when it is
// not nil.
func NewClient(opts Options, tel telemetry.API, output telemetry.MessageOutput) (Client, error) {
	assert.NotNil(tel)
	opts = opts.withDefaults()

	tel = telemetry.NewScopedAPI("listing", tel)

	if opts.BaseUrl == "" {
		return Client{}, fmt.Errorf("listing base url is not configured")
	}
	baseUrl, err := url.Parse(strings.TrimSuffix(opts.BaseUrl, "/"))
	if err != nil {
		return Client{}, fmt.Errorf("parse listing base url: %w", err)
	}

	httpClient := resty.New()
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	httpClient.SetHeader("user-agent", opts.UserAgent)
	httpClient.SetTimeout(opts.Timeout)

	// shared by every year walked with this client, burst 1 so concurrent walks never fire
	// together
	limiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})
	telemetry.InstrumentResty(httpClient, tel, output)

	return Client{
		baseUrl:   baseUrl,
		pageParam: opts.PageParam,
		http:      httpClient,
		tel:       tel,
	}, nil
}

// BaseUrl is the url relative detail links on a page are resolved against.
func (c Client) BaseUrl() *url.URL {
	return c.baseUrl
}

// PageUrl returns the url of a listing page, page 1 is the bare year url.
func (c Client) PageUrl(year, page int) string {
	link := c.baseUrl.JoinPath(strconv.Itoa(year))
	if page > 1 {
		query := link.Query()
		query.Set(c.pageParam, strconv.Itoa(page))
		link.RawQuery = query.Encode()
	}
	return link.String()
}

func (c Client) FetchPage(ctx context.Context, year, page int) (string, error) {
	link := c.PageUrl(year, page)

	res, err := c.http.R().
		SetContext(telemetry.WithExchangeAttrs(ctx, "year", year, "page", page)).
		Get(link)
	if err != nil {
		c.tel.ReportBroken(report_client_fetch_page, fmt.Errorf("fetch: %w", err), year, page)
		return "", fmt.Errorf("fetch %s: %w", link, err)
	}

	if isBlocked(res) {
		c.tel.ReportWarning(report_client_fetch_page, ErrDirectAccessBlocked, year, page, res.Status())
		return "", fmt.Errorf("fetch %s: %w (%s)", link, ErrDirectAccessBlocked, res.Status())
	}
	if res.IsError() {
		c.tel.ReportBroken(report_client_fetch_page, fmt.Errorf("unexpected status"), year, page, res.Status())
		return "", fmt.Errorf("fetch %s: unexpected status %s", link, res.Status())
	}

	return res.String(), nil
}

func isBlocked(res *resty.Response) bool {
	switch res.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	if res.Header().Get("cf-mitigated") == "challenge" {
		return true
	}
	if res.StatusCode() == http.StatusServiceUnavailable &&
		strings.Contains(res.Header().Get("server"), "cloudflare") {
		return true
	}
	return false
}
