package telemetry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
)

// MessageOutput receives a rendered copy of every http exchange, see FilesystemOutput.
type MessageOutput interface {
	Write(id string, contents string)
}

type attrsKeyType int

var attrsKey attrsKeyType

// WithExchangeAttrs attaches key/value pairs (ex. "year", 2024, "page", 2) to the requests
// made with ctx. They are reported alongside each exchange and written into its dump.
func WithExchangeAttrs(ctx context.Context, attrs ...any) context.Context {
	existing, _ := ctx.Value(attrsKey).([]any)
	return context.WithValue(ctx, attrsKey, append(slices.Clip(existing), attrs...))
}

func exchangeAttrs(ctx context.Context) []any {
	attrs, _ := ctx.Value(attrsKey).([]any)
	return attrs
}

type exchangeKeyType int

var exchangeKey exchangeKeyType

type exchange struct {
	id      uint64
	started time.Time
	attrs   []any
}

type restyInstrument struct {
	tel    API
	output MessageOutput
	nextId *atomic.Uint64
}

// InstrumentResty reports every request made by client with the exchange attributes of its
// context. When output is not nil each completed exchange is rendered and written to it.
func InstrumentResty(client *resty.Client, tel API, output MessageOutput) {
	i := restyInstrument{tel: tel, output: output, nextId: &atomic.Uint64{}}
	client.OnBeforeRequest(i.before)
	client.OnAfterResponse(i.after)
	client.OnError(i.failed)
}

func (i restyInstrument) before(_ *resty.Client, req *resty.Request) error {
	ctx := req.Context()
	ex := exchange{
		id:      i.nextId.Add(1),
		started: time.Now(),
		attrs:   exchangeAttrs(ctx),
	}
	req.SetContext(context.WithValue(ctx, exchangeKey, ex))

	params := append([]any{ex.id, req.Method, req.URL}, ex.attrs...)
	i.tel.ReportDebug(report_resty_request, params...)
	return nil
}

func (i restyInstrument) after(_ *resty.Client, res *resty.Response) error {
	ex, ok := res.Request.Context().Value(exchangeKey).(exchange)
	if !ok {
		i.tel.ReportWarning(report_resty_response, fmt.Errorf("request was not started through the instrumented client"), res.Request.URL)
		return nil
	}

	params := append([]any{ex.id, time.Since(ex.started).String(), res.Status()}, ex.attrs...)
	i.tel.ReportDebug(report_resty_response, params...)

	if i.output != nil && res.Request.RawRequest != nil {
		i.output.Write(strconv.FormatUint(ex.id, 10), renderExchange(res, ex.attrs))
	}
	return nil
}

func (i restyInstrument) failed(req *resty.Request, err error) {
	params := []any{err, req.Method, req.URL}
	if ex, ok := req.Context().Value(exchangeKey).(exchange); ok {
		params = append(params, time.Since(ex.started))
		params = append(params, ex.attrs...)
	}
	i.tel.ReportBroken(report_resty_response, params...)
}

func writeHeaders(out *strings.Builder, headers http.Header) {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		for _, v := range headers[k] {
			fmt.Fprintf(out, "%s: %s\n", k, v)
		}
	}
}

func requestBody(req *http.Request) string {
	if req.GetBody == nil {
		return "<no body>"
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("<body unavailable: %s>", err)
	}
	contents, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("<body unreadable: %s>", err)
	}
	return string(contents)
}

// renderExchange renders one exchange for a MessageOutput: the exchange attributes, then the
// request, then the response with its final url after redirects.
func renderExchange(res *resty.Response, attrs []any) string {
	var out strings.Builder

	out.WriteString("#### exchange\n\n")
	for i := 0; i+1 < len(attrs); i += 2 {
		fmt.Fprintf(&out, "%v: %v\n", attrs[i], attrs[i+1])
	}

	fmt.Fprintf(&out, "\n#### request\n\n%s %s\n", res.Request.Method, res.Request.URL)
	writeHeaders(&out, res.Request.RawRequest.Header)
	fmt.Fprintf(&out, "\n%s\n", requestBody(res.Request.RawRequest))

	finalUrl := res.Request.URL
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalUrl = res.RawResponse.Request.URL.String()
	}
	fmt.Fprintf(&out, "\n#### response\n\n%d %s\n", res.StatusCode(), finalUrl)
	writeHeaders(&out, res.Header())
	fmt.Fprintf(&out, "\n%s", res.String())

	return out.String()
}
