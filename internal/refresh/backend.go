package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"churchrank/internal/assert"
	"churchrank/internal/dataset"
	"churchrank/internal/telemetry"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_backend_fetch    = "backend.fetch"
	report_backend_contract = "backend.contract"
)

// ScrapeAllPath is where the cooperating backend serves its consolidated payload.
const ScrapeAllPath = "/api/scrape-all"

// Backend forwards the consolidated results of a cooperating backend. The extractor and
// walker are not involved, the payload is only validated.
type Backend struct {
	http *resty.Client
	tel  telemetry.API
}

func NewBackend(baseUrl string, tel telemetry.API, output telemetry.MessageOutput) (Backend, error) {
	assert.NotNil(tel)
	if baseUrl == "" {
		return Backend{}, fmt.Errorf("backend url is empty")
	}
	tel = telemetry.NewScopedAPI("refresh", tel)

	client := resty.New()
	client.SetBaseURL(strings.TrimSuffix(baseUrl, "/"))
	client.SetHeader("accept", "application/json")
	// the backend scrapes every year before answering
	client.SetTimeout(5 * time.Minute)
	telemetry.InstrumentResty(client, tel, output)

	return Backend{http: client, tel: tel}, nil
}

type backendPayload struct {
	ConsolidatedData []dataset.Entity `json:"consolidatedData"`
	Errors           []YearError      `json:"errors"`
}

// Refresh fetches the backend's dataset. The year range is decided by the backend, years is
// ignored. A successful response without usable data fails with
// ErrBackendContractViolation, the backend's per-year errors are forwarded untouched.
func (b Backend) Refresh(ctx context.Context, years []int) (Result, error) {
	ctx, span := tracer.Start(ctx, "Backend.Refresh")
	defer span.End()

	fail := func(err error) (Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	res, err := b.http.R().
		SetContext(telemetry.WithExchangeAttrs(ctx, "source", "backend")).
		Get(ScrapeAllPath)
	if err != nil {
		b.tel.ReportBroken(report_backend_fetch, err)
		return fail(fmt.Errorf("backend: %w", err))
	}
	if res.IsError() {
		b.tel.ReportBroken(report_backend_fetch, fmt.Errorf("unexpected status"), res.Status())
		return fail(fmt.Errorf("backend error: %s", res.Status()))
	}

	var payload backendPayload
	err = json.Unmarshal(res.Body(), &payload)
	if err != nil {
		b.tel.ReportBroken(report_backend_contract, err)
		return fail(fmt.Errorf("%w: decode payload: %w", ErrBackendContractViolation, err))
	}
	if len(payload.ConsolidatedData) == 0 {
		err := fmt.Errorf("%w: no data returned from backend", ErrBackendContractViolation)
		b.tel.ReportBroken(report_backend_contract, err)
		return fail(err)
	}
	err = dataset.Validate(payload.ConsolidatedData)
	if err != nil {
		b.tel.ReportBroken(report_backend_contract, err)
		return fail(fmt.Errorf("%w: %w", ErrBackendContractViolation, err))
	}

	if payload.Errors == nil {
		payload.Errors = []YearError{}
	}
	span.SetAttributes(
		attribute.Int("entities", len(payload.ConsolidatedData)),
		attribute.Int("errors", len(payload.Errors)),
	)

	return Result{
		RunId:    uuid.NewString(),
		Entities: payload.ConsolidatedData,
		Errors:   payload.Errors,
	}, nil
}
