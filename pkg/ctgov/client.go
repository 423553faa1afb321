package ctgov

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/trialscope/internal/model"
	"github.com/sells-group/trialscope/internal/resilience"
)

// Query describes one trial search.
type Query struct {
	Disease      string
	YearsBack    int
	MaxTrials    int // 0 means unlimited
	IndustryOnly bool
}

// Client fetches trial records from the registry.
type Client interface {
	FetchTrials(ctx context.Context, q Query) ([]model.TrialRecord, error)
}

// SourceUnavailableError signals that the registry could not be reached
// after exhausting the retry budget. Partial holds whatever trials were
// fetched before the failure, so callers that tolerate partial results can
// keep them.
type SourceUnavailableError struct {
	Err     error
	Partial []model.TrialRecord
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("ctgov: registry unavailable: %v", e.Err)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

// HTTPClient implements Client against the ClinicalTrials.gov v2 studies API.
type HTTPClient struct {
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	pageSize int
	retry    resilience.RetryConfig
	now      func() time.Time
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithBaseURL overrides the registry base URL.
func WithBaseURL(u string) Option {
	return func(c *HTTPClient) { c.baseURL = u }
}

// WithPageSize sets the page size for registry pagination.
func WithPageSize(n int) Option {
	return func(c *HTTPClient) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *HTTPClient) { c.http = h }
}

// WithRateLimit sets the request rate against the registry.
func WithRateLimit(rps float64) Option {
	return func(c *HTTPClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithRetry overrides the per-page retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *HTTPClient) { c.retry = cfg }
}

// WithClock overrides the time source used for the date-window filter.
func WithClock(now func() time.Time) Option {
	return func(c *HTTPClient) { c.now = now }
}

// NewClient creates a registry client.
func NewClient(opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:  "https://clinicaltrials.gov/api/v2",
		http:     &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(2, 1),
		pageSize: 100,
		retry:    resilience.DefaultRetryConfig(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchTrials pages through the registry until the result cap is reached or
// pages run out. Industry filtering is requested server-side and re-checked
// client-side; the date window and study type are filtered client-side.
// On a page failure after retries, trials fetched so far are returned
// alongside a SourceUnavailableError.
func (c *HTTPClient) FetchTrials(ctx context.Context, q Query) ([]model.TrialRecord, error) {
	log := zap.L().With(zap.String("disease", q.Disease))
	log.Info("ctgov: fetching trials",
		zap.Int("max_trials", q.MaxTrials),
		zap.Int("years_back", q.YearsBack),
		zap.Bool("industry_only", q.IndustryOnly),
	)

	var cutoff time.Time
	if q.YearsBack > 0 {
		cutoff = c.now().AddDate(-q.YearsBack, 0, 0)
	}

	var trials []model.TrialRecord
	pageToken := ""
	for {
		page, err := c.fetchPage(ctx, q, pageToken)
		if err != nil {
			return trials, &SourceUnavailableError{Err: err, Partial: trials}
		}

		for _, study := range page.Studies {
			rec, ok := toTrialRecord(study, q, cutoff)
			if !ok {
				continue
			}
			trials = append(trials, rec)
			if q.MaxTrials > 0 && len(trials) >= q.MaxTrials {
				log.Info("ctgov: trial cap reached", zap.Int("trials", len(trials)))
				return trials, nil
			}
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	log.Info("ctgov: fetch complete", zap.Int("trials", len(trials)))
	return trials, nil
}

func (c *HTTPClient) fetchPage(ctx context.Context, q Query, pageToken string) (*studiesPage, error) {
	params := url.Values{}
	params.Set("query.cond", q.Disease)
	params.Set("pageSize", strconv.Itoa(c.pageSize))
	params.Set("format", "json")
	if q.IndustryOnly {
		params.Set("aggFilters", "funderType:industry")
	}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}
	reqURL := c.baseURL + "/studies?" + params.Encode()

	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("ctgov", "fetch page")
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*studiesPage, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "ctgov: rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "ctgov: create request")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(err, 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			err := eris.Errorf("ctgov: status %d: %s", resp.StatusCode, string(body))
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(err, resp.StatusCode)
			}
			return nil, err
		}

		var page studiesPage
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			return nil, eris.Wrap(err, "ctgov: decode page")
		}
		return &page, nil
	})
}

// toTrialRecord converts a wire study into a TrialRecord, applying the
// client-side filters. Returns false when the study is filtered out.
func toTrialRecord(s study, q Query, cutoff time.Time) (model.TrialRecord, bool) {
	proto := s.ProtocolSection

	if proto.DesignModule.StudyType != "INTERVENTIONAL" {
		return model.TrialRecord{}, false
	}

	class := model.SponsorClassOther
	if proto.SponsorCollaboratorsModule.LeadSponsor.Class == "INDUSTRY" {
		class = model.SponsorClassIndustry
	}
	if q.IndustryOnly && class != model.SponsorClassIndustry {
		return model.TrialRecord{}, false
	}

	startDate := proto.StatusModule.StartDateStruct.Date
	if !cutoff.IsZero() {
		start, ok := model.ParseRegistryDate(startDate)
		if !ok || start.Before(cutoff) {
			return model.TrialRecord{}, false
		}
	}

	rec := model.TrialRecord{
		NCTID:          proto.IdentificationModule.NCTID,
		Title:          proto.IdentificationModule.BriefTitle,
		Status:         proto.StatusModule.OverallStatus,
		Sponsor:        proto.SponsorCollaboratorsModule.LeadSponsor.Name,
		SponsorClass:   class,
		StartDate:      startDate,
		CompletionDate: proto.StatusModule.CompletionDateStruct.Date,
		Enrollment:     proto.DesignModule.EnrollmentInfo.Count,
		Conditions:     proto.ConditionsModule.Conditions,
	}
	if rec.Sponsor == "" {
		rec.Sponsor = "Unknown"
	}

	rec.Phase = "Not Available"
	if len(proto.DesignModule.Phases) > 0 {
		rec.Phase = proto.DesignModule.Phases[0]
	}

	if start, ok := model.ParseRegistryDate(rec.StartDate); ok {
		if end, ok := model.ParseRegistryDate(rec.CompletionDate); ok && end.After(start) {
			rec.DurationDays = int(end.Sub(start).Hours() / 24)
		}
	}

	for _, o := range proto.OutcomesModule.PrimaryOutcomes {
		if o.Measure != "" {
			rec.PrimaryOutcomes = append(rec.PrimaryOutcomes, o.Measure)
		}
	}
	for _, o := range proto.OutcomesModule.SecondaryOutcomes {
		if o.Measure != "" {
			rec.SecondaryOutcomes = append(rec.SecondaryOutcomes, o.Measure)
		}
	}

	for _, iv := range proto.ArmsInterventionsModule.Interventions {
		if iv.Type != "DRUG" || iv.Name == "" {
			continue
		}
		rec.Interventions = append(rec.Interventions, model.InterventionRef{
			Name:        iv.Name,
			Type:        iv.Type,
			Description: iv.Description,
		})
	}

	return rec, true
}
