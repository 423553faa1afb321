package ctgov

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/trialscope/internal/model"
	"github.com/sells-group/trialscope/internal/resilience"
)

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }
}

func testRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

// wireStudy builds a minimal interventional industry study payload.
func wireStudy(nctID, sponsorClass, startDate string, interventions ...map[string]string) map[string]any {
	ivs := make([]any, 0, len(interventions))
	for _, iv := range interventions {
		ivs = append(ivs, iv)
	}
	return map[string]any{
		"protocolSection": map[string]any{
			"identificationModule": map[string]any{"nctId": nctID, "briefTitle": "Study " + nctID},
			"statusModule": map[string]any{
				"overallStatus":         "COMPLETED",
				"startDateStruct":       map[string]any{"date": startDate},
				"completionDateStruct":  map[string]any{"date": "2025-06-01"},
			},
			"designModule": map[string]any{
				"studyType":      "INTERVENTIONAL",
				"phases":         []string{"PHASE3"},
				"enrollmentInfo": map[string]any{"count": 250},
			},
			"sponsorCollaboratorsModule": map[string]any{
				"leadSponsor": map[string]any{"name": "Acme Pharma", "class": sponsorClass},
			},
			"conditionsModule": map[string]any{"conditions": []string{"Hypercholesterolemia"}},
			"armsInterventionsModule": map[string]any{"interventions": ivs},
			"outcomesModule": map[string]any{
				"primaryOutcomes": []any{map[string]any{"measure": "LDL-C change"}},
			},
		},
	}
}

func drug(name string) map[string]string {
	return map[string]string{"type": "DRUG", "name": name}
}

func TestFetchTrials_Paginates(t *testing.T) {
	var pages atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages.Add(1)
		token := r.URL.Query().Get("pageToken")
		resp := map[string]any{}
		switch token {
		case "":
			resp["studies"] = []any{wireStudy("NCT001", "INDUSTRY", "2024-01-01", drug("Drug A"))}
			resp["nextPageToken"] = "page2"
		case "page2":
			resp["studies"] = []any{wireStudy("NCT002", "INDUSTRY", "2024-02-01", drug("Drug B"))}
		default:
			t.Errorf("unexpected page token %q", token)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000), WithRetry(testRetry()), WithClock(fixedClock()))
	trials, err := c.FetchTrials(context.Background(), Query{Disease: "hypercholesterolemia", YearsBack: 10})

	require.NoError(t, err)
	require.Len(t, trials, 2)
	assert.Equal(t, "NCT001", trials[0].NCTID)
	assert.Equal(t, "NCT002", trials[1].NCTID)
	assert.Equal(t, int32(2), pages.Load())
}

func TestFetchTrials_StopsAtCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		studies := make([]any, 0, 10)
		for i := 0; i < 10; i++ {
			studies = append(studies, wireStudy(fmt.Sprintf("NCT%03d", i), "INDUSTRY", "2024-01-01", drug("Drug")))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"studies": studies, "nextPageToken": "more"})
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000), WithRetry(testRetry()), WithClock(fixedClock()))
	trials, err := c.FetchTrials(context.Background(), Query{Disease: "x", MaxTrials: 5})

	require.NoError(t, err)
	assert.Len(t, trials, 5)
}

func TestFetchTrials_FiltersNonIndustryWhenRequested(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "funderType:industry", r.URL.Query().Get("aggFilters"))
		_ = json.NewEncoder(w).Encode(map[string]any{"studies": []any{
			wireStudy("NCT001", "INDUSTRY", "2024-01-01", drug("Drug A")),
			wireStudy("NCT002", "OTHER", "2024-01-01", drug("Drug B")),
		}})
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000), WithRetry(testRetry()), WithClock(fixedClock()))
	trials, err := c.FetchTrials(context.Background(), Query{Disease: "x", IndustryOnly: true})

	require.NoError(t, err)
	require.Len(t, trials, 1)
	assert.Equal(t, "NCT001", trials[0].NCTID)
	assert.Equal(t, model.SponsorClassIndustry, trials[0].SponsorClass)
}

func TestFetchTrials_FiltersOutsideDateWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"studies": []any{
			wireStudy("NCT_OLD", "INDUSTRY", "2010-01-01", drug("Old Drug")),
			wireStudy("NCT_NEW", "INDUSTRY", "2024-01-01", drug("New Drug")),
			wireStudy("NCT_NODATE", "INDUSTRY", "", drug("Undated Drug")),
		}})
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000), WithRetry(testRetry()), WithClock(fixedClock()))
	trials, err := c.FetchTrials(context.Background(), Query{Disease: "x", YearsBack: 5})

	require.NoError(t, err)
	require.Len(t, trials, 1)
	assert.Equal(t, "NCT_NEW", trials[0].NCTID)
}

func TestFetchTrials_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"studies": []any{
			wireStudy("NCT001", "INDUSTRY", "2024-01-01", drug("Drug A")),
		}})
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000), WithRetry(testRetry()), WithClock(fixedClock()))
	trials, err := c.FetchTrials(context.Background(), Query{Disease: "x"})

	require.NoError(t, err)
	assert.Len(t, trials, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchTrials_PartialResultOnMidFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageToken") == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"studies":       []any{wireStudy("NCT001", "INDUSTRY", "2024-01-01", drug("Drug A"))},
				"nextPageToken": "page2",
			})
			return
		}
		w.WriteHeader(http.StatusBadRequest) // permanent, no retry
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000), WithRetry(testRetry()), WithClock(fixedClock()))
	trials, err := c.FetchTrials(context.Background(), Query{Disease: "x"})

	var unavailable *SourceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Len(t, unavailable.Partial, 1)
	assert.Len(t, trials, 1)
}

func TestToTrialRecord_Defaults(t *testing.T) {
	s := study{}
	s.ProtocolSection.DesignModule.StudyType = "INTERVENTIONAL"
	s.ProtocolSection.IdentificationModule.NCTID = "NCT123"

	rec, ok := toTrialRecord(s, Query{}, time.Time{})
	require.True(t, ok)
	assert.Equal(t, "Not Available", rec.Phase)
	assert.Equal(t, "Unknown", rec.Sponsor)
	assert.Equal(t, model.SponsorClassOther, rec.SponsorClass)
}

func TestToTrialRecord_SkipsObservational(t *testing.T) {
	s := study{}
	s.ProtocolSection.DesignModule.StudyType = "OBSERVATIONAL"

	_, ok := toTrialRecord(s, Query{}, time.Time{})
	assert.False(t, ok)
}

func TestToTrialRecord_KeepsOnlyDrugInterventions(t *testing.T) {
	s := study{}
	s.ProtocolSection.DesignModule.StudyType = "INTERVENTIONAL"
	s.ProtocolSection.ArmsInterventionsModule.Interventions = []intervention{
		{Type: "DRUG", Name: "Drug A"},
		{Type: "DEVICE", Name: "Stent"},
		{Type: "DRUG", Name: ""},
	}

	rec, ok := toTrialRecord(s, Query{}, time.Time{})
	require.True(t, ok)
	require.Len(t, rec.Interventions, 1)
	assert.Equal(t, "Drug A", rec.Interventions[0].Name)
}

func TestToTrialRecord_DurationComputed(t *testing.T) {
	s := study{}
	s.ProtocolSection.DesignModule.StudyType = "INTERVENTIONAL"
	s.ProtocolSection.StatusModule.StartDateStruct.Date = "2024-01-01"
	s.ProtocolSection.StatusModule.CompletionDateStruct.Date = "2024-12-31"

	rec, ok := toTrialRecord(s, Query{}, time.Time{})
	require.True(t, ok)
	assert.Equal(t, 365, rec.DurationDays)
}
