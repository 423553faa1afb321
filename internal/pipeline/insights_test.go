package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/trialscope/internal/model"
)

// trialOn builds a dated trial carrying a single named intervention.
func trialOn(start, drug string, enrollment int) model.TrialRecord {
	return model.TrialRecord{
		StartDate:     start,
		Enrollment:    enrollment,
		Interventions: []model.InterventionRef{{Name: drug, Type: "DRUG"}},
	}
}

func TestBuildQualitativeInsights_IncreasingModalityTrend(t *testing.T) {
	// Six dated trials: antibodies only appear in the late half.
	trials := []model.TrialRecord{
		trialOn("2018-01-01", "statin-a", 0),
		trialOn("2019-01-01", "statin-b", 0),
		trialOn("2020-01-01", "statin-c", 0),
		trialOn("2023-01-01", "mab-a", 0),
		trialOn("2024-01-01", "mab-b", 0),
		trialOn("2025-01-01", "mab-c", 0),
	}
	interventions := []model.InterventionRecord{
		{Name: "statin-a", Modality: "small molecule"},
		{Name: "statin-b", Modality: "small molecule"},
		{Name: "statin-c", Modality: "small molecule"},
		{Name: "mab-a", Modality: "monoclonal antibody"},
		{Name: "mab-b", Modality: "monoclonal antibody"},
		{Name: "mab-c", Modality: "monoclonal antibody"},
	}

	got := buildQualitativeInsights(trials, interventions)
	assert.Contains(t, got.ModalityTrends, "There appears to be an increasing trend in monoclonal antibody interventions.")
	assert.Contains(t, got.ModalityTrends, "There appears to be a decreasing trend in small molecule interventions.")
}

func TestBuildQualitativeInsights_TooFewTrialsYieldNoTrends(t *testing.T) {
	trials := []model.TrialRecord{
		trialOn("2020-01-01", "a", 100),
		trialOn("2024-01-01", "b", 500),
	}
	interventions := []model.InterventionRecord{
		{Name: "a", Modality: "small molecule"},
		{Name: "b", Modality: "gene therapy"},
	}

	got := buildQualitativeInsights(trials, interventions)
	assert.Empty(t, got.ModalityTrends)
	assert.Empty(t, got.OutcomeTrends)
	assert.Empty(t, got.DesignTrends)
}

func TestBuildQualitativeInsights_UndatedTrialsIgnored(t *testing.T) {
	trials := []model.TrialRecord{
		{Interventions: []model.InterventionRef{{Name: "a"}}},
		{Interventions: []model.InterventionRef{{Name: "b"}}},
	}
	got := buildQualitativeInsights(trials, nil)
	assert.Empty(t, got.ModalityTrends)
}

func TestOutcomeTrends_BiomarkerShift(t *testing.T) {
	early := []model.TrialRecord{
		{PrimaryOutcomes: []string{"All-cause mortality"}},
	}
	late := []model.TrialRecord{
		{PrimaryOutcomes: []string{"LDL cholesterol reduction"}},
		{PrimaryOutcomes: []string{"Lipid panel change"}},
	}

	got := outcomeTrends(early, late)
	assert.Contains(t, got, "There is an increasing focus on biomarker-based outcomes over time.")
	assert.Contains(t, got, "There is a decreasing focus on clinical outcomes over time.")
}

func TestDesignTrends_EnrollmentAndDuration(t *testing.T) {
	early := []model.TrialRecord{
		{Enrollment: 100, DurationDays: 400},
		{Enrollment: 200, DurationDays: 600},
	}
	late := []model.TrialRecord{
		{Enrollment: 400, DurationDays: 300},
	}

	got := designTrends(early, late)
	assert.Contains(t, got, "Average trial enrollment has increased over time from 150.0 to 400.0 participants.")
	assert.Contains(t, got, "Average trial duration has decreased over time from 500.0 to 300.0 days.")
}

func TestDesignTrends_SkipsWhenNoData(t *testing.T) {
	early := []model.TrialRecord{{Enrollment: 0}}
	late := []model.TrialRecord{{Enrollment: 100}}
	assert.Empty(t, designTrends(early, late))
}

func TestMeanOf_IgnoresZeroes(t *testing.T) {
	trials := []model.TrialRecord{{Enrollment: 10}, {Enrollment: 0}, {Enrollment: 20}}
	avg, ok := meanOf(trials, func(t model.TrialRecord) int { return t.Enrollment })
	assert.True(t, ok)
	assert.Equal(t, 15.0, avg)

	_, ok = meanOf(nil, func(t model.TrialRecord) int { return t.Enrollment })
	assert.False(t, ok)
}
