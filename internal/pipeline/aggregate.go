package pipeline

import (
	"sort"
	"strings"

	"github.com/sells-group/trialscope/internal/model"
)

// buildQuantitativeSummary aggregates trial and intervention counts into the
// summary.json quantitative block.
func buildQuantitativeSummary(trials []model.TrialRecord, interventions []model.InterventionRecord) model.QuantitativeSummary {
	sponsors := make(map[string]int)
	phases := make(map[string]int)
	primary := make(map[string]int)
	secondary := make(map[string]int)
	var enrollments, durations []float64

	for _, t := range trials {
		if t.Sponsor != "" {
			sponsors[t.Sponsor]++
		}
		if t.Phase != "" {
			phases[t.Phase]++
		}
		for _, o := range t.PrimaryOutcomes {
			if o != "" {
				primary[o]++
			}
		}
		for _, o := range t.SecondaryOutcomes {
			if o != "" {
				secondary[o]++
			}
		}
		if t.Enrollment > 0 {
			enrollments = append(enrollments, float64(t.Enrollment))
		}
		if t.DurationDays > 0 {
			durations = append(durations, float64(t.DurationDays))
		}
	}

	modalities := make(map[string]int)
	targets := make(map[string]int)
	unresolved := 0
	for _, iv := range interventions {
		if iv.Source == model.SourceUnresolved {
			unresolved++
			continue
		}
		if iv.Modality != "" && !strings.EqualFold(iv.Modality, "unknown") {
			modalities[iv.Modality]++
		}
		if iv.Target != "" && !strings.EqualFold(iv.Target, "unknown") {
			targets[iv.Target]++
		}
	}

	return model.QuantitativeSummary{
		TotalTrials:         len(trials),
		TotalInterventions:  len(interventions),
		Modalities:          model.NewCountedSet(modalities),
		Targets:             model.NewCountedSet(targets),
		Sponsors:            model.NewCountedSet(sponsors),
		PrimaryOutcomes:     model.NewCountedSet(primary),
		SecondaryOutcomes:   model.NewCountedSet(secondary),
		Phases:              phases,
		EnrollmentQuartiles: calculateQuartiles(enrollments),
		DurationQuartiles:   calculateQuartiles(durations),
		Unresolved:          unresolved,
	}
}

// calculateQuartiles computes the five-number summary of values. An empty
// input yields all-nil quartiles, which serialize as JSON nulls.
func calculateQuartiles(values []float64) model.Quartiles {
	if len(values) == 0 {
		return model.Quartiles{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)

	minVal := sorted[0]
	maxVal := sorted[n-1]

	var median float64
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	} else {
		median = sorted[n/2]
	}

	q1, q3 := minVal, maxVal
	if n >= 4 {
		if (n/4)%2 == 0 {
			q1 = (sorted[n/4-1] + sorted[n/4]) / 2
		} else {
			q1 = sorted[n/4]
		}
		if (3 * n / 4 % 2) == 0 {
			q3 = (sorted[3*n/4-1] + sorted[3*n/4]) / 2
		} else {
			q3 = sorted[3*n/4]
		}
	}

	return model.Quartiles{
		Min:    &minVal,
		Q1:     &q1,
		Median: &median,
		Q3:     &q3,
		Max:    &maxVal,
	}
}

// sortedByCount returns keys of a frequency map ordered by count descending,
// ties broken alphabetically for stable report output.
func sortedByCount(freq map[string]int) []string {
	keys := make([]string, 0, len(freq))
	for k := range freq {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if freq[keys[i]] != freq[keys[j]] {
			return freq[keys[i]] > freq[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
