package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/trialscope/internal/model"
)

// Outcome vocabularies used to classify endpoint language. Biomarker
// endpoints track surrogate measures; clinical endpoints track events.
var (
	biomarkerTerms = []string{"ldl", "cholesterol", "lipid", "marker", "level"}
	clinicalTerms  = []string{"event", "mortality", "death", "survival", "hospitalization", "cardiovascular"}
)

// buildQualitativeInsights derives trend observations by splitting trials
// into an early and a late period (by start date) and comparing the two
// halves. Fewer than six dated trials compare the set against itself, which
// yields no trends.
func buildQualitativeInsights(trials []model.TrialRecord, interventions []model.InterventionRecord) model.QualitativeInsights {
	dated := make([]model.TrialRecord, 0, len(trials))
	for _, t := range trials {
		if t.StartDate != "" {
			dated = append(dated, t)
		}
	}
	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].StartDate < dated[j].StartDate
	})

	early, late := dated, dated
	if len(dated) > 5 {
		early = dated[:len(dated)/2]
		late = dated[len(dated)/2:]
	}

	byName := make(map[string]model.InterventionRecord, len(interventions))
	for _, iv := range interventions {
		byName[iv.Name] = iv
	}

	return model.QualitativeInsights{
		ModalityTrends: modalityTrends(early, late, byName),
		OutcomeTrends:  outcomeTrends(early, late),
		DesignTrends:   designTrends(early, late),
	}
}

func modalityTrends(early, late []model.TrialRecord, byName map[string]model.InterventionRecord) []string {
	earlyCounts := modalityCounts(early, byName)
	lateCounts := modalityCounts(late, byName)

	all := make(map[string]struct{})
	for m := range earlyCounts {
		all[m] = struct{}{}
	}
	for m := range lateCounts {
		all[m] = struct{}{}
	}

	modalities := make([]string, 0, len(all))
	for m := range all {
		modalities = append(modalities, m)
	}
	sort.Strings(modalities)

	var out []string
	for _, m := range modalities {
		switch {
		case earlyCounts[m] < lateCounts[m]:
			out = append(out, fmt.Sprintf("There appears to be an increasing trend in %s interventions.", m))
		case earlyCounts[m] > lateCounts[m]:
			out = append(out, fmt.Sprintf("There appears to be a decreasing trend in %s interventions.", m))
		}
	}
	return out
}

func modalityCounts(trials []model.TrialRecord, byName map[string]model.InterventionRecord) map[string]int {
	counts := make(map[string]int)
	for _, t := range trials {
		for _, ref := range t.Interventions {
			if ref.Name == "" {
				continue
			}
			if iv, ok := byName[ref.Name]; ok && iv.Modality != "" {
				counts[iv.Modality]++
			}
		}
	}
	return counts
}

func outcomeTrends(early, late []model.TrialRecord) []string {
	earlyBio, earlyClin := outcomeFocus(early)
	lateBio, lateClin := outcomeFocus(late)

	var out []string
	switch {
	case earlyBio < lateBio:
		out = append(out, "There is an increasing focus on biomarker-based outcomes over time.")
	case earlyBio > lateBio:
		out = append(out, "There is a decreasing focus on biomarker-based outcomes over time.")
	}
	switch {
	case earlyClin < lateClin:
		out = append(out, "There is an increasing focus on clinical outcomes over time.")
	case earlyClin > lateClin:
		out = append(out, "There is a decreasing focus on clinical outcomes over time.")
	}
	return out
}

// outcomeFocus counts primary-outcome mentions of biomarker and clinical
// vocabulary terms.
func outcomeFocus(trials []model.TrialRecord) (biomarker, clinical int) {
	for _, t := range trials {
		for _, o := range t.PrimaryOutcomes {
			lower := strings.ToLower(o)
			if lower == "" {
				continue
			}
			if containsAny(lower, biomarkerTerms) {
				biomarker++
			}
			if containsAny(lower, clinicalTerms) {
				clinical++
			}
		}
	}
	return biomarker, clinical
}

func designTrends(early, late []model.TrialRecord) []string {
	var out []string

	if eAvg, ok1 := meanOf(early, func(t model.TrialRecord) int { return t.Enrollment }); ok1 {
		if lAvg, ok2 := meanOf(late, func(t model.TrialRecord) int { return t.Enrollment }); ok2 {
			switch {
			case eAvg < lAvg:
				out = append(out, fmt.Sprintf("Average trial enrollment has increased over time from %.1f to %.1f participants.", eAvg, lAvg))
			case eAvg > lAvg:
				out = append(out, fmt.Sprintf("Average trial enrollment has decreased over time from %.1f to %.1f participants.", eAvg, lAvg))
			}
		}
	}

	if eAvg, ok1 := meanOf(early, func(t model.TrialRecord) int { return t.DurationDays }); ok1 {
		if lAvg, ok2 := meanOf(late, func(t model.TrialRecord) int { return t.DurationDays }); ok2 {
			switch {
			case eAvg < lAvg:
				out = append(out, fmt.Sprintf("Average trial duration has increased over time from %.1f to %.1f days.", eAvg, lAvg))
			case eAvg > lAvg:
				out = append(out, fmt.Sprintf("Average trial duration has decreased over time from %.1f to %.1f days.", eAvg, lAvg))
			}
		}
	}

	return out
}

// meanOf averages a positive integer field, ignoring unset (zero) values.
func meanOf(trials []model.TrialRecord, field func(model.TrialRecord) int) (float64, bool) {
	sum, n := 0, 0
	for _, t := range trials {
		if v := field(t); v > 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return float64(sum) / float64(n), true
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}
