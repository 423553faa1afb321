package finance

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/trialscope/internal/model"
)

// Analyzer derives competitive and financial metrics from a trial set. The
// pipeline treats its failure as a warning, never an error.
type Analyzer interface {
	Analyze(ctx context.Context, trials []model.TrialRecord, interventions []model.InterventionRecord) (*model.FinancialSummary, error)
}

// LandscapeAnalyzer implements Analyzer with sponsor aggregation and a
// static drug-to-company mapping.
type LandscapeAnalyzer struct{}

// NewLandscapeAnalyzer creates the analyzer.
func NewLandscapeAnalyzer() *LandscapeAnalyzer {
	return &LandscapeAnalyzer{}
}

// companyMappings links common clinical-trial drugs to their developers.
var companyMappings = map[string]model.CompanyMapping{
	"alirocumab":               {Company: "Regeneron/Sanofi", Tickers: []string{"REGN", "SNY"}},
	"evolocumab":               {Company: "Amgen", Tickers: []string{"AMGN"}},
	"mipomersen":               {Company: "Ionis Pharmaceuticals", Tickers: []string{"IONS"}},
	"inclisiran":               {Company: "Novartis", Tickers: []string{"NVS"}},
	"bempedoic acid":           {Company: "Esperion Therapeutics", Tickers: []string{"ESPR"}},
	"rosuvastatin":             {Company: "AstraZeneca", Tickers: []string{"AZN"}},
	"ezetimibe":                {Company: "Merck", Tickers: []string{"MRK"}},
	"atorvastatin":             {Company: "Pfizer", Tickers: []string{"PFE"}},
	"simvastatin":              {Company: "Merck", Tickers: []string{"MRK"}},
	"pembrolizumab":            {Company: "Merck", Tickers: []string{"MRK"}},
	"nivolumab":                {Company: "Bristol-Myers Squibb", Tickers: []string{"BMY"}},
	"atezolizumab":             {Company: "Roche", Tickers: []string{"RHHBY"}},
	"durvalumab":               {Company: "AstraZeneca", Tickers: []string{"AZN"}},
	"avelumab":                 {Company: "Merck KGaA/Pfizer", Tickers: []string{"MKKGY", "PFE"}},
	"axicabtagene ciloleucel":  {Company: "Gilead", Tickers: []string{"GILD"}},
	"tisagenlecleucel":         {Company: "Novartis", Tickers: []string{"NVS"}},
}

// Analyze aggregates sponsor counts, the industry split, and the
// competitive-landscape ranking (trial count descending, ties broken by
// earliest start date).
func (a *LandscapeAnalyzer) Analyze(ctx context.Context, trials []model.TrialRecord, interventions []model.InterventionRecord) (*model.FinancialSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary := &model.FinancialSummary{
		SponsorCounts: make(map[string]int),
	}

	earliest := make(map[string]time.Time)
	earliestRaw := make(map[string]string)
	for _, t := range trials {
		summary.SponsorCounts[t.Sponsor]++
		if t.SponsorClass == model.SponsorClassIndustry {
			summary.IndustryTrials++
		} else {
			summary.NonIndustryTrials++
		}

		start, ok := model.ParseRegistryDate(t.StartDate)
		if !ok {
			continue
		}
		if prev, seen := earliest[t.Sponsor]; !seen || start.Before(prev) {
			earliest[t.Sponsor] = start
			earliestRaw[t.Sponsor] = t.StartDate
		}
	}

	for sponsor, count := range summary.SponsorCounts {
		summary.Landscape = append(summary.Landscape, model.SponsorRanking{
			Sponsor:       sponsor,
			Trials:        count,
			EarliestStart: earliestRaw[sponsor],
		})
	}
	sort.Slice(summary.Landscape, func(i, j int) bool {
		a, b := summary.Landscape[i], summary.Landscape[j]
		if a.Trials != b.Trials {
			return a.Trials > b.Trials
		}
		at, aok := earliest[a.Sponsor]
		bt, bok := earliest[b.Sponsor]
		if aok != bok {
			return aok // sponsors with a known start date rank first
		}
		if aok && !at.Equal(bt) {
			return at.Before(bt)
		}
		return a.Sponsor < b.Sponsor
	})

	summary.Companies = mapCompanies(interventions)

	zap.L().Info("finance: landscape computed",
		zap.Int("sponsors", len(summary.SponsorCounts)),
		zap.Int("industry_trials", summary.IndustryTrials),
		zap.Int("companies", len(summary.Companies)),
	)

	return summary, nil
}

// mapCompanies resolves interventions to companies via the static table.
// Placebo and saline arms are skipped.
func mapCompanies(interventions []model.InterventionRecord) []model.CompanyMapping {
	var out []model.CompanyMapping
	for _, iv := range interventions {
		lower := strings.ToLower(iv.Name)
		if strings.Contains(lower, "placebo") || strings.Contains(lower, "saline") {
			continue
		}
		for drug, info := range companyMappings {
			if strings.Contains(lower, drug) {
				out = append(out, model.CompanyMapping{
					Drug:     iv.Name,
					Modality: iv.Modality,
					Target:   iv.Target,
					Company:  info.Company,
					Tickers:  info.Tickers,
				})
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Drug < out[j].Drug })
	return out
}
