package model

// CountedSet is a value-frequency map with its cardinality, matching the
// summary.json schema.
type CountedSet struct {
	Count int            `json:"count"`
	List  map[string]int `json:"list"`
}

// NewCountedSet wraps a frequency map. A nil map yields an empty (not null)
// list so the JSON schema stays stable.
func NewCountedSet(list map[string]int) CountedSet {
	if list == nil {
		list = map[string]int{}
	}
	return CountedSet{Count: len(list), List: list}
}

// Quartiles summarizes a numeric distribution. Fields are pointers so an
// empty distribution serializes as nulls rather than zeroes.
type Quartiles struct {
	Min    *float64 `json:"min"`
	Q1     *float64 `json:"q1"`
	Median *float64 `json:"median"`
	Q3     *float64 `json:"q3"`
	Max    *float64 `json:"max"`
}

// QuantitativeSummary holds the aggregate counts for one run.
type QuantitativeSummary struct {
	TotalTrials         int            `json:"total_trials"`
	TotalInterventions  int            `json:"total_interventions"`
	Modalities          CountedSet     `json:"modalities"`
	Targets             CountedSet     `json:"targets"`
	Sponsors            CountedSet     `json:"sponsors"`
	PrimaryOutcomes     CountedSet     `json:"primary_outcomes"`
	SecondaryOutcomes   CountedSet     `json:"secondary_outcomes"`
	Phases              map[string]int `json:"phases"`
	EnrollmentQuartiles Quartiles      `json:"enrollment_quartiles"`
	DurationQuartiles   Quartiles      `json:"duration_quartiles"`
	Unresolved          int            `json:"unresolved_interventions"`
}

// QualitativeInsights holds derived trend observations.
type QualitativeInsights struct {
	ModalityTrends []string `json:"modality_trends"`
	OutcomeTrends  []string `json:"outcome_trends"`
	DesignTrends   []string `json:"design_trends"`
}

// SponsorRanking is one row of the competitive landscape, ranked by trial
// count descending with ties broken by earliest start date.
type SponsorRanking struct {
	Sponsor       string `json:"sponsor"`
	Trials        int    `json:"trials"`
	EarliestStart string `json:"earliest_start"`
}

// CompanyMapping links a drug intervention to the company developing it.
type CompanyMapping struct {
	Drug     string   `json:"drug"`
	Modality string   `json:"modality,omitempty"`
	Target   string   `json:"target,omitempty"`
	Company  string   `json:"company"`
	Tickers  []string `json:"tickers,omitempty"`
}

// FinancialSummary is the output of the optional financial analysis stage.
type FinancialSummary struct {
	SponsorCounts     map[string]int   `json:"sponsor_counts"`
	IndustryTrials    int              `json:"industry_trials"`
	NonIndustryTrials int              `json:"non_industry_trials"`
	Landscape         []SponsorRanking `json:"competitive_landscape"`
	Companies         []CompanyMapping `json:"companies,omitempty"`
}

// Summary is the full results/summary.json document.
type Summary struct {
	QuantitativeSummary QuantitativeSummary `json:"quantitative_summary"`
	QualitativeInsights QualitativeInsights `json:"qualitative_insights"`
	FinancialInsights   *FinancialSummary   `json:"financial_insights,omitempty"`
	DataSources         DataSources         `json:"data_sources"`
}

// DataSources records where the run's data came from.
type DataSources struct {
	Registry        string   `json:"registry"`
	ModalitySources []string `json:"modality_target_sources"`
}
