package model

import "time"

// SponsorClass distinguishes industry sponsors from everything else
// (academic, government, network, other).
type SponsorClass string

const (
	SponsorClassIndustry SponsorClass = "industry"
	SponsorClassOther    SponsorClass = "other"
)

// InterventionRef is a drug intervention as listed on a trial record.
type InterventionRef struct {
	Name        string `json:"name" csv:"name"`
	Type        string `json:"type" csv:"type"`
	Description string `json:"description,omitempty" csv:"-"`
}

// TrialRecord is one study fetched from the trials registry. Immutable once
// fetched.
type TrialRecord struct {
	NCTID             string            `json:"nct_id" csv:"nct_id"`
	Title             string            `json:"title" csv:"title"`
	Status            string            `json:"status" csv:"status"`
	Phase             string            `json:"phase" csv:"phase"`
	Sponsor           string            `json:"sponsor" csv:"sponsor"`
	SponsorClass      SponsorClass      `json:"sponsor_class" csv:"sponsor_class"`
	StartDate         string            `json:"start_date" csv:"start_date"`
	CompletionDate    string            `json:"completion_date,omitempty" csv:"completion_date"`
	DurationDays      int               `json:"duration_days,omitempty" csv:"duration_days"`
	Enrollment        int               `json:"enrollment,omitempty" csv:"enrollment"`
	Conditions        []string          `json:"conditions,omitempty" csv:"-"`
	PrimaryOutcomes   []string          `json:"primary_outcomes,omitempty" csv:"-"`
	SecondaryOutcomes []string          `json:"secondary_outcomes,omitempty" csv:"-"`
	Interventions     []InterventionRef `json:"interventions,omitempty" csv:"-"`
}

// ResolutionSource records how an intervention's modality/target was
// determined.
type ResolutionSource string

const (
	SourceAI         ResolutionSource = "ai"
	SourcePattern    ResolutionSource = "pattern"
	SourceUnresolved ResolutionSource = "unresolved"
)

// InterventionRecord is a unique drug intervention, enriched with a
// mechanism-of-action class and a biological target. Modality and Target
// stay empty until enrichment; unresolved is a valid terminal state.
type InterventionRecord struct {
	TrialID  string           `json:"trial_id" csv:"trial_id"`
	Name     string           `json:"name" csv:"name"`
	Type     string           `json:"type" csv:"type"`
	Modality string           `json:"modality,omitempty" csv:"modality"`
	Target   string           `json:"target,omitempty" csv:"target"`
	Source   ResolutionSource `json:"source" csv:"source"`
}

// registryDateLayouts covers the date formats the registry emits. Partial
// dates like "2020-01" are common on older studies.
var registryDateLayouts = []string{"2006-01-02", "2006-01", "2006"}

// ParseRegistryDate parses a registry date string, tolerating partial dates.
func ParseRegistryDate(s string) (time.Time, bool) {
	for _, layout := range registryDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
