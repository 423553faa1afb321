package ctgov

// Wire types for the v2 studies API. Only the modules the pipeline reads are
// mapped.

type studiesPage struct {
	Studies       []study `json:"studies"`
	NextPageToken string  `json:"nextPageToken"`
	TotalCount    int     `json:"totalCount"`
}

type study struct {
	ProtocolSection protocolSection `json:"protocolSection"`
}

type protocolSection struct {
	IdentificationModule       identificationModule       `json:"identificationModule"`
	StatusModule               statusModule               `json:"statusModule"`
	DesignModule               designModule               `json:"designModule"`
	SponsorCollaboratorsModule sponsorCollaboratorsModule `json:"sponsorCollaboratorsModule"`
	ConditionsModule           conditionsModule           `json:"conditionsModule"`
	ArmsInterventionsModule    armsInterventionsModule    `json:"armsInterventionsModule"`
	OutcomesModule             outcomesModule             `json:"outcomesModule"`
}

type identificationModule struct {
	NCTID      string `json:"nctId"`
	BriefTitle string `json:"briefTitle"`
}

type statusModule struct {
	OverallStatus        string     `json:"overallStatus"`
	StartDateStruct      dateStruct `json:"startDateStruct"`
	CompletionDateStruct dateStruct `json:"completionDateStruct"`
}

type dateStruct struct {
	Date string `json:"date"`
}

type designModule struct {
	StudyType      string         `json:"studyType"`
	Phases         []string       `json:"phases"`
	EnrollmentInfo enrollmentInfo `json:"enrollmentInfo"`
}

type enrollmentInfo struct {
	Count int `json:"count"`
}

type sponsorCollaboratorsModule struct {
	LeadSponsor leadSponsor `json:"leadSponsor"`
}

type leadSponsor struct {
	Name  string `json:"name"`
	Class string `json:"class"`
}

type conditionsModule struct {
	Conditions []string `json:"conditions"`
}

type armsInterventionsModule struct {
	Interventions []intervention `json:"interventions"`
}

type intervention struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

type outcomesModule struct {
	PrimaryOutcomes   []outcome `json:"primaryOutcomes"`
	SecondaryOutcomes []outcome `json:"secondaryOutcomes"`
}

type outcome struct {
	Measure string `json:"measure"`
}
