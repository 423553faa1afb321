package pipeline

import (
	"bytes"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/trialscope/internal/model"
)

// trialCSVRow flattens a trial record for the data/clinical_trials.csv
// artifact. List fields are semicolon-joined.
type trialCSVRow struct {
	NCTID             string `csv:"nct_id"`
	Title             string `csv:"title"`
	Status            string `csv:"status"`
	Phase             string `csv:"phase"`
	Sponsor           string `csv:"sponsor"`
	SponsorClass      string `csv:"sponsor_class"`
	StartDate         string `csv:"start_date"`
	CompletionDate    string `csv:"completion_date"`
	DurationDays      int    `csv:"duration_days"`
	Enrollment        int    `csv:"enrollment"`
	Conditions        string `csv:"conditions"`
	PrimaryOutcomes   string `csv:"primary_outcomes"`
	SecondaryOutcomes string `csv:"secondary_outcomes"`
	Interventions     string `csv:"interventions"`
}

func encodeTrialsCSV(trials []model.TrialRecord) ([]byte, error) {
	rows := make([]trialCSVRow, 0, len(trials))
	for _, t := range trials {
		names := make([]string, 0, len(t.Interventions))
		for _, iv := range t.Interventions {
			names = append(names, iv.Name)
		}
		rows = append(rows, trialCSVRow{
			NCTID:             t.NCTID,
			Title:             t.Title,
			Status:            t.Status,
			Phase:             t.Phase,
			Sponsor:           t.Sponsor,
			SponsorClass:      string(t.SponsorClass),
			StartDate:         t.StartDate,
			CompletionDate:    t.CompletionDate,
			DurationDays:      t.DurationDays,
			Enrollment:        t.Enrollment,
			Conditions:        strings.Join(t.Conditions, "; "),
			PrimaryOutcomes:   strings.Join(t.PrimaryOutcomes, "; "),
			SecondaryOutcomes: strings.Join(t.SecondaryOutcomes, "; "),
			Interventions:     strings.Join(names, "; "),
		})
	}

	data, err := csvutil.Marshal(rows)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: encode trials csv")
	}
	return data, nil
}

func encodeInterventionsCSV(interventions []model.InterventionRecord) ([]byte, error) {
	data, err := csvutil.Marshal(interventions)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: encode interventions csv")
	}
	return data, nil
}

// encodeTrialsXLSX produces the spreadsheet variant of the trials table for
// analysts who work outside the CSV tooling.
func encodeTrialsXLSX(trials []model.TrialRecord, interventions []model.InterventionRecord) ([]byte, error) {
	file := xlsx.NewFile()

	trialSheet, err := file.AddSheet("Trials")
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: add trials sheet")
	}
	header := trialSheet.AddRow()
	for _, h := range []string{"NCT ID", "Title", "Status", "Phase", "Sponsor", "Sponsor Class", "Start Date", "Completion Date", "Duration (days)", "Enrollment"} {
		header.AddCell().Value = h
	}
	for _, t := range trials {
		row := trialSheet.AddRow()
		row.AddCell().Value = t.NCTID
		row.AddCell().Value = t.Title
		row.AddCell().Value = t.Status
		row.AddCell().Value = t.Phase
		row.AddCell().Value = t.Sponsor
		row.AddCell().Value = string(t.SponsorClass)
		row.AddCell().Value = t.StartDate
		row.AddCell().Value = t.CompletionDate
		row.AddCell().SetInt(t.DurationDays)
		row.AddCell().SetInt(t.Enrollment)
	}

	ivSheet, err := file.AddSheet("Interventions")
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: add interventions sheet")
	}
	header = ivSheet.AddRow()
	for _, h := range []string{"Trial", "Name", "Type", "Modality", "Target", "Source"} {
		header.AddCell().Value = h
	}
	for _, iv := range interventions {
		row := ivSheet.AddRow()
		row.AddCell().Value = iv.TrialID
		row.AddCell().Value = iv.Name
		row.AddCell().Value = iv.Type
		row.AddCell().Value = iv.Modality
		row.AddCell().Value = iv.Target
		row.AddCell().Value = string(iv.Source)
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, eris.Wrap(err, "pipeline: write xlsx")
	}
	return buf.Bytes(), nil
}

// ArtifactDisplayName turns an artifact path into the label the results API
// shows, e.g. "figures/top_sponsors.png" -> "Top Sponsors".
func ArtifactDisplayName(path string) string {
	base := path
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return titleCaser.String(base)
}
