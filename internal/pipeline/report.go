package pipeline

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/trialscope/internal/model"
)

var titleCaser = cases.Title(language.English)

// renderMarkdownReport produces results/report.md from a run summary.
func renderMarkdownReport(summary *model.Summary, disease string, generatedAt time.Time) []byte {
	var b strings.Builder
	q := summary.QuantitativeSummary

	fmt.Fprintf(&b, "# Clinical Trials Analysis Report: %s\n\n", titleCaser.String(disease))
	fmt.Fprintf(&b, "Generated: %s\n\n", generatedAt.UTC().Format("2006-01-02 15:04 UTC"))

	b.WriteString("## Quantitative Summary\n\n")
	fmt.Fprintf(&b, "Total trials analyzed: %d\n", q.TotalTrials)
	fmt.Fprintf(&b, "Total unique interventions: %d\n", q.TotalInterventions)
	if q.Unresolved > 0 {
		fmt.Fprintf(&b, "Interventions without a resolved modality: %d\n", q.Unresolved)
	}
	b.WriteString("\n")

	b.WriteString("### Modalities\n\n")
	fmt.Fprintf(&b, "Number of modalities: %d\n", q.Modalities.Count)
	writeCounted(&b, q.Modalities.List, 0)
	b.WriteString("\n")

	b.WriteString("### Biological Targets\n\n")
	fmt.Fprintf(&b, "Number of targets: %d\n", q.Targets.Count)
	writeCounted(&b, q.Targets.List, 10)
	b.WriteString("\n")

	b.WriteString("### Trial Phases\n\n")
	writeCounted(&b, q.Phases, 0)
	b.WriteString("\n")

	b.WriteString("### Top Sponsors\n\n")
	writeCounted(&b, q.Sponsors.List, 10)
	b.WriteString("\n")

	b.WriteString("### Enrollment (Patients)\n\n")
	writeQuartiles(&b, q.EnrollmentQuartiles)
	b.WriteString("\n### Trial Duration (Days)\n\n")
	writeQuartiles(&b, q.DurationQuartiles)

	b.WriteString("\n## Qualitative Insights\n\n")
	b.WriteString("### Trends in Mechanism of Action and Modality\n\n")
	writeBullets(&b, summary.QualitativeInsights.ModalityTrends)
	b.WriteString("\n### Trends in Primary and Secondary Outcome Measures\n\n")
	writeBullets(&b, summary.QualitativeInsights.OutcomeTrends)
	b.WriteString("\n### Observations About Trial Length and Enrollment\n\n")
	writeBullets(&b, summary.QualitativeInsights.DesignTrends)

	if fin := summary.FinancialInsights; fin != nil {
		b.WriteString("\n## Financial and Company Analysis\n\n")
		fmt.Fprintf(&b, "Industry-sponsored trials: %d of %d.\n\n", fin.IndustryTrials, fin.IndustryTrials+fin.NonIndustryTrials)

		if len(fin.Companies) > 0 {
			b.WriteString("### Key Companies\n\n")
			b.WriteString("| Drug | Company | Tickers | Modality | Target |\n")
			b.WriteString("|------|---------|---------|----------|--------|\n")
			for _, c := range fin.Companies {
				fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
					c.Drug, c.Company, strings.Join(c.Tickers, ", "), orDash(c.Modality), orDash(c.Target))
			}
			b.WriteString("\n")
		}

		if len(fin.Landscape) > 0 {
			b.WriteString("### Competitive Landscape\n\n")
			b.WriteString("| Sponsor | Trials | Earliest Start |\n")
			b.WriteString("|---------|--------|----------------|\n")
			for i, r := range fin.Landscape {
				if i >= 15 {
					fmt.Fprintf(&b, "\n... and %d more sponsors\n", len(fin.Landscape)-i)
					break
				}
				fmt.Fprintf(&b, "| %s | %d | %s |\n", r.Sponsor, r.Trials, orDash(r.EarliestStart))
			}
		}
	}

	b.WriteString("\n## Data Sources\n\n")
	fmt.Fprintf(&b, "- Registry: %s\n", summary.DataSources.Registry)
	fmt.Fprintf(&b, "- Modality/target resolution: %s\n", strings.Join(summary.DataSources.ModalitySources, ", "))

	return []byte(b.String())
}

// renderTextReport produces a plain-text digest of the run for terminals and
// email bodies.
func renderTextReport(summary *model.Summary, disease string, generatedAt time.Time) []byte {
	var b strings.Builder
	q := summary.QuantitativeSummary

	header := fmt.Sprintf("CLINICAL TRIALS ANALYSIS: %s", strings.ToUpper(disease))
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("=", len(header)) + "\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", generatedAt.UTC().Format(time.RFC1123))

	fmt.Fprintf(&b, "Trials analyzed:      %d\n", q.TotalTrials)
	fmt.Fprintf(&b, "Unique interventions: %d\n", q.TotalInterventions)
	fmt.Fprintf(&b, "Modalities:           %d\n", q.Modalities.Count)
	fmt.Fprintf(&b, "Targets:              %d\n", q.Targets.Count)
	fmt.Fprintf(&b, "Sponsors:             %d\n", q.Sponsors.Count)
	if q.Unresolved > 0 {
		fmt.Fprintf(&b, "Unresolved:           %d\n", q.Unresolved)
	}
	b.WriteString("\n")

	if med := q.EnrollmentQuartiles.Median; med != nil {
		fmt.Fprintf(&b, "Median enrollment: %.0f participants\n", *med)
	}
	if med := q.DurationQuartiles.Median; med != nil {
		fmt.Fprintf(&b, "Median duration:   %.0f days\n", *med)
	}

	insights := make([]string, 0)
	insights = append(insights, summary.QualitativeInsights.ModalityTrends...)
	insights = append(insights, summary.QualitativeInsights.OutcomeTrends...)
	insights = append(insights, summary.QualitativeInsights.DesignTrends...)
	if len(insights) > 0 {
		b.WriteString("\nKey observations:\n")
		for _, line := range insights {
			b.WriteString("  * " + line + "\n")
		}
	}

	if fin := summary.FinancialInsights; fin != nil && len(fin.Landscape) > 0 {
		b.WriteString("\nTop sponsors by trial count:\n")
		for i, r := range fin.Landscape {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&b, "  %d. %s (%d trials)\n", i+1, r.Sponsor, r.Trials)
		}
	}

	return []byte(b.String())
}

func writeCounted(b *strings.Builder, freq map[string]int, limit int) {
	keys := sortedByCount(freq)
	for i, k := range keys {
		if limit > 0 && i >= limit {
			fmt.Fprintf(b, "- ... and %d more\n", len(keys)-i)
			return
		}
		fmt.Fprintf(b, "- %s: %d\n", k, freq[k])
	}
}

func writeQuartiles(b *strings.Builder, q model.Quartiles) {
	fmt.Fprintf(b, "- Minimum: %s\n", formatQuartile(q.Min))
	fmt.Fprintf(b, "- Q1: %s\n", formatQuartile(q.Q1))
	fmt.Fprintf(b, "- Median: %s\n", formatQuartile(q.Median))
	fmt.Fprintf(b, "- Q3: %s\n", formatQuartile(q.Q3))
	fmt.Fprintf(b, "- Maximum: %s\n", formatQuartile(q.Max))
}

func formatQuartile(v *float64) string {
	if v == nil {
		return "n/a"
	}
	if *v == float64(int64(*v)) {
		return fmt.Sprintf("%.0f", *v)
	}
	return fmt.Sprintf("%.1f", *v)
}

func writeBullets(b *strings.Builder, lines []string) {
	if len(lines) == 0 {
		b.WriteString("- No clear trend in the analyzed period.\n")
		return
	}
	for _, line := range lines {
		b.WriteString("- " + line + "\n")
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
