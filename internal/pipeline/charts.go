package pipeline

import (
	"context"
	"sort"

	"github.com/sells-group/trialscope/internal/model"
)

// ChartKind selects the plot family a renderer should draw.
type ChartKind string

const (
	ChartBar       ChartKind = "bar"
	ChartHistogram ChartKind = "histogram"
	ChartScatter   ChartKind = "scatter"
)

// ChartSpec describes one figure. Rendering to pixels happens outside the
// pipeline; a renderer turns a spec into an encoded image.
type ChartSpec struct {
	Name   string // artifact base name, e.g. "modality_distribution"
	Title  string
	Kind   ChartKind
	XLabel string
	YLabel string

	Labels []string  // bar charts
	Values []float64 // bar and histogram charts

	XValues []float64 // scatter charts
	YValues []float64
}

// ChartRenderer encodes a chart spec as a PNG. A nil renderer on the runner
// skips figure generation entirely.
type ChartRenderer interface {
	Render(ctx context.Context, spec ChartSpec) ([]byte, error)
}

// buildChartSpecs derives the run's standard figure set. Specs with no data
// are omitted rather than rendered empty.
func buildChartSpecs(trials []model.TrialRecord, summary *model.Summary) []ChartSpec {
	var specs []ChartSpec

	if spec, ok := barSpec("modality_distribution", "Distribution of Intervention Modalities",
		summary.QuantitativeSummary.Modalities.List, 0); ok {
		specs = append(specs, spec)
	}

	if spec, ok := timelineSpec(trials); ok {
		specs = append(specs, spec)
	}

	var enrollments []float64
	for _, t := range trials {
		if t.Enrollment > 0 {
			enrollments = append(enrollments, float64(t.Enrollment))
		}
	}
	if len(enrollments) > 0 {
		specs = append(specs, ChartSpec{
			Name:   "enrollment_distribution",
			Title:  "Distribution of Trial Enrollment",
			Kind:   ChartHistogram,
			XLabel: "Enrollment",
			YLabel: "Trials",
			Values: enrollments,
		})
	}

	var xs, ys []float64
	for _, t := range trials {
		if t.Enrollment > 0 && t.DurationDays > 0 {
			xs = append(xs, float64(t.DurationDays))
			ys = append(ys, float64(t.Enrollment))
		}
	}
	if len(xs) > 0 {
		specs = append(specs, ChartSpec{
			Name:    "duration_vs_enrollment",
			Title:   "Trial Duration vs. Enrollment",
			Kind:    ChartScatter,
			XLabel:  "Duration (days)",
			YLabel:  "Enrollment",
			XValues: xs,
			YValues: ys,
		})
	}

	if spec, ok := barSpec("top_sponsors", "Top 10 Trial Sponsors",
		summary.QuantitativeSummary.Sponsors.List, 10); ok {
		specs = append(specs, spec)
	}

	return specs
}

func barSpec(name, title string, freq map[string]int, limit int) (ChartSpec, bool) {
	if len(freq) == 0 {
		return ChartSpec{}, false
	}
	keys := sortedByCount(freq)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	spec := ChartSpec{Name: name, Title: title, Kind: ChartBar, YLabel: "Count"}
	for _, k := range keys {
		spec.Labels = append(spec.Labels, k)
		spec.Values = append(spec.Values, float64(freq[k]))
	}
	return spec, true
}

// timelineSpec buckets trial starts by year.
func timelineSpec(trials []model.TrialRecord) (ChartSpec, bool) {
	years := make(map[string]int)
	for _, t := range trials {
		if start, ok := model.ParseRegistryDate(t.StartDate); ok {
			years[start.Format("2006")]++
		}
	}
	if len(years) == 0 {
		return ChartSpec{}, false
	}

	keys := make([]string, 0, len(years))
	for y := range years {
		keys = append(keys, y)
	}
	sort.Strings(keys)

	spec := ChartSpec{
		Name:   "trial_timeline",
		Title:  "Distribution of Trial Start Dates",
		Kind:   ChartBar,
		XLabel: "Year",
		YLabel: "Trials started",
	}
	for _, y := range keys {
		spec.Labels = append(spec.Labels, y)
		spec.Values = append(spec.Values, float64(years[y]))
	}
	return spec, true
}
