package enrich

import (
	"context"
	"regexp"
	"strings"

	"github.com/sells-group/trialscope/internal/model"
)

// patternRule maps a name pattern to a modality and, where the drug class
// implies one, a biological target.
type patternRule struct {
	modality string
	target   string
	re       *regexp.Regexp
}

// patternRules are applied in order; the first match wins. Rules with a
// concrete target come first so class-specific names beat generic keywords.
var patternRules = []patternRule{
	{modality: "small molecule", target: "HMG-CoA reductase", re: regexp.MustCompile(`statin\b`)},
	{modality: "monoclonal antibody", target: "PCSK9", re: regexp.MustCompile(`pcsk9`)},
	{modality: "small molecule", target: "CETP", re: regexp.MustCompile(`cetrapib\b`)},
	{modality: "monoclonal antibody", re: regexp.MustCompile(`(u|xi|zu|i)?mab\b`)},
	{modality: "gene therapy", re: regexp.MustCompile(`\b(gene|vector|viral|aav)\b`)},
	{modality: "cell therapy", re: regexp.MustCompile(`\b(stem|t-cell|car-t)\b|\bcell\b`)},
	{modality: "vaccine", re: regexp.MustCompile(`\b(vaccine|vax|immunization)\b`)},
	{modality: "oligonucleotide", re: regexp.MustCompile(`\b(rna|dna|nucleotide|antisense|sirna)\b`)},
	{modality: "peptide", re: regexp.MustCompile(`\b(peptide|polypeptide|protein)\b`)},
	{modality: "enzyme", re: regexp.MustCompile(`\b\w{3,}ase\b|\benzyme\b`)},
	{modality: "small molecule", re: regexp.MustCompile(`\b(small molecule|synthetic|chemical|inhibitor|antagonist|agonist)\b`)},
}

// PatternResolver classifies interventions by deterministic name rules.
// It never fails; names no rule matches resolve to unresolved.
type PatternResolver struct{}

// NewPatternResolver creates the rule-based resolver.
func NewPatternResolver() *PatternResolver {
	return &PatternResolver{}
}

// Resolve applies the ordered rule list against the lowercased name.
func (r *PatternResolver) Resolve(_ context.Context, name string) (Resolution, error) {
	lower := strings.ToLower(name)
	if lower == "" {
		return Unresolved(), nil
	}

	for _, rule := range patternRules {
		if rule.re.MatchString(lower) {
			return Resolution{
				Modality: rule.modality,
				Target:   rule.target,
				Source:   model.SourcePattern,
			}, nil
		}
	}

	return Unresolved(), nil
}
