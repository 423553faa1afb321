package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/trialscope/internal/model"
	"github.com/sells-group/trialscope/internal/resilience"
	"github.com/sells-group/trialscope/pkg/anthropic"
)

const aiSystemPrompt = "You are an assistant with expertise in pharmacology and drug discovery."

const aiPromptTemplate = `I need information about the drug or intervention %q.
Determine:
1. The modality (e.g. small molecule, monoclonal antibody, peptide, gene therapy)
2. The primary biological target (e.g. receptor, enzyme, protein)

Respond with only a JSON object of this shape:
{"modality": "...", "target": "...", "confidence": "high|medium|low"}

Use "unknown" for values you are not sure about, with "low" confidence.`

// AIResolver asks the model for a drug's modality and target.
type AIResolver struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
	retry   resilience.RetryConfig
}

// NewAIResolver creates the AI-backed resolver. timeout bounds each
// resolution call.
func NewAIResolver(client anthropic.Client, modelID string, timeout time.Duration, retry resilience.RetryConfig) *AIResolver {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &AIResolver{client: client, model: modelID, timeout: timeout, retry: retry}
}

type aiDrugInfo struct {
	Modality   string `json:"modality"`
	Target     string `json:"target"`
	Confidence string `json:"confidence"`
}

// Resolve queries the model and parses the JSON answer. A transport failure
// or timeout surfaces as an error so the fallback resolver can take over; an
// "unknown" answer resolves to unresolved without error.
func (r *AIResolver) Resolve(ctx context.Context, name string) (Resolution, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cfg := r.retry
	cfg.OnRetry = resilience.RetryLogger("anthropic", "resolve intervention")
	resp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return r.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     r.model,
			MaxTokens: 300,
			System:    aiSystemPrompt,
			Messages: []anthropic.Message{
				{Role: "user", Content: fmt.Sprintf(aiPromptTemplate, name)},
			},
		})
	})
	if err != nil {
		return Resolution{}, eris.Wrap(err, "enrich: ai resolve")
	}

	info, err := parseDrugInfo(resp.Text())
	if err != nil {
		return Resolution{}, err
	}

	if info.Modality == "" || strings.EqualFold(info.Modality, "unknown") {
		return Unresolved(), nil
	}

	target := info.Target
	if strings.EqualFold(target, "unknown") {
		target = ""
	}
	return Resolution{
		Modality: strings.ToLower(info.Modality),
		Target:   target,
		Source:   model.SourceAI,
	}, nil
}

// parseDrugInfo extracts the first JSON object from the model's reply.
func parseDrugInfo(text string) (aiDrugInfo, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return aiDrugInfo{}, eris.Errorf("enrich: no JSON object in response: %.120s", text)
	}

	var info aiDrugInfo
	if err := json.Unmarshal([]byte(text[start:end+1]), &info); err != nil {
		return aiDrugInfo{}, eris.Wrap(err, "enrich: parse response")
	}
	return info, nil
}
