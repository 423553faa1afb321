package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/trialscope/internal/model"
)

func TestValidateParams(t *testing.T) {
	valid := model.RunParams{Disease: "hypercholesterolemia", MaxTrials: 100, YearsBack: 10}

	tests := []struct {
		name    string
		mutate  func(*model.RunParams)
		wantErr string
	}{
		{"valid", func(p *model.RunParams) {}, ""},
		{"min bounds", func(p *model.RunParams) { p.MaxTrials = 5; p.YearsBack = 1 }, ""},
		{"max bounds", func(p *model.RunParams) { p.MaxTrials = 500; p.YearsBack = 30 }, ""},
		{"missing disease", func(p *model.RunParams) { p.Disease = "" }, "disease is required"},
		{"too few trials", func(p *model.RunParams) { p.MaxTrials = 4 }, "max_trials must be between 5 and 500"},
		{"too many trials", func(p *model.RunParams) { p.MaxTrials = 501 }, "max_trials must be between 5 and 500"},
		{"years too low", func(p *model.RunParams) { p.YearsBack = 0 }, "years_back must be between 1 and 30"},
		{"years too high", func(p *model.RunParams) { p.YearsBack = 31 }, "years_back must be between 1 and 30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := validateParams(p)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
