package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/trialscope/internal/artifact"
	"github.com/sells-group/trialscope/internal/enrich"
	"github.com/sells-group/trialscope/internal/finance"
	"github.com/sells-group/trialscope/internal/model"
	"github.com/sells-group/trialscope/pkg/ctgov"
)

type mockSource struct {
	mock.Mock
}

var _ ctgov.Client = (*mockSource)(nil)

func (m *mockSource) FetchTrials(ctx context.Context, q ctgov.Query) ([]model.TrialRecord, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.TrialRecord), args.Error(1)
}

type mockResolver struct {
	mock.Mock
}

var _ enrich.Resolver = (*mockResolver)(nil)

func (m *mockResolver) Resolve(ctx context.Context, name string) (enrich.Resolution, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(enrich.Resolution), args.Error(1)
}

type mockAnalyzer struct {
	mock.Mock
}

var _ finance.Analyzer = (*mockAnalyzer)(nil)

func (m *mockAnalyzer) Analyze(ctx context.Context, trials []model.TrialRecord, interventions []model.InterventionRecord) (*model.FinancialSummary, error) {
	args := m.Called(ctx, trials, interventions)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FinancialSummary), args.Error(1)
}

type mockRenderer struct {
	mock.Mock
}

var _ ChartRenderer = (*mockRenderer)(nil)

func (m *mockRenderer) Render(ctx context.Context, spec ChartSpec) ([]byte, error) {
	args := m.Called(ctx, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// recordingHistory captures every persisted snapshot in order.
type recordingHistory struct {
	records []model.RunRecord
}

func (h *recordingHistory) SaveRun(_ context.Context, rec model.RunRecord) error {
	h.records = append(h.records, rec)
	return nil
}

// brokenStore fails every write, for exercising the storage fallback path.
type brokenStore struct {
	err error
}

var _ artifact.Store = (*brokenStore)(nil)

func (s *brokenStore) Put(context.Context, string, string, []byte, string) error { return s.err }
func (s *brokenStore) ResolveURL(runID, path string) string {
	return "https://broken.example/" + runID + "/" + path
}
func (s *brokenStore) List(context.Context, string, string) ([]string, error) { return nil, s.err }

// failAfterStore delegates the first n writes and fails every later one.
type failAfterStore struct {
	inner artifact.Store
	n     int
	err   error
	puts  int
}

var _ artifact.Store = (*failAfterStore)(nil)

func (s *failAfterStore) Put(ctx context.Context, runID, path string, data []byte, contentType string) error {
	s.puts++
	if s.puts > s.n {
		return s.err
	}
	return s.inner.Put(ctx, runID, path, data, contentType)
}

func (s *failAfterStore) ResolveURL(runID, path string) string {
	return s.inner.ResolveURL(runID, path)
}

func (s *failAfterStore) List(ctx context.Context, runID, dir string) ([]string, error) {
	return s.inner.List(ctx, runID, dir)
}
