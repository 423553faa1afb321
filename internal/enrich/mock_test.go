package enrich

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/trialscope/pkg/anthropic"
)

// --- Anthropic Mock ---

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// --- Resolver Mock ---

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, name string) (Resolution, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(Resolution), args.Error(1)
}

// --- MemoStore Mock ---

type mockMemoStore struct {
	mock.Mock
}

func (m *mockMemoStore) GetResolution(ctx context.Context, name string) (*Resolution, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Resolution), args.Error(1)
}

func (m *mockMemoStore) PutResolution(ctx context.Context, name string, res Resolution) error {
	args := m.Called(ctx, name, res)
	return args.Error(0)
}

var (
	_ anthropic.Client = (*mockAnthropicClient)(nil)
	_ Resolver         = (*mockResolver)(nil)
	_ MemoStore        = (*mockMemoStore)(nil)
)
