package artifact

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/trialscope/internal/resilience"
)

type mockStore struct {
	mock.Mock
}

var _ Store = (*mockStore)(nil)

func (m *mockStore) Put(ctx context.Context, runID, path string, data []byte, contentType string) error {
	args := m.Called(ctx, runID, path, data, contentType)
	return args.Error(0)
}

func (m *mockStore) ResolveURL(runID, path string) string {
	args := m.Called(runID, path)
	return args.String(0)
}

func (m *mockStore) List(ctx context.Context, runID, dir string) ([]string, error) {
	args := m.Called(ctx, runID, dir)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func fastRetry(attempts int) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		ShouldRetry:    func(error) bool { return true },
	}
}

func TestFallbackStore_PrimarySuccess(t *testing.T) {
	primary := &mockStore{}
	backup := &mockStore{}
	primary.On("Put", mock.Anything, "run1", "a.txt", mock.Anything, "text/plain").Return(nil).Once()

	s := NewFallbackStore(primary, backup, fastRetry(1))
	require.NoError(t, s.Put(context.Background(), "run1", "a.txt", []byte("x"), "text/plain"))

	assert.Empty(t, s.Degraded("run1"))
	backup.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFallbackStore_DegradesToBackup(t *testing.T) {
	primary := &mockStore{}
	backup := &mockStore{}
	primary.On("Put", mock.Anything, "run1", "a.txt", mock.Anything, mock.Anything).
		Return(eris.New("bucket gone")).Times(2)
	backup.On("Put", mock.Anything, "run1", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	s := NewFallbackStore(primary, backup, fastRetry(2))
	require.NoError(t, s.Put(context.Background(), "run1", "a.txt", []byte("x"), "text/plain"))

	assert.Contains(t, s.Degraded("run1"), "cloud storage unavailable")

	// Subsequent writes for the degraded run skip the primary entirely.
	require.NoError(t, s.Put(context.Background(), "run1", "b.txt", []byte("y"), "text/plain"))
	primary.AssertNumberOfCalls(t, "Put", 2)
}

func TestFallbackStore_DegradationIsPerRun(t *testing.T) {
	primary := &mockStore{}
	backup := &mockStore{}
	primary.On("Put", mock.Anything, "run1", mock.Anything, mock.Anything, mock.Anything).
		Return(eris.New("boom"))
	primary.On("Put", mock.Anything, "run2", mock.Anything, mock.Anything, mock.Anything).
		Return(nil)
	backup.On("Put", mock.Anything, "run1", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	s := NewFallbackStore(primary, backup, fastRetry(1))
	require.NoError(t, s.Put(context.Background(), "run1", "a.txt", nil, ""))
	require.NoError(t, s.Put(context.Background(), "run2", "a.txt", nil, ""))

	assert.NotEmpty(t, s.Degraded("run1"))
	assert.Empty(t, s.Degraded("run2"))
}

func TestFallbackStore_BothFailIsUnavailable(t *testing.T) {
	primary := &mockStore{}
	backup := &mockStore{}
	primary.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(eris.New("cloud down"))
	backup.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(eris.New("disk full"))

	s := NewFallbackStore(primary, backup, fastRetry(1))
	err := s.Put(context.Background(), "run1", "a.txt", nil, "")

	var unavailable *StorageUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "a.txt", unavailable.Path)
}

func TestFallbackStore_ResolveURLFollowsDegradation(t *testing.T) {
	primary := &mockStore{}
	backup := &mockStore{}
	primary.On("Put", mock.Anything, "run1", mock.Anything, mock.Anything, mock.Anything).
		Return(eris.New("boom"))
	backup.On("Put", mock.Anything, "run1", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	primary.On("ResolveURL", "run2", "a.txt").Return("https://bucket/run2/a.txt")
	backup.On("ResolveURL", "run1", "a.txt").Return("/files/run1/a.txt")

	s := NewFallbackStore(primary, backup, fastRetry(1))
	require.NoError(t, s.Put(context.Background(), "run1", "a.txt", nil, ""))

	assert.Equal(t, "/files/run1/a.txt", s.ResolveURL("run1", "a.txt"))
	assert.Equal(t, "https://bucket/run2/a.txt", s.ResolveURL("run2", "a.txt"))
}
