package artifact

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/trialscope/internal/resilience"
)

// FallbackStore writes to a primary (cloud) store and degrades to a local
// backup when the primary fails. Once a run degrades, its remaining
// artifacts go to the backup too, so a run's files stay in one place.
type FallbackStore struct {
	primary Store
	backup  Store
	retry   resilience.RetryConfig

	mu       sync.Mutex
	degraded map[string]string // runID → reason
}

var (
	_ Store               = (*FallbackStore)(nil)
	_ DegradationReporter = (*FallbackStore)(nil)
)

// NewFallbackStore composes primary and backup stores. retry governs
// primary writes; backup writes get a single attempt.
func NewFallbackStore(primary, backup Store, retry resilience.RetryConfig) *FallbackStore {
	return &FallbackStore{
		primary:  primary,
		backup:   backup,
		retry:    retry,
		degraded: make(map[string]string),
	}
}

// Put writes the artifact, falling back to the backup store on primary
// failure. Both failing is a StorageUnavailableError.
func (s *FallbackStore) Put(ctx context.Context, runID, path string, data []byte, contentType string) error {
	if s.isDegraded(runID) {
		if err := s.backup.Put(ctx, runID, path, data, contentType); err != nil {
			return &StorageUnavailableError{Path: path, LocalErr: err}
		}
		return nil
	}

	cfg := s.retry
	cfg.OnRetry = resilience.RetryLogger("storage", "put artifact")
	primaryErr := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return s.primary.Put(ctx, runID, path, data, contentType)
	})
	if primaryErr == nil {
		return nil
	}

	zap.L().Warn("artifact: primary store failed, degrading to backup",
		zap.String("run_id", runID),
		zap.String("path", path),
		zap.Error(primaryErr),
	)
	s.markDegraded(runID, fmt.Sprintf("cloud storage unavailable, artifacts stored locally: %v", primaryErr))

	if err := s.backup.Put(ctx, runID, path, data, contentType); err != nil {
		return &StorageUnavailableError{Path: path, CloudErr: primaryErr, LocalErr: err}
	}
	return nil
}

// ResolveURL resolves against wherever the run's artifacts landed.
func (s *FallbackStore) ResolveURL(runID, path string) string {
	if s.isDegraded(runID) {
		return s.backup.ResolveURL(runID, path)
	}
	return s.primary.ResolveURL(runID, path)
}

// List lists from the store the run's artifacts landed in.
func (s *FallbackStore) List(ctx context.Context, runID, dir string) ([]string, error) {
	if s.isDegraded(runID) {
		return s.backup.List(ctx, runID, dir)
	}
	return s.primary.List(ctx, runID, dir)
}

// Degraded reports why a run's artifacts were diverted to the backup
// store, or "" if they were not.
func (s *FallbackStore) Degraded(runID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded[runID]
}

func (s *FallbackStore) isDegraded(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.degraded[runID]
	return ok
}

func (s *FallbackStore) markDegraded(runID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.degraded[runID]; !ok {
		s.degraded[runID] = reason
	}
}
