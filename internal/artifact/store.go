package artifact

import (
	"context"
	"fmt"
	"time"
)

// Store persists run artifacts and resolves them to URLs callers can hand
// out. Paths are slash-separated and relative to the run, e.g.
// "results/summary.json".
type Store interface {
	// Put writes an artifact for a run.
	Put(ctx context.Context, runID, path string, data []byte, contentType string) error
	// ResolveURL returns the URL the artifact is served at. It is purely
	// computational; the artifact must have been written already.
	ResolveURL(runID, path string) string
	// List returns artifact paths under dir for a run.
	List(ctx context.Context, runID, dir string) ([]string, error)
}

// DegradationReporter is implemented by stores that can silently downgrade
// to a backup location. A non-empty reason means artifacts for that run
// landed somewhere other than the primary.
type DegradationReporter interface {
	Degraded(runID string) string
}

// StorageUnavailableError means an artifact could not be written anywhere.
// It is fatal for the run that hit it.
type StorageUnavailableError struct {
	Path     string
	CloudErr error
	LocalErr error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("artifact: no storage available for %s (cloud: %v, local: %v)", e.Path, e.CloudErr, e.LocalErr)
}

// SelfTest writes and lists a probe artifact to verify the store works
// end to end. The probe lives under a reserved pseudo-run.
func SelfTest(ctx context.Context, s Store) error {
	const probeRun = "_selftest"
	path := fmt.Sprintf("probe-%d.txt", time.Now().UnixNano())
	if err := s.Put(ctx, probeRun, path, []byte("ok"), "text/plain"); err != nil {
		return err
	}
	_, err := s.List(ctx, probeRun, "")
	return err
}
