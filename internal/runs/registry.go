package runs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/trialscope/internal/model"
)

// ErrNotFound is returned for unknown run IDs.
var ErrNotFound = eris.New("runs: run not found")

const lockStripes = 32

// Registry tracks in-flight and finished runs. Reads return snapshots;
// all mutation goes through Update so callers never hold a reference into
// shared state. Per-run locking is striped by run ID so concurrent runs
// do not contend.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*runEntry

	stripes [lockStripes]sync.Mutex
}

type runEntry struct {
	record model.RunRecord
	done   chan struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*runEntry)}
}

// Create registers a new queued run and returns its ID.
func (r *Registry) Create(params model.RunParams) string {
	id := uuid.NewString()
	entry := &runEntry{
		record: model.RunRecord{
			ID:        id,
			Params:    params,
			Status:    model.RunStatusQueued,
			StartTime: time.Now().UTC(),
			Files:     make(map[string]string),
		},
		done: make(chan struct{}),
	}

	r.mu.Lock()
	r.runs[id] = entry
	r.mu.Unlock()
	return id
}

// Get returns a snapshot of the run.
func (r *Registry) Get(runID string) (model.RunRecord, error) {
	entry, err := r.entry(runID)
	if err != nil {
		return model.RunRecord{}, err
	}

	stripe := r.stripe(runID)
	stripe.Lock()
	defer stripe.Unlock()
	return cloneRecord(entry.record), nil
}

// List returns snapshots of all runs, newest first.
func (r *Registry) List() []model.RunRecord {
	r.mu.RLock()
	entries := make([]*runEntry, 0, len(r.runs))
	ids := make([]string, 0, len(r.runs))
	for id, e := range r.runs {
		entries = append(entries, e)
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	out := make([]model.RunRecord, 0, len(entries))
	for i, e := range entries {
		stripe := r.stripe(ids[i])
		stripe.Lock()
		out = append(out, cloneRecord(e.record))
		stripe.Unlock()
	}
	sortRecords(out)
	return out
}

// Update applies fn to the run under its stripe lock. If fn moves the run
// into a terminal status, waiters are released.
func (r *Registry) Update(runID string, fn func(*model.RunRecord)) error {
	entry, err := r.entry(runID)
	if err != nil {
		return err
	}

	stripe := r.stripe(runID)
	stripe.Lock()
	wasTerminal := entry.record.Terminal()
	fn(&entry.record)
	nowTerminal := entry.record.Terminal()
	stripe.Unlock()

	if nowTerminal && !wasTerminal {
		close(entry.done)
	}
	return nil
}

// Wait blocks until the run reaches a terminal status or ctx expires,
// then returns the final snapshot.
func (r *Registry) Wait(ctx context.Context, runID string) (model.RunRecord, error) {
	entry, err := r.entry(runID)
	if err != nil {
		return model.RunRecord{}, err
	}

	select {
	case <-entry.done:
		return r.Get(runID)
	case <-ctx.Done():
		return model.RunRecord{}, ctx.Err()
	}
}

func (r *Registry) entry(runID string) (*runEntry, error) {
	r.mu.RLock()
	entry, ok := r.runs[runID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return entry, nil
}

func (r *Registry) stripe(runID string) *sync.Mutex {
	var sum uint32
	for i := 0; i < len(runID); i++ {
		sum = sum*31 + uint32(runID[i])
	}
	return &r.stripes[sum%lockStripes]
}

// cloneRecord deep-copies the mutable fields of a record.
func cloneRecord(rec model.RunRecord) model.RunRecord {
	out := rec
	if rec.EndTime != nil {
		t := *rec.EndTime
		out.EndTime = &t
	}
	out.Warnings = append([]string(nil), rec.Warnings...)
	out.Files = make(map[string]string, len(rec.Files))
	for k, v := range rec.Files {
		out.Files[k] = v
	}
	return out
}

func sortRecords(recs []model.RunRecord) {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].StartTime.After(recs[j].StartTime)
	})
}
