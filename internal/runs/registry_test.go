package runs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/trialscope/internal/model"
)

func TestRegistry_CreateAssignsUniqueIDs(t *testing.T) {
	r := NewRegistry()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := r.Create(model.RunParams{Disease: "melanoma"})
		assert.False(t, seen[id], "duplicate run id %s", id)
		seen[id] = true
	}
}

func TestRegistry_GetReturnsSnapshot(t *testing.T) {
	r := NewRegistry()
	id := r.Create(model.RunParams{Disease: "melanoma"})

	rec, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusQueued, rec.Status)

	// Mutating the snapshot must not leak into the registry.
	rec.Files["x"] = "y"
	rec.Warnings = append(rec.Warnings, "w")

	again, err := r.Get(id)
	require.NoError(t, err)
	assert.Empty(t, again.Files)
	assert.Empty(t, again.Warnings)
}

func TestRegistry_GetUnknownRun(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_UpdateAppliesMutation(t *testing.T) {
	r := NewRegistry()
	id := r.Create(model.RunParams{Disease: "melanoma"})

	err := r.Update(id, func(rec *model.RunRecord) {
		rec.Status = model.RunStatusRunning
		rec.Warnings = append(rec.Warnings, "partial fetch")
	})
	require.NoError(t, err)

	rec, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, rec.Status)
	assert.Equal(t, []string{"partial fetch"}, rec.Warnings)
}

func TestRegistry_WaitReleasedOnTerminalStatus(t *testing.T) {
	r := NewRegistry()
	id := r.Create(model.RunParams{Disease: "melanoma"})

	done := make(chan model.RunRecord, 1)
	go func() {
		rec, err := r.Wait(context.Background(), id)
		if err == nil {
			done <- rec
		}
	}()

	now := time.Now().UTC()
	require.NoError(t, r.Update(id, func(rec *model.RunRecord) {
		rec.Status = model.RunStatusCompleted
		rec.EndTime = &now
	}))

	select {
	case rec := <-done:
		assert.Equal(t, model.RunStatusCompleted, rec.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after terminal update")
	}
}

func TestRegistry_WaitHonorsContext(t *testing.T) {
	r := NewRegistry()
	id := r.Create(model.RunParams{Disease: "melanoma"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Wait(ctx, id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegistry_ListNewestFirst(t *testing.T) {
	r := NewRegistry()
	first := r.Create(model.RunParams{Disease: "a"})
	time.Sleep(2 * time.Millisecond)
	second := r.Create(model.RunParams{Disease: "b"})

	records := r.List()
	require.Len(t, records, 2)
	assert.Equal(t, second, records[0].ID)
	assert.Equal(t, first, records[1].ID)
}

func TestRegistry_ConcurrentUpdates(t *testing.T) {
	r := NewRegistry()
	id := r.Create(model.RunParams{Disease: "melanoma"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Update(id, func(rec *model.RunRecord) {
				rec.Warnings = append(rec.Warnings, "w")
			})
		}()
	}
	wg.Wait()

	rec, err := r.Get(id)
	require.NoError(t, err)
	assert.Len(t, rec.Warnings, 50)
}
