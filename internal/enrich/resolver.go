package enrich

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/trialscope/internal/model"
)

// Resolution is the outcome of resolving one intervention name.
type Resolution struct {
	Modality string                 `json:"modality,omitempty"`
	Target   string                 `json:"target,omitempty"`
	Source   model.ResolutionSource `json:"source"`
}

// Unresolved is the terminal resolution for names nothing could classify.
func Unresolved() Resolution {
	return Resolution{Source: model.SourceUnresolved}
}

// Resolver determines modality and target for one intervention name.
type Resolver interface {
	Resolve(ctx context.Context, name string) (Resolution, error)
}

// NormalizeName canonicalizes an intervention name for memo keys.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// MemoStore persists resolutions across process restarts. Implementations
// must be safe for concurrent use.
type MemoStore interface {
	GetResolution(ctx context.Context, name string) (*Resolution, error)
	PutResolution(ctx context.Context, name string, res Resolution) error
}

// Memo is an append-only resolution cache, safe for concurrent use, with an
// optional persistent backing store.
type Memo struct {
	mu      sync.RWMutex
	entries map[string]Resolution
	persist MemoStore
}

// NewMemo creates a memo. persist may be nil for in-memory-only operation.
func NewMemo(persist MemoStore) *Memo {
	return &Memo{
		entries: make(map[string]Resolution),
		persist: persist,
	}
}

// Get looks up a normalized name, falling through to the persistent store.
func (m *Memo) Get(ctx context.Context, name string) (Resolution, bool) {
	m.mu.RLock()
	res, ok := m.entries[name]
	m.mu.RUnlock()
	if ok {
		return res, true
	}

	if m.persist != nil {
		stored, err := m.persist.GetResolution(ctx, name)
		if err != nil {
			zap.L().Warn("enrich: memo store read failed", zap.String("name", name), zap.Error(err))
		} else if stored != nil {
			m.mu.Lock()
			m.entries[name] = *stored
			m.mu.Unlock()
			return *stored, true
		}
	}

	return Resolution{}, false
}

// Put records a resolution for a normalized name.
func (m *Memo) Put(ctx context.Context, name string, res Resolution) {
	m.mu.Lock()
	m.entries[name] = res
	m.mu.Unlock()

	if m.persist != nil {
		if err := m.persist.PutResolution(ctx, name, res); err != nil {
			zap.L().Warn("enrich: memo store write failed", zap.String("name", name), zap.Error(err))
		}
	}
}

// Len returns the number of in-memory entries.
func (m *Memo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// MemoizedResolver wraps a resolver with the memo, making re-resolution of
// the same name idempotent and cheap.
type MemoizedResolver struct {
	inner Resolver
	memo  *Memo
}

// NewMemoizedResolver wraps inner with memoization.
func NewMemoizedResolver(inner Resolver, memo *Memo) *MemoizedResolver {
	if memo == nil {
		memo = NewMemo(nil)
	}
	return &MemoizedResolver{inner: inner, memo: memo}
}

// Resolve checks the memo first, resolving and recording on miss.
func (r *MemoizedResolver) Resolve(ctx context.Context, name string) (Resolution, error) {
	key := NormalizeName(name)
	if res, ok := r.memo.Get(ctx, key); ok {
		return res, nil
	}

	res, err := r.inner.Resolve(ctx, name)
	if err != nil {
		return res, err
	}
	r.memo.Put(ctx, key, res)
	return res, nil
}

// FallbackResolver tries the primary (AI) resolver and falls back to the
// secondary (pattern) resolver on failure or when the primary could not
// classify the name. It never returns an error: unresolved is a valid
// terminal state.
type FallbackResolver struct {
	primary   Resolver // may be nil when AI is disabled
	secondary Resolver
}

// NewFallbackResolver composes the two resolution strategies.
func NewFallbackResolver(primary, secondary Resolver) *FallbackResolver {
	return &FallbackResolver{primary: primary, secondary: secondary}
}

// Resolve applies primary-then-secondary resolution.
func (r *FallbackResolver) Resolve(ctx context.Context, name string) (Resolution, error) {
	if r.primary != nil {
		res, err := r.primary.Resolve(ctx, name)
		if err == nil && res.Source != model.SourceUnresolved {
			return res, nil
		}
		if err != nil {
			zap.L().Warn("enrich: ai resolution degraded, using pattern rules",
				zap.String("name", name),
				zap.Error(err),
			)
		}
	}
	return r.secondary.Resolve(ctx, name)
}
