package stagecache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Cache is a content-addressed memo of expensive stage outputs. Entries are
// keyed by stage name plus normalized run parameters, so a parameter change
// produces a new key rather than invalidating old entries.
type Cache struct {
	dir string
}

// New creates a cache rooted at dir, creating it if needed.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "stagecache: create dir")
	}
	return &Cache{dir: dir}, nil
}

// entry is the on-disk envelope around a cached value.
type entry struct {
	Key       string          `json:"key"`
	Timestamp time.Time       `json:"timestamp"`
	Value     json.RawMessage `json:"value"`
}

// Key derives the content address for a stage output. Params are normalized
// (sorted, stringified) so logically equal parameter sets share a key.
func Key(stage, disease string, params map[string]any) string {
	parts := make([]string, 0, len(params))
	for k, v := range params {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(parts)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s", stage, strings.ToLower(strings.TrimSpace(disease)), strings.Join(parts, "&"))
	return stage + "_" + hex.EncodeToString(h.Sum(nil))[:32]
}

// Get loads the cached value for key into out. Returns false on miss.
func (c *Cache) Get(key string, out any) (bool, error) {
	data, err := os.ReadFile(c.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "stagecache: read entry")
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		// A corrupt entry is treated as a miss; the stage recomputes and
		// overwrites it.
		zap.L().Warn("stagecache: discarding corrupt entry", zap.String("key", key), zap.Error(err))
		return false, nil
	}
	if err := json.Unmarshal(e.Value, out); err != nil {
		zap.L().Warn("stagecache: discarding unreadable value", zap.String("key", key), zap.Error(err))
		return false, nil
	}

	zap.L().Debug("stagecache: hit", zap.String("key", key))
	return true, nil
}

// Set stores a stage output under key. Writes go through a temp file and
// rename, so racing duplicate writes of equal values are benign.
func (c *Cache) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return eris.Wrap(err, "stagecache: marshal value")
	}
	data, err := json.Marshal(entry{Key: key, Timestamp: time.Now().UTC(), Value: raw})
	if err != nil {
		return eris.Wrap(err, "stagecache: marshal entry")
	}

	tmp, err := os.CreateTemp(c.dir, key+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "stagecache: create temp")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return eris.Wrap(err, "stagecache: write temp")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrap(err, "stagecache: close temp")
	}
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrap(err, "stagecache: rename")
	}

	zap.L().Debug("stagecache: stored", zap.String("key", key))
	return nil
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}
