package artifact

import (
	"context"
	"strings"

	"github.com/sells-group/trialscope/pkg/gcs"
)

// CloudStore persists artifacts in an object-storage bucket under
// <runID>/<path>, serving them at their public URLs.
type CloudStore struct {
	objects gcs.ObjectStore
}

var _ Store = (*CloudStore)(nil)

// NewCloudStore wraps an object store.
func NewCloudStore(objects gcs.ObjectStore) *CloudStore {
	return &CloudStore{objects: objects}
}

func (s *CloudStore) Put(ctx context.Context, runID, path string, data []byte, contentType string) error {
	return s.objects.Upload(ctx, objectKey(runID, path), data, contentType)
}

func (s *CloudStore) ResolveURL(runID, path string) string {
	return s.objects.URL(objectKey(runID, path))
}

// List returns run-relative paths for objects under dir.
func (s *CloudStore) List(ctx context.Context, runID, dir string) ([]string, error) {
	prefix := runID + "/"
	if dir != "" {
		prefix += strings.Trim(dir, "/") + "/"
	}
	keys, err := s.objects.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, strings.TrimPrefix(key, runID+"/"))
	}
	return out, nil
}

func objectKey(runID, path string) string {
	return runID + "/" + strings.TrimLeft(path, "/")
}
