package artifact

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// LocalStore writes artifacts to the local filesystem under
// root/<runID>/<path> and serves them via the web server's file routes.
type LocalStore struct {
	root        string
	servePrefix string
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates a store rooted at dir. servePrefix is the URL path
// the server mounts the directory under, typically "/files".
func NewLocalStore(dir, servePrefix string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "artifact: create local root")
	}
	return &LocalStore{root: dir, servePrefix: strings.TrimRight(servePrefix, "/")}, nil
}

// Root returns the directory artifacts are written under.
func (s *LocalStore) Root() string { return s.root }

// Put writes the artifact, creating intermediate directories.
func (s *LocalStore) Put(_ context.Context, runID, path string, data []byte, _ string) error {
	full, err := s.fullPath(runID, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return eris.Wrap(err, "artifact: create dir")
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return eris.Wrap(err, "artifact: write file")
	}
	return nil
}

// ResolveURL maps an artifact to its served path.
func (s *LocalStore) ResolveURL(runID, path string) string {
	return s.servePrefix + "/" + runID + "/" + path
}

// List walks the run's directory subtree and returns relative paths.
func (s *LocalStore) List(_ context.Context, runID, dir string) ([]string, error) {
	base, err := s.fullPath(runID, dir)
	if err != nil {
		return nil, err
	}
	runRoot := filepath.Join(s.root, runID)

	var out []string
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(runRoot, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "artifact: list")
	}
	return out, nil
}

// fullPath joins and validates the artifact path, rejecting traversal out
// of the run directory.
func (s *LocalStore) fullPath(runID, path string) (string, error) {
	full := filepath.Join(s.root, runID, filepath.FromSlash(path))
	runRoot := filepath.Join(s.root, runID)
	if full != runRoot && !strings.HasPrefix(full, runRoot+string(filepath.Separator)) {
		return "", eris.Errorf("artifact: path escapes run dir: %s", path)
	}
	return full, nil
}
