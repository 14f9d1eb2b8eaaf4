package platform

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// stage is a private scratch directory for descriptors awaiting validation.
// remove must run on every exit path.
type stage struct {
	fs  afero.Fs
	dir string
}

func newStage(fs afero.Fs, parent string) (*stage, error) {
	if parent != "" {
		if err := fs.MkdirAll(parent, 0o700); err != nil {
			return nil, err
		}
	}
	dir, err := afero.TempDir(fs, parent, "sessionkeeper-stage-")
	if err != nil {
		return nil, err
	}
	return &stage{fs: fs, dir: dir}, nil
}

func (s *stage) write(name string, data []byte, perm os.FileMode) (string, error) {
	p := filepath.Join(s.dir, name)
	if err := s.fs.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return "", err
	}
	if err := afero.WriteFile(s.fs, p, data, perm); err != nil {
		return "", err
	}
	return p, nil
}

func (s *stage) remove() error {
	if s == nil || s.dir == "" {
		return nil
	}
	return s.fs.RemoveAll(s.dir)
}

// copyFile installs src at dst with perm, replacing dst.
func copyFile(fs afero.Fs, src, dst string, perm os.FileMode) error {
	b, err := afero.ReadFile(fs, src)
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp := dst + ".tmp"
	if err := afero.WriteFile(fs, tmp, b, perm); err != nil {
		return err
	}
	if err := fs.Rename(tmp, dst); err != nil {
		_ = fs.Remove(tmp)
		return err
	}
	return nil
}

func fileExists(fs afero.Fs, p string) bool {
	fi, err := fs.Stat(p)
	return err == nil && !fi.IsDir()
}
