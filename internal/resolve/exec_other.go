//go:build !unix

package resolve

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

func isExecutable(fs afero.Fs, path string) bool {
	fi, err := fs.Stat(path)
	if err != nil || fi.IsDir() {
		return false
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".exe", ".cmd", ".bat", ".com":
		return true
	}
	return fi.Mode().Perm()&0o111 != 0
}
