//go:build unix

package resolve

import (
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

func isExecutable(fs afero.Fs, path string) bool {
	fi, err := fs.Stat(path)
	if err != nil || fi.IsDir() {
		return false
	}
	if _, ok := fs.(*afero.OsFs); ok {
		return unix.Access(path, unix.X_OK) == nil
	}
	return fi.Mode().Perm()&0o111 != 0
}
