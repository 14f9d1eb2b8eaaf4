// Package resolve locates the external CLI binary and rewrites the configured
// command so the OS scheduler can run it without a login shell's PATH.
package resolve

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/spf13/afero"
)

// Resolver probes a fixed, ordered list of install locations.
type Resolver struct {
	fs      afero.Fs
	home    string
	pathEnv string
}

type Option func(*Resolver)

// WithFs replaces the filesystem (tests use afero.NewMemMapFs).
func WithFs(fs afero.Fs) Option { return func(r *Resolver) { r.fs = fs } }

// WithPathEnv sets the PATH value appended after the fixed candidates.
func WithPathEnv(p string) Option { return func(r *Resolver) { r.pathEnv = p } }

func New(home string, opts ...Option) *Resolver {
	r := &Resolver{fs: afero.NewOsFs(), home: home, pathEnv: os.Getenv("PATH")}
	for _, o := range opts {
		o(r)
	}
	return r
}

// CandidateDirs returns the probe order: user-local bins, package-manager
// global bins (newest nvm node first), Homebrew and /usr/local, system bins,
// then $PATH. Duplicates are dropped.
func (r *Resolver) CandidateDirs() []string {
	var dirs []string
	if r.home != "" {
		dirs = append(dirs,
			filepath.Join(r.home, ".local", "bin"),
			filepath.Join(r.home, ".claude", "local"),
			filepath.Join(r.home, ".npm-global", "bin"),
			filepath.Join(r.home, ".bun", "bin"),
			filepath.Join(r.home, ".volta", "bin"),
		)
		dirs = append(dirs, r.nvmBins()...)
	}
	dirs = append(dirs, "/opt/homebrew/bin", "/usr/local/bin", "/usr/bin", "/bin")
	for _, p := range filepath.SplitList(r.pathEnv) {
		if p != "" {
			dirs = append(dirs, p)
		}
	}

	seen := make(map[string]bool, len(dirs))
	out := dirs[:0]
	for _, d := range dirs {
		d = filepath.Clean(d)
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

// nvmBins lists ~/.nvm/versions/node/*/bin, newest version first.
func (r *Resolver) nvmBins() []string {
	root := filepath.Join(r.home, ".nvm", "versions", "node")
	entries, err := afero.ReadDir(r.fs, root)
	if err != nil {
		return nil
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versionLess(versions[j], versions[i]) })
	out := make([]string, 0, len(versions))
	for _, v := range versions {
		out = append(out, filepath.Join(root, v, "bin"))
	}
	return out
}

// versionLess compares "v20.19.3"-style names numerically.
func versionLess(a, b string) bool {
	pa := strings.Split(strings.TrimPrefix(a, "v"), ".")
	pb := strings.Split(strings.TrimPrefix(b, "v"), ".")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		na, ea := strconv.Atoi(pa[i])
		nb, eb := strconv.Atoi(pb[i])
		if ea != nil || eb != nil {
			if pa[i] != pb[i] {
				return pa[i] < pb[i]
			}
			continue
		}
		if na != nb {
			return na < nb
		}
	}
	return len(pa) < len(pb)
}

// Resolve returns command with its first token replaced by an absolute
// executable path. An existing absolute executable is returned unchanged.
// When nothing matches, command is returned unchanged with a *ResolutionError.
func (r *Resolver) Resolve(command string) (string, error) {
	first, rest, err := splitFirst(command)
	if err != nil {
		return command, err
	}
	if first == "" {
		return command, &ResolutionError{Name: "", Searched: nil}
	}
	if filepath.IsAbs(first) && isExecutable(r.fs, first) {
		return command, nil
	}

	name := filepath.Base(first)
	dirs := r.CandidateDirs()
	for _, d := range dirs {
		p := filepath.Join(d, name)
		if isExecutable(r.fs, p) {
			return shellescape.Quote(p) + rest, nil
		}
	}
	return command, &ResolutionError{Name: name, Searched: dirs}
}
