package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"sessionkeeper/internal/platform"
	logx "sessionkeeper/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.handles.json (snapshot, replaced atomically)
//   - <prefix>.runs.jsonl   (append-only JSON Lines)
//
// The run journal is compacted to the newest KeepRuns records once it holds
// twice that many.
type fileStore struct {
	log logx.Logger
	fs  afero.Fs

	mu sync.Mutex

	handlesPath string
	runsPath    string
	runsFile    afero.File
	runLines    int
	keep        int
	closed      bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:         log,
		fs:          fs,
		handlesPath: prefix + ".handles.json",
		runsPath:    prefix + ".runs.jsonl",
		keep:        cfg.KeepRuns,
	}
	recs, err := s.readRuns()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	s.runLines = len(recs)

	f, err := fs.OpenFile(s.runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.runsFile = f
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.runsFile != nil {
		err := s.runsFile.Close()
		s.runsFile = nil
		return err
	}
	return nil
}

func (s *fileStore) loadHandlesLocked() (map[string]platform.RegistrationHandle, error) {
	out := map[string]platform.RegistrationHandle{}
	b, err := afero.ReadFile(s.fs, s.handlesPath)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *fileStore) saveHandlesLocked(m map[string]platform.RegistrationHandle) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.handlesPath + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, b, 0o600); err != nil {
		return err
	}
	return s.fs.Rename(tmp, s.handlesPath)
}

func (s *fileStore) PutHandle(ctx context.Context, h platform.RegistrationHandle) error {
	_ = ctx
	if h.Identity == "" {
		return errors.New("handle identity is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	m, err := s.loadHandlesLocked()
	if err != nil {
		return err
	}
	m[h.Identity] = h
	return s.saveHandlesLocked(m)
}

func (s *fileStore) GetHandle(ctx context.Context, identity string) (platform.RegistrationHandle, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return platform.RegistrationHandle{}, false, ErrClosed
	}
	m, err := s.loadHandlesLocked()
	if err != nil {
		return platform.RegistrationHandle{}, false, err
	}
	h, ok := m[identity]
	return h, ok, nil
}

func (s *fileStore) DeleteHandle(ctx context.Context, identity string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	m, err := s.loadHandlesLocked()
	if err != nil {
		return err
	}
	if _, ok := m[identity]; !ok {
		return nil
	}
	delete(m, identity)
	return s.saveHandlesLocked(m)
}

func (s *fileStore) ListHandles(ctx context.Context) ([]platform.RegistrationHandle, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	m, err := s.loadHandlesLocked()
	if err != nil {
		return nil, err
	}
	out := make([]platform.RegistrationHandle, 0, len(m))
	for _, h := range m {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.runsFile == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.runsFile).Encode(r); err != nil {
		return err
	}
	s.runLines++
	if s.keep > 0 && s.runLines >= 2*s.keep {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("run history compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	recs, err := s.readRuns()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	out := make([]RunRecord, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		out = append(out, recs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// readRuns returns the journal in write order, skipping corrupt lines.
func (s *fileStore) readRuns() ([]RunRecord, error) {
	f, err := s.fs.Open(s.runsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []RunRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r RunRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, sc.Err()
}

func (s *fileStore) compactLocked() error {
	recs, err := s.readRuns()
	if err != nil {
		return err
	}
	if len(recs) > s.keep {
		recs = recs[len(recs)-s.keep:]
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	tmp := s.runsPath + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, buf.Bytes(), 0o600); err != nil {
		return err
	}
	if err := s.runsFile.Close(); err != nil {
		return err
	}
	s.runsFile = nil
	renameErr := s.fs.Rename(tmp, s.runsPath)
	f, err := s.fs.OpenFile(s.runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	s.runsFile = f
	if renameErr != nil {
		return renameErr
	}
	s.runLines = len(recs)
	return nil
}
