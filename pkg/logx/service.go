package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
	// Plain writes uncoloured console lines instead of JSON.
	Plain bool
	// Fs defaults to the OS filesystem.
	Fs afero.Fs
}

// Service owns the sinks behind its loggers. Loggers taken from it follow
// later Apply calls.
type Service struct {
	mu   sync.RWMutex
	zl   zerolog.Logger
	file afero.File
}

// New applies cfg and returns the service with its root logger. A file sink
// that cannot be opened is reported on stderr and console logging is used.
func New(cfg Config) (*Service, Logger) {
	s := &Service{}
	if err := s.Apply(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "logx: %v\n", err)
	}
	return s, Logger{svc: s}
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) current() zerolog.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zl
}

// Apply replaces the sinks and level.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	var (
		writers []io.Writer
		openErr error
	)
	if cfg.Console {
		writers = append(writers, consoleWriter(os.Stderr, true))
	}
	if cfg.File.Enabled {
		f, err := openAppend(cfg.File)
		if err != nil {
			openErr = err
		} else {
			s.file = f
			if cfg.File.Plain {
				writers = append(writers, consoleWriter(zerolog.SyncWriter(f), true))
			} else {
				writers = append(writers, zerolog.SyncWriter(f))
			}
		}
	}
	if len(writers) == 0 {
		writers = append(writers, consoleWriter(os.Stderr, true))
	}

	s.zl = zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
	return openErr
}

func openAppend(fc FileConfig) (afero.File, error) {
	fs := fc.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	path := strings.TrimSpace(fc.Path)
	if path == "" {
		return nil, fmt.Errorf("log file path is empty")
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir for %q: %w", path, err)
	}
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", path, err)
	}
	return f, nil
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.zl = zerolog.Nop()
	return err
}
