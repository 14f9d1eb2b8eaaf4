// Package logtail reads the last lines of the job log and follows appends.
package logtail

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

const readChunk = 8 << 10

// Last returns up to n trailing lines of path. A missing file yields no lines.
func Last(fs afero.Fs, path string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	f, err := fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()

	// Read backwards until n+1 newlines are buffered.
	var buf []byte
	off := size
	for off > 0 && bytes.Count(buf, []byte{'\n'}) <= n {
		step := int64(readChunk)
		if off < step {
			step = off
		}
		off -= step
		chunk := make([]byte, step)
		if _, err := f.ReadAt(chunk, off); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		buf = append(chunk, buf...)
	}

	lines := splitLines(buf)
	if off > 0 && len(lines) > 0 {
		lines = lines[1:] // partial first line
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

func splitLines(b []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out
}

// Follower streams lines appended to Path after its current end. It copes
// with the file being created later or truncated. Poll is a fallback for
// filesystems that do not deliver events.
type Follower struct {
	Path string
	Poll time.Duration
}

// Follow calls emit for each complete new line until ctx is done.
func (fl Follower) Follow(ctx context.Context, emit func(line string)) error {
	if fl.Poll <= 0 {
		fl.Poll = 2 * time.Second
	}
	dir := filepath.Dir(fl.Path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}

	var offset int64
	if st, err := os.Stat(fl.Path); err == nil {
		offset = st.Size()
	}
	var partial []byte

	drain := func() error {
		f, err := os.Open(fl.Path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				offset = 0
				return nil
			}
			return err
		}
		defer f.Close()
		st, err := f.Stat()
		if err != nil {
			return err
		}
		if st.Size() < offset {
			offset, partial = 0, nil
		}
		if st.Size() == offset {
			return nil
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return err
		}
		b, err := io.ReadAll(f)
		if err != nil {
			return err
		}
		offset += int64(len(b))
		partial = append(partial, b...)
		for {
			i := bytes.IndexByte(partial, '\n')
			if i < 0 {
				break
			}
			emit(string(bytes.TrimRight(partial[:i], "\r")))
			partial = partial[i+1:]
		}
		return nil
	}

	tick := time.NewTicker(fl.Poll)
	defer tick.Stop()
	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == filepath.Clean(fl.Path) &&
				ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				debounce.Reset(100 * time.Millisecond)
			}
		case <-debounce.C:
			if err := drain(); err != nil {
				return err
			}
		case <-tick.C:
			if err := drain(); err != nil {
				return err
			}
		case <-w.Errors:
			// keep watching
		}
	}
}
