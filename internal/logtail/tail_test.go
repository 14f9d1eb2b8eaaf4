package logtail

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestLast(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	var b strings.Builder
	for i := 1; i <= 2000; i++ {
		fmt.Fprintf(&b, "line %04d entry=06:15 exit=0\n", i)
	}
	if err := afero.WriteFile(fs, "/log/sk.log", []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Last(fs, "/log/sk.log", 3)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(got) != 3 || !strings.HasPrefix(got[0], "line 1998") || !strings.HasPrefix(got[2], "line 2000") {
		t.Fatalf("got %q", got)
	}

	all, _ := Last(fs, "/log/sk.log", 5000)
	if len(all) != 2000 {
		t.Fatalf("expected all 2000 lines, got %d", len(all))
	}

	none, err := Last(fs, "/log/missing.log", 10)
	if err != nil || len(none) != 0 {
		t.Fatalf("missing file: %v %v", none, err)
	}
}

func TestFollow(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "sk.log")
	if err := os.WriteFile(path, []byte("old\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan error, 1)
	go func() {
		done <- Follower{Path: path, Poll: 50 * time.Millisecond}.Follow(ctx, func(line string) {
			mu.Lock()
			got = append(got, line)
			n := len(got)
			mu.Unlock()
			if n == 2 {
				cancel()
			}
		})
	}()

	time.Sleep(150 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("new one\nnew ")
	_, _ = f.WriteString("two\n")
	_ = f.Close()

	if err := <-done; err != nil {
		t.Fatalf("Follow: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(got, "|") != "new one|new two" {
		t.Fatalf("got %q", got)
	}
}
