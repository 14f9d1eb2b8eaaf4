package runner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"sessionkeeper/internal/notifier"
	"sessionkeeper/internal/schedule"
	"sessionkeeper/internal/storage"
	logx "sessionkeeper/pkg/logx"
)

type fakeExec struct {
	code int
	err  error
	got  []string
	pnc  bool
}

func (f *fakeExec) Exec(_ context.Context, argv []string) (int, error) {
	f.got = argv
	if f.pnc {
		panic("boom")
	}
	return f.code, f.err
}

type memStore struct {
	storage.Store
	mu   sync.Mutex
	runs []storage.RunRecord
}

func (m *memStore) AppendRun(_ context.Context, r storage.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
	return nil
}

type fakeNotify struct{ got []notifier.Notification }

func (f *fakeNotify) Notify(_ context.Context, n notifier.Notification) error {
	f.got = append(f.got, n)
	return errors.New("ignored")
}

func TestInferEntry(t *testing.T) {
	t.Parallel()
	times := schedule.Derive(schedule.MustTime("06:15")).Times()
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		at   string
		want string
	}{
		{"06:15", "06:15"},
		{"06:16", "06:15"},
		{"11:14", "06:15"},
		{"21:20", "21:15"},
		{"03:00", "21:15"},
		{"06:14", "21:15"},
	}
	for _, tc := range cases {
		now := schedule.MustTime(tc.at).On(day)
		if got := InferEntry(times, now).String(); got != tc.want {
			t.Fatalf("InferEntry(%s) = %s, want %s", tc.at, got, tc.want)
		}
	}
}

func TestRunSuccess(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ex := &fakeExec{}
	st := &memStore{}
	nt := &fakeNotify{}
	at := time.Date(2026, 10, 19, 11, 15, 2, 0, time.UTC)
	r := &Runner{Exec: ex, Store: st, Notify: nt, Log: logx.NewWriter(&buf, "info"), Now: func() time.Time { return at }}

	rec, err := r.Run(context.Background(), Job{
		Times: schedule.Derive(schedule.MustTime("06:15")).Times(),
		Argv:  []string{"/usr/local/bin/claude", "-p", "hi"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Entry != "11:15" || rec.ExitCode != 0 || !rec.OK() {
		t.Fatalf("record = %+v", rec)
	}
	if strings.Join(ex.got, " ") != "/usr/local/bin/claude -p hi" {
		t.Fatalf("argv = %v", ex.got)
	}
	if len(st.runs) != 1 || len(nt.got) != 1 {
		t.Fatalf("runs=%d notifications=%d", len(st.runs), len(nt.got))
	}
	line := buf.String()
	if strings.Count(line, "\n") != 1 || !strings.Contains(line, "entry=11:15") || !strings.Contains(line, "exit=0") {
		t.Fatalf("log line = %q", line)
	}
}

func TestRunFailureExitCode(t *testing.T) {
	t.Parallel()
	entry := schedule.MustTime("16:15")
	nt := &fakeNotify{}
	r := &Runner{Exec: &fakeExec{code: 2}, Notify: nt, Log: logx.Nop()}
	rec, err := r.Run(context.Background(), Job{Entry: &entry, Argv: []string{"claude"}})
	if err != nil {
		t.Fatalf("non-zero exit must not be an error: %v", err)
	}
	if rec.OK() || rec.ExitCode != 2 || rec.Entry != "16:15" {
		t.Fatalf("record = %+v", rec)
	}
	if len(nt.got) != 1 || nt.got[0].Priority != notifier.PriorityHigh {
		t.Fatalf("notification = %+v", nt.got)
	}
}

func TestRunStartFailureAndPanic(t *testing.T) {
	t.Parallel()
	r := &Runner{Exec: &fakeExec{err: errors.New("not found")}, Log: logx.Nop()}
	rec, err := r.Run(context.Background(), Job{Argv: []string{"missing"}})
	if err == nil || rec.ExitCode != -1 || rec.Error == "" {
		t.Fatalf("rec=%+v err=%v", rec, err)
	}

	r = &Runner{Exec: &fakeExec{pnc: true}, Log: logx.Nop()}
	rec, err = r.Run(context.Background(), Job{Argv: []string{"x"}})
	if err == nil || !strings.HasPrefix(rec.Error, "panic: boom") {
		t.Fatalf("rec=%+v err=%v", rec, err)
	}

	if _, err := r.Run(context.Background(), Job{}); !errors.Is(err, ErrNoCommand) {
		t.Fatalf("expected ErrNoCommand, got %v", err)
	}
}

func TestMessage(t *testing.T) {
	t.Parallel()
	n := Message(storage.RunRecord{Entry: "06:15", ExitCode: 1, Error: "line one\nline two"})
	if n.Text != "Session 06:15 failed: exit 1 (line one)" {
		t.Fatalf("text = %q", n.Text)
	}
}

type deadlineExec struct{ has bool }

func (d *deadlineExec) Exec(ctx context.Context, _ []string) (int, error) {
	_, d.has = ctx.Deadline()
	return 0, nil
}

func TestRunLeavesTimeoutToScheduler(t *testing.T) {
	t.Parallel()
	ex := &deadlineExec{}
	r := &Runner{Exec: ex, Log: logx.Nop()}
	if _, err := r.Run(context.Background(), Job{Argv: []string{"claude"}}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ex.has {
		t.Fatalf("no deadline expected without an explicit Timeout")
	}

	r.Timeout = time.Minute
	if _, err := r.Run(context.Background(), Job{Argv: []string{"claude"}}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !ex.has {
		t.Fatalf("explicit Timeout must bound the execution")
	}
}
