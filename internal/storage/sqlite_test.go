//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"sessionkeeper/internal/platform"
	logx "sessionkeeper/pkg/logx"
)

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "state.db"), BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	h := platform.RegistrationHandle{Identity: "claude-scheduler", Platform: platform.KindSystemd, State: platform.StateRegistered, Jobs: []string{"claude-scheduler.timer"}}
	if err := st.PutHandle(ctx, h); err != nil {
		t.Fatalf("PutHandle: %v", err)
	}
	h.State = platform.StateRegistering
	if err := st.PutHandle(ctx, h); err != nil {
		t.Fatalf("PutHandle upsert: %v", err)
	}
	got, ok, err := st.GetHandle(ctx, "claude-scheduler")
	if err != nil || !ok || got.State != platform.StateRegistering {
		t.Fatalf("GetHandle = %+v, %v, %v", got, ok, err)
	}

	for _, e := range []string{"06:15", "11:15"} {
		if err := st.AppendRun(ctx, RunRecord{Entry: e, Took: 1500 * time.Millisecond}); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}
	recs, err := st.RecentRuns(ctx, 5)
	if err != nil || len(recs) != 2 || recs[0].Entry != "11:15" || recs[0].Took != 1500*time.Millisecond {
		t.Fatalf("RecentRuns = %+v, %v", recs, err)
	}

	if err := st.DeleteHandle(ctx, "claude-scheduler"); err != nil {
		t.Fatalf("DeleteHandle: %v", err)
	}
	list, err := st.ListHandles(ctx)
	if err != nil || len(list) != 0 {
		t.Fatalf("ListHandles = %v, %v", list, err)
	}
}
