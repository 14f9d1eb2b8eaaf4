package platform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemctlUnits(t *testing.T) {
	t.Parallel()
	run := &fakeRunner{handle: func(c Cmd) (Output, error) {
		if len(c.Args) > 1 && c.Args[1] == "show" {
			return Output{Stdout: []byte("LoadState=loaded\nActiveState=active\nSubState=waiting\nNextElapseUSecRealtime=Mon 2026-10-19 21:15:00 UTC\n")}, nil
		}
		return Output{}, nil
	}}
	um := SystemctlUnits(run, true)
	ctx := context.Background()

	require.NoError(t, um.Reload(ctx))
	require.NoError(t, um.Enable(ctx, "k.timer"))
	require.NoError(t, um.Start(ctx, "k.timer"))
	st, err := um.State(ctx, "k.timer")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"systemctl --user daemon-reload",
		"systemctl --user enable k.timer",
		"systemctl --user start k.timer",
		"systemctl --user show k.timer --property=LoadState,ActiveState,SubState,NextElapseUSecRealtime",
	}, run.lines())
	assert.True(t, st.Found())
	assert.Equal(t, "waiting", st.SubState)
	assert.Equal(t, time.Date(2026, 10, 19, 21, 15, 0, 0, time.UTC), st.NextElapse.UTC())
}
