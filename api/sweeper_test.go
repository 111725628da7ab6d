package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tschnepf/workload-tracker-sub005/store/sqlite"
)

func newTestSweeper(t *testing.T) *RetentionSweeper {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sweeper := NewRetentionSweeper(store, NewRefreshBus())
	sweeper.SweepInterval = time.Hour
	return sweeper
}

func TestRetentionSweeper_StopTwiceIsSafe(t *testing.T) {
	sweeper := newTestSweeper(t)
	sweeper.Start()

	sweeper.Stop()
	sweeper.Stop()
}

func TestRetentionSweeper_StopWithoutStartIsSafe(t *testing.T) {
	sweeper := newTestSweeper(t)

	sweeper.Stop()
}
