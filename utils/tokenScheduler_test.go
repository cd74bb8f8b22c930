package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	calls  int
	cutoff time.Time
	err    error
}

func (f *fakePruner) PruneTokens(_ context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	return 3, f.err
}

func TestPruneApprovalTokens(t *testing.T) {
	p := &fakePruner{}
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	pruneApprovalTokens(p, now)
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, now, p.cutoff)

	// errors are logged, never raised
	p.err = errors.New("db down")
	pruneApprovalTokens(p, now)
	assert.Equal(t, 2, p.calls)
}

func TestStartTokenPruneScheduler(t *testing.T) {
	c := cron.New()
	require.NoError(t, StartTokenPruneScheduler(c, "@hourly", &fakePruner{}))
	assert.Len(t, c.Entries(), 1)

	err := StartTokenPruneScheduler(c, "not a schedule", &fakePruner{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a schedule")
}

func TestInitializeSchedulers(t *testing.T) {
	c, err := InitializeSchedulers("*/5 * * * *", &fakePruner{})
	require.NoError(t, err)
	defer c.Stop()
	assert.Len(t, c.Entries(), 1)

	_, err = InitializeSchedulers("", &fakePruner{})
	assert.Error(t, err)
}
