package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/charlesng35/notely/internal/cache"
	testutil "github.com/charlesng35/notely/internal/database/testutil"
	"github.com/charlesng35/notely/internal/models"
)

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}

func TestCleanerSweepsExpiredCacheRows(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &fixedClock{current: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}
	store := cache.NewDatabaseStore(db, cache.WithDatabaseClock(clock.Now))

	ctx := context.Background()
	_, _, err := store.IncrementWithTTL(ctx, "ratelimit:auth:1.2.3.4|/api/auth/login", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "keep", []byte("v"), time.Hour))
	require.NoError(t, store.Set(ctx, "forever", []byte("v"), 0))

	clock.current = clock.current.Add(2 * time.Minute)

	c := NewCleaner(
		WithNow(clock.Now),
		WithCacheSweep(store, ""),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)
	require.NoError(t, c.RunOnce(ctx))

	var count int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&count).Error)
	require.Equal(t, int64(2), count)

	jobs := c.Jobs()
	require.Len(t, jobs, 1)
	require.Equal(t, CacheSweepJob, jobs[0].Job)
	require.Equal(t, 1, jobs[0].TotalRuns)
	require.Equal(t, clock.current, jobs[0].LastRunAt)
	require.Zero(t, jobs[0].ConsecutiveFailures)
}

func TestCleanerRunOnceFoldsErrors(t *testing.T) {
	errA := errors.New("a broke")
	errB := errors.New("b broke")

	c := NewCleaner(
		WithJob("a", "@hourly", func(context.Context) (int64, error) { return 0, errA }),
		WithJob("ok", "@hourly", func(context.Context) (int64, error) { return 3, nil }),
		WithJob("b", "@hourly", func(context.Context) (int64, error) { return 0, errB }),
	)

	err := c.RunOnce(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, errA)
	require.ErrorIs(t, err, errB)
	require.Len(t, multierr.Errors(err), 2)

	byName := map[string]int{}
	for _, job := range c.Jobs() {
		byName[job.Job] = job.ConsecutiveFailures
	}
	require.Equal(t, map[string]int{"a": 1, "ok": 0, "b": 1}, byName)
}

func TestCleanerWithoutJobs(t *testing.T) {
	c := NewCleaner(WithCacheSweep(nil, ""))
	require.NoError(t, c.Start())
	require.NoError(t, c.RunOnce(context.Background()))
	require.Empty(t, c.Jobs())
	<-c.Stop().Done()
}

func TestCleanerStartRejectsBadSchedule(t *testing.T) {
	c := NewCleaner(WithJob("bad", "not a schedule", func(context.Context) (int64, error) { return 0, nil }))
	require.Error(t, c.Start())
}

func TestCleanerStartSchedulesJobs(t *testing.T) {
	c := NewCleaner(WithJob("noop", "@hourly", func(context.Context) (int64, error) { return 0, nil }))
	require.NoError(t, c.Start())
	require.Error(t, c.Start())
	<-c.Stop().Done()

	jobs := c.Jobs()
	require.Len(t, jobs, 1)
	require.Zero(t, jobs[0].TotalRuns)
}
