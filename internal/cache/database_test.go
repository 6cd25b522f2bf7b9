package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/notely/internal/database/testutil"
	"github.com/charlesng35/notely/internal/models"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newDatabaseStore(t *testing.T) (*DatabaseStore, *fakeClock) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewDatabaseStore(db, WithDatabaseClock(clock.Now)), clock
}

func TestNewDatabaseStoreNil(t *testing.T) {
	require.Nil(t, NewDatabaseStore(nil))

	var store *DatabaseStore
	_, _, err := store.IncrementWithTTL(context.Background(), "k", time.Minute)
	require.Error(t, err)
}

func TestDatabaseStoreIncrementFixedWindow(t *testing.T) {
	store, clock := newDatabaseStore(t)
	ctx := context.Background()

	count, ttl, err := store.IncrementWithTTL(ctx, "rl:login:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, time.Minute, ttl)

	clock.Advance(20 * time.Second)
	count, ttl, err = store.IncrementWithTTL(ctx, "rl:login:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
	require.Equal(t, 40*time.Second, ttl, "window must not slide on later increments")

	clock.Advance(41 * time.Second)
	count, ttl, err = store.IncrementWithTTL(ctx, "rl:login:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, time.Minute, ttl)
}

func TestDatabaseStoreSetGetDelete(t *testing.T) {
	store, clock := newDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v1"), time.Minute))
	require.NoError(t, store.Set(ctx, "k", []byte("v2"), time.Minute))

	value, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v2"), value)

	clock.Advance(2 * time.Minute)
	_, ok, err = store.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, "persist", []byte("x"), 0))
	require.NoError(t, store.Delete(ctx, "persist"))
	_, ok, err = store.Get(ctx, "persist")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDatabaseStorePurgeExpired(t *testing.T) {
	store, clock := newDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", []byte("1"), time.Second))
	require.NoError(t, store.Set(ctx, "long", []byte("1"), time.Hour))
	require.NoError(t, store.Set(ctx, "forever", []byte("1"), 0))

	clock.Advance(time.Minute)
	removed, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var remaining int64
	require.NoError(t, store.db.Model(&models.CacheEntry{}).Count(&remaining).Error)
	require.EqualValues(t, 2, remaining)
}

func TestDatabaseStoreIncrementRejectsCorruptCounter(t *testing.T) {
	store, _ := newDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "rl:signup:5.6.7.8", []byte("not-a-number"), time.Minute))

	_, _, err := store.IncrementWithTTL(ctx, "rl:signup:5.6.7.8", time.Minute)
	require.ErrorContains(t, err, "non-numeric")

	value, found, err := store.Get(ctx, "rl:signup:5.6.7.8")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "not-a-number", string(value))
}

func TestDatabaseStoreIncrementCountsOnTopOfConcurrentInsert(t *testing.T) {
	store, clock := newDatabaseStore(t)
	ctx := context.Background()
	key := "rl:verify:9.9.9.9"

	// Insert the key from inside the transaction after the initial lookup missed,
	// as a competing first increment would.
	inserted := false
	err := store.db.Callback().Create().Before("gorm:create").Register("test:competing_insert", func(tx *gorm.DB) {
		if inserted {
			return
		}
		inserted = true
		tx.Session(&gorm.Session{NewDB: true}).Create(&models.CacheEntry{
			Key:       key,
			Value:     []byte("1"),
			ExpiresAt: clock.Now().Add(time.Minute),
		})
	})
	require.NoError(t, err)

	count, ttl, err := store.IncrementWithTTL(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, inserted)
	require.EqualValues(t, 2, count)
	require.Equal(t, time.Minute, ttl)

	count, _, err = store.IncrementWithTTL(ctx, key, time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 3, count)
}
