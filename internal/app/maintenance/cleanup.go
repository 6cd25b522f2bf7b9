package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/notely/internal/monitoring/checks"
	"github.com/charlesng35/notely/pkg/logger"
)

const (
	// CacheSweepJob names the job that purges expired cache rows.
	CacheSweepJob = "cache_sweep"

	defaultCacheSweepSpec = "@every 15m"
)

// Purger removes expired entries and reports how many were deleted.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// JobFunc performs one maintenance run and returns the number of affected records.
type JobFunc func(ctx context.Context) (int64, error)

type job struct {
	name     string
	schedule string
	run      JobFunc
}

// Cleaner coordinates background maintenance tasks. Jobs run on a cron schedule
// and their outcomes are tracked for the readiness probe.
type Cleaner struct {
	cron *cron.Cron
	now  func() time.Time
	log  *zap.Logger

	jobs    []job
	mu      sync.Mutex
	status  map[string]*checks.JobStatus
	started bool
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used to stamp job runs.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithCacheSweep registers the expired cache row sweep. A nil purger (Redis
// expires keys itself) skips the job.
func WithCacheSweep(purger Purger, spec string) Option {
	return func(cleaner *Cleaner) {
		if purger == nil {
			return
		}
		if spec == "" {
			spec = defaultCacheSweepSpec
		}
		cleaner.add(CacheSweepJob, spec, purger.PurgeExpired)
	}
}

// WithJob registers an arbitrary job.
func WithJob(name, spec string, fn JobFunc) Option {
	return func(cleaner *Cleaner) {
		if name == "" || spec == "" || fn == nil {
			return
		}
		cleaner.add(name, spec, fn)
	}
}

// NewCleaner constructs a Cleaner. Without registered jobs Start is a no-op.
func NewCleaner(opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		now:    time.Now,
		log:    logger.WithModule("maintenance"),
		status: make(map[string]*checks.JobStatus),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

func (c *Cleaner) add(name, spec string, fn JobFunc) {
	c.jobs = append(c.jobs, job{name: name, schedule: spec, run: fn})
}

// Start registers jobs with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if len(c.jobs) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("maintenance: cleaner already started")
	}

	for _, j := range c.jobs {
		j := j
		if _, err := c.cron.AddFunc(j.schedule, func() {
			_ = c.runJob(context.Background(), j)
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s: %w", j.name, err)
		}
	}

	c.cron.Start()
	c.started = true
	return nil
}

// Stop halts the underlying scheduler. The returned context is done once running jobs complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every registered job sequentially and folds their errors.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs {
		errs = multierr.Append(errs, c.runJob(ctx, j))
	}
	return errs
}

// Jobs reports the last known state of each registered job.
func (c *Cleaner) Jobs() []checks.JobStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]checks.JobStatus, 0, len(c.jobs))
	for _, j := range c.jobs {
		if st, ok := c.status[j.name]; ok {
			out = append(out, *st)
			continue
		}
		out = append(out, checks.JobStatus{Job: j.name})
	}
	return out
}

func (c *Cleaner) runJob(ctx context.Context, j job) error {
	start := c.now()
	affected, err := j.run(ctx)

	c.mu.Lock()
	st, ok := c.status[j.name]
	if !ok {
		st = &checks.JobStatus{Job: j.name}
		c.status[j.name] = st
	}
	st.TotalRuns++
	st.LastRunAt = start
	if err != nil {
		st.ConsecutiveFailures++
		st.LastError = err.Error()
	} else {
		st.ConsecutiveFailures = 0
		st.LastError = ""
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
		return fmt.Errorf("%s: %w", j.name, err)
	}
	if affected > 0 {
		c.log.Info("maintenance job completed", zap.String("job", j.name), zap.Int64("affected", affected))
	}
	return nil
}
