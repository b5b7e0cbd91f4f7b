package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"RegionMetrics/internal/ports"
)

// CronScheduler runs a job on a cron expression. Five fields are minute
// precision; six fields add a leading seconds column.
type CronScheduler struct {
	mu       sync.Mutex
	spec     string
	location *time.Location
	cron     *gocron.Scheduler
	stopCh   chan struct{}
	doneCh   chan struct{}
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler for spec evaluated in loc (UTC when nil).
func NewCronScheduler(spec string, loc *time.Location) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &CronScheduler{spec: strings.TrimSpace(spec), location: loc}
}

// Start registers the job and begins ticking. Overlapping runs are skipped
// while the previous one is still executing.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}

	s := gocron.NewScheduler(c.location)
	s.SingletonModeAll()

	var err error
	if len(strings.Fields(c.spec)) == 6 {
		_, err = s.CronWithSeconds(c.spec).Do(func() { job(time.Now().In(c.location)) })
	} else {
		_, err = s.Cron(c.spec).Do(func() { job(time.Now().In(c.location)) })
	}
	if err != nil {
		return fmt.Errorf("schedule %q: %w", c.spec, err)
	}

	s.StartAsync()
	c.cron = s
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})

	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		select {
		case <-ctx.Done():
			_ = c.Stop(context.Background())
		case <-stop:
		}
	}(c.stopCh, c.doneCh)

	return nil
}

// Stop halts the scheduler; running jobs are allowed to finish.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron == nil {
		return nil
	}
	c.cron.Stop()
	c.cron = nil
	close(c.stopCh)
	c.stopCh = nil
	return nil
}

// Running reports whether the scheduler is active.
func (c *CronScheduler) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cron != nil && c.cron.IsRunning()
}
