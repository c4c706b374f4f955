package workers

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Job is a periodic background task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(now time.Time)
}

// Start runs each job on its own ticker until ctx is cancelled. The returned
// function blocks until every job has stopped.
func Start(ctx context.Context, clock clockwork.Clock, jobs ...Job) (wait func()) {
	var wg sync.WaitGroup
	for _, job := range jobs {
		if job.Interval <= 0 {
			log.Warn().Str("job", job.Name).Msg("worker disabled, no interval")
			continue
		}
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			loop(ctx, clock, job)
		}(job)
	}
	return wg.Wait
}

func loop(ctx context.Context, clock clockwork.Clock, job Job) {
	ticker := clock.NewTicker(job.Interval)
	defer ticker.Stop()

	log.Info().Str("job", job.Name).Dur("interval", job.Interval).Msg("worker started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("job", job.Name).Msg("worker stopped")
			return
		case now := <-ticker.Chan():
			job.Run(now)
		}
	}
}

// Sweeper is anything that expires idle entries.
type Sweeper interface {
	Sweep(now time.Time) int
}

// SweepSessions returns a job that expires idle sessions. onSwept, if not
// nil, receives the number removed by each pass.
func SweepSessions(s Sweeper, interval time.Duration, onSwept func(n int)) Job {
	return Job{
		Name:     "session_sweeper",
		Interval: interval,
		Run: func(now time.Time) {
			n := s.Sweep(now)
			if n == 0 {
				return
			}
			if onSwept != nil {
				onSwept(n)
			}
			log.Info().Int("expired", n).Msg("Worker: expired idle sessions")
		},
	}
}

// Pruner drops rate limit buckets that have been idle for a while.
type Pruner interface {
	Cleanup(now time.Time, idle time.Duration) int
}

func PruneRateLimits(p Pruner, interval, idle time.Duration) Job {
	return Job{
		Name:     "rate_limit_cleanup",
		Interval: interval,
		Run: func(now time.Time) {
			if n := p.Cleanup(now, idle); n > 0 {
				log.Debug().Int("removed", n).Msg("Worker: pruned rate limit buckets")
			}
		},
	}
}
