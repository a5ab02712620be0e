package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/newspulse/internal/index"
	"github.com/mohammad-safakhou/newspulse/session"
)

const rebuildLockKey = "sched:lock:index-rebuild"

// Scheduler drives background maintenance: staleness-checked index reloads
// and session sweeps. With redis configured, a SetNX lock keeps replicas
// from rebuilding the same corpus concurrently.
type Scheduler struct {
	Index    *index.Manager
	Sessions session.Store
	Rdb      *redis.Client

	// Schedule takes priority over Interval: "@hourly", "@daily" or a
	// 5-field cron expression.
	Schedule      string
	Interval      time.Duration
	SweepInterval time.Duration
	Metrics       *metrics

	Stop chan struct{}

	lastCheck time.Time
}

func (s *Scheduler) Start() {
	interval := s.Interval
	if s.Schedule != "" {
		// Cron schedules are evaluated every minute.
		interval = time.Minute
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	sweep := s.SweepInterval
	if sweep <= 0 {
		sweep = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	sweeper := time.NewTicker(sweep)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				sweeper.Stop()
				return
			case <-ticker.C:
				s.tickIndex()
			case <-sweeper.C:
				s.tickSweep()
			}
		}
	}()
}

func (s *Scheduler) tickIndex() {
	if s.Schedule != "" && !isDue(s.Schedule, s.lastCheck) {
		return
	}
	s.lastCheck = time.Now()

	ctx := context.Background()
	if s.Rdb != nil {
		ok, err := s.Rdb.SetNX(ctx, rebuildLockKey, "1", 2*time.Minute).Result()
		if err != nil {
			log.Printf("[SCHED] rebuild lock: %v", err)
		}
		if !ok {
			return
		}
		defer s.Rdb.Del(ctx, rebuildLockKey)
	}

	reloaded, err := s.Index.MaybeReload(ctx)
	if err != nil {
		log.Printf("[SCHED] index reload check failed: %v", err)
		return
	}
	if reloaded && s.Metrics != nil {
		s.Metrics.indexGeneration.Set(float64(s.Index.Current().Generation))
	}
}

func (s *Scheduler) tickSweep() {
	n, err := s.Sessions.Sweep(context.Background())
	if err != nil {
		log.Printf("[SCHED] session sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[SCHED] swept %d expired sessions", n)
	}
}

// isDue reports whether a schedule has fired since the last check.
// Supports "@daily", "@hourly" and standard 5-field cron expressions;
// invalid expressions fall back to @daily.
func isDue(cronSpec string, last time.Time) bool {
	now := time.Now()
	if last.IsZero() {
		return true
	}
	switch cronSpec {
	case "@daily":
		return now.Sub(last) >= 24*time.Hour
	case "@hourly":
		return now.Sub(last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			return now.Sub(last) >= 24*time.Hour
		}
		return !expr.Next(last).After(now)
	}
}
