package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper drops cache entries idle for longer than a duration.
type Sweeper interface {
	Sweep(idle time.Duration) int
}

// SweepJob returns a job evicting resolution cache entries idle for longer than idle.
func SweepJob(c Sweeper, idle time.Duration, log *slog.Logger) JobFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if n := c.Sweep(idle); n > 0 {
			log.Info("resolution cache swept", slog.Int("dropped", n), slog.Duration("idle", idle))
		}
		return nil
	}
}

// ScheduleSweep registers SweepJob on schedule, skipping ticks while a sweep runs.
func ScheduleSweep(s *Scheduler, schedule string, c Sweeper, idle time.Duration) (CronJobID, error) {
	return s.AddCronJob(schedule, SweepJob(c, idle, s.log), JobOptions{
		Name:    "cache-sweep",
		Timeout: time.Minute,
		Overlap: SkipIfRunning,
	})
}
