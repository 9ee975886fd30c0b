// Package scheduler runs background jobs on cron schedules or fixed intervals.
//
// retryd uses it to sweep idle entries from the resolution cache and to drive the
// demo workload. Jobs receive a context derived from the scheduler's parent; it is
// canceled on Stop and bounded by JobOptions.Timeout when set.
//
//	s := scheduler.New(ctx, scheduler.Config{Logger: log, Hooks: scheduler.JobHooks{
//		OnJobStart:  m.JobStarted,
//		OnJobFinish: m.JobFinished,
//	}})
//	if _, err := scheduler.ScheduleSweep(s, "@every 5m", resolver.Cache(), 30*time.Minute); err != nil {
//		return err
//	}
//	s.AddTickerJob(10*time.Second, workload.Run, scheduler.JobOptions{
//		Name:    "demo-workload",
//		Overlap: scheduler.SkipIfRunning,
//	})
//	return s.Run(ctx)
//
// Overlap policies:
//   - AllowOverlap: every tick starts a run (default)
//   - SkipIfRunning: a tick is dropped while the previous run is active
//   - DelayIfRunning: a tick waits for the previous run
//
// Schedules accept five-field specs, six-field specs with seconds and descriptors
// such as "@hourly" or "@every 5m". Panics in jobs are recovered and reported as
// job errors; failed runs are logged and do not stop the scheduler.
package scheduler
