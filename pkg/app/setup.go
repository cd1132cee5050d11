// Package app builds the treasury services from their dependencies and
// registers their event handlers and periodic jobs.
package app

import (
	"context"
	"time"

	"github.com/amirasaad/treasury/pkg/config"
)

// Job is a periodic unit of work with its cron schedule. An empty Schedule
// disables it.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Jobs lists the scheduled treasury jobs.
func (a *App) Jobs() []Job {
	jobs := []Job{
		{
			Name:     "payout-aggregate",
			Schedule: scheduleOf(a.Config.Payout, func() string { return a.Config.Payout.AggregateSchedule }),
			Run: func(ctx context.Context) error {
				_, err := a.Payouts.Aggregate(ctx, time.Time{})
				return err
			},
		},
		{
			Name:     "comp-settle-sweep",
			Schedule: scheduleOf(a.Config.Comp, func() string { return a.Config.Comp.SweepSchedule }),
			Run: func(ctx context.Context) error {
				_, err := a.Comps.SweepPending(ctx, compSweepAge(a.Config))
				return err
			},
		},
		{
			Name:     "sunset-check",
			Schedule: scheduleOf(a.Config.Sunset, func() string { return a.Config.Sunset.CheckSchedule }),
			Run: func(ctx context.Context) error {
				_, err := a.Sunset.CheckSunset(ctx)
				return err
			},
		},
	}
	if a.Bank != nil {
		jobs = append(jobs, Job{
			Name:     "bank-sync",
			Schedule: scheduleOf(a.Config.Bank, func() string { return a.Config.Bank.SyncSchedule }),
			Run: func(ctx context.Context) error {
				_, err := a.Bank.Sync(ctx)
				return err
			},
		})
	}
	return jobs
}

func scheduleOf[T any](section *T, get func() string) string {
	if section == nil {
		return ""
	}
	return get()
}

func railTimeout(cfg *config.App) time.Duration {
	if cfg.Rail == nil {
		return 0
	}
	return cfg.Rail.Timeout
}

func bankTimeout(cfg *config.App) time.Duration {
	if cfg.Bank == nil {
		return 0
	}
	return cfg.Bank.Timeout
}

func compSweepAge(cfg *config.App) time.Duration {
	if cfg.Comp == nil || cfg.Comp.SweepAge <= 0 {
		return 15 * time.Minute
	}
	return cfg.Comp.SweepAge
}

func cacheTTL(cfg *config.App) time.Duration {
	if cfg.Sunset == nil {
		return 0
	}
	return cfg.Sunset.CacheTTL
}
