package scheduler

import (
	"time"

	"github.com/smallbiznis/seva/internal/config"
)

// Config controls the pending sweep cadence and batch size.
type Config struct {
	Enabled      bool
	RunInterval  time.Duration
	PendingAge   time.Duration
	RecheckAfter time.Duration
	BatchSize    int
	JobTimeout   time.Duration
	// AbandonAfter is the age past which a donation the gateway has never
	// heard of is marked failed.
	AbandonAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		RunInterval:  5 * time.Minute,
		PendingAge:   15 * time.Minute,
		RecheckAfter: 10 * time.Minute,
		BatchSize:    50,
		JobTimeout:   2 * time.Minute,
		AbandonAfter: 24 * time.Hour,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:      cfg.Sweep.Enabled,
		RunInterval:  cfg.Sweep.Interval,
		PendingAge:   cfg.Sweep.PendingAge,
		RecheckAfter: cfg.Sweep.RecheckAfter,
		BatchSize:    cfg.Sweep.BatchSize,
		AbandonAfter: cfg.Sweep.AbandonAfter,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.PendingAge <= 0 {
		c.PendingAge = defaults.PendingAge
	}
	if c.RecheckAfter <= 0 {
		c.RecheckAfter = defaults.RecheckAfter
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.AbandonAfter <= 0 {
		c.AbandonAfter = defaults.AbandonAfter
	}
	return c
}
