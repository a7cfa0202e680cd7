// Package schedule decides whether automatic embedding work should be
// deferred to the daily off-peak window. The decision is a pure function of
// the inputs and the advisor's configuration; the caller supplies the clock.
package schedule

import (
	"fmt"
	"time"
)

// Config describes the off-peak window. The window is one wall-clock instant
// per day expressed in a fixed UTC offset, deliberately independent of the
// server's local timezone so that all replicas agree on it.
type Config struct {
	Enabled bool
	// Hour and Minute of the daily off-peak instant, in the configured offset.
	Hour   int
	Minute int
	// UTCOffsetHours is the fixed offset east of UTC the window is defined in.
	UTCOffsetHours int
	// Threshold below which "almost off-peak" work runs immediately.
	Threshold time.Duration
}

// DefaultThreshold applies when Config.Threshold is zero.
const DefaultThreshold = time.Hour

// Decision is the advisor's verdict for one job.
type Decision struct {
	ShouldSchedule bool
	Delay          time.Duration
	ScheduledAt    time.Time
	Reason         string
}

// Advisor computes scheduling decisions. It holds no state beyond its config
// and performs no I/O.
type Advisor struct {
	cfg Config
}

// NewAdvisor returns an advisor for the given off-peak configuration.
func NewAdvisor(cfg Config) *Advisor {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	return &Advisor{cfg: cfg}
}

// Decide determines whether a job should be deferred to the next off-peak
// instant. Manual jobs and forced work always run immediately; automatic work
// is deferred unless the window is already close.
func (a *Advisor) Decide(isAutomatic, forceImmediate bool, now time.Time) Decision {
	if !a.cfg.Enabled {
		return Decision{Reason: "off-peak scheduling disabled"}
	}
	if forceImmediate {
		return Decision{Reason: "immediate execution forced"}
	}
	if !isAutomatic {
		return Decision{Reason: "manual jobs run immediately"}
	}

	next := a.nextWindow(now)
	delay := next.Sub(now)
	if delay <= a.cfg.Threshold {
		return Decision{
			Delay:  delay,
			Reason: fmt.Sprintf("off-peak window within %s", a.cfg.Threshold),
		}
	}

	return Decision{
		ShouldSchedule: true,
		Delay:          delay,
		ScheduledAt:    next,
		Reason:         "deferred to off-peak window",
	}
}

// nextWindow returns the first off-peak instant strictly after now.
func (a *Advisor) nextWindow(now time.Time) time.Time {
	loc := time.FixedZone("offpeak", a.cfg.UTCOffsetHours*3600)
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), a.cfg.Hour, a.cfg.Minute, 0, 0, loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
