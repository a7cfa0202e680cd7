package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAdvisor_Decide(t *testing.T) {
	// Window at 00:00 UTC, threshold 30 minutes.
	cfg := Config{
		Enabled:   true,
		Hour:      0,
		Minute:    0,
		Threshold: 30 * time.Minute,
	}

	tests := []struct {
		name           string
		cfg            Config
		isAutomatic    bool
		forceImmediate bool
		now            time.Time
		wantSchedule   bool
		wantDelay      time.Duration
	}{
		{
			name:         "automatic job close to window runs immediately",
			cfg:          cfg,
			isAutomatic:  true,
			now:          time.Date(2025, 3, 10, 23, 31, 0, 0, time.UTC),
			wantSchedule: false,
			wantDelay:    29 * time.Minute,
		},
		{
			name:         "automatic job far from window is deferred",
			cfg:          cfg,
			isAutomatic:  true,
			now:          time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC),
			wantSchedule: true,
			wantDelay:    4 * time.Hour,
		},
		{
			name:         "automatic job exactly at threshold runs immediately",
			cfg:          cfg,
			isAutomatic:  true,
			now:          time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC),
			wantSchedule: false,
			wantDelay:    30 * time.Minute,
		},
		{
			name:         "manual job is never deferred",
			cfg:          cfg,
			isAutomatic:  false,
			now:          time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
			wantSchedule: false,
		},
		{
			name:           "forced job is never deferred",
			cfg:            cfg,
			isAutomatic:    true,
			forceImmediate: true,
			now:            time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
			wantSchedule:   false,
		},
		{
			name:         "disabled advisor never defers",
			cfg:          Config{Enabled: false},
			isAutomatic:  true,
			now:          time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
			wantSchedule: false,
		},
		{
			name: "window already passed today rolls to tomorrow",
			cfg: Config{
				Enabled:   true,
				Hour:      2,
				Minute:    0,
				Threshold: 30 * time.Minute,
			},
			isAutomatic:  true,
			now:          time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC),
			wantSchedule: true,
			wantDelay:    23 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			advisor := NewAdvisor(tt.cfg)
			decision := advisor.Decide(tt.isAutomatic, tt.forceImmediate, tt.now)

			assert.Equal(t, tt.wantSchedule, decision.ShouldSchedule)
			if tt.wantDelay > 0 {
				assert.Equal(t, tt.wantDelay, decision.Delay)
			}
			if tt.wantSchedule {
				assert.Equal(t, tt.now.Add(tt.wantDelay).Unix(), decision.ScheduledAt.Unix())
			}
		})
	}
}

func TestAdvisor_Decide_UTCOffset(t *testing.T) {
	// Window at 01:00 in UTC+2, which is 23:00 UTC.
	advisor := NewAdvisor(Config{
		Enabled:        true,
		Hour:           1,
		Minute:         0,
		UTCOffsetHours: 2,
		Threshold:      30 * time.Minute,
	})

	now := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)
	decision := advisor.Decide(true, false, now)

	assert.True(t, decision.ShouldSchedule)
	assert.Equal(t, 3*time.Hour, decision.Delay)
}

func TestAdvisor_Decide_IsDeterministic(t *testing.T) {
	advisor := NewAdvisor(Config{Enabled: true, Hour: 4, Minute: 30})
	now := time.Date(2025, 6, 1, 9, 15, 0, 0, time.UTC)

	first := advisor.Decide(true, false, now)
	second := advisor.Decide(true, false, now)
	assert.Equal(t, first, second)
}
