package supervisor

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/sky22333/svcmgr/internal/process"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		cfg      process.Config
		attempts int
		want     Decision
	}{
		{
			name: "auto restart disabled",
			cfg:  process.Config{AutoRestart: false, MaxRestarts: -1},
			want: Decision{},
		},
		{
			name: "unlimited",
			cfg:  process.Config{AutoRestart: true, MaxRestarts: -1, RestartDelay: time.Second},
			want: Decision{Restart: true, Attempt: 1, Delay: time.Second},
		},
		{
			name:     "unlimited after many attempts",
			cfg:      process.Config{AutoRestart: true, MaxRestarts: -1},
			attempts: 1000,
			want:     Decision{Restart: true, Attempt: 1001},
		},
		{
			name:     "last allowed restart",
			cfg:      process.Config{AutoRestart: true, MaxRestarts: 2},
			attempts: 1,
			want:     Decision{Restart: true, Attempt: 2},
		},
		{
			name:     "limit reached",
			cfg:      process.Config{AutoRestart: true, MaxRestarts: 2},
			attempts: 2,
			want:     Decision{Attempt: 2, LimitReached: true},
		},
		{
			name: "zero restarts allowed",
			cfg:  process.Config{AutoRestart: true, MaxRestarts: 0},
			want: Decision{LimitReached: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.cfg, tt.attempts); got != tt.want {
				t.Errorf("Decide() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// Feeding every restart decision back as the next attempt count never
// exceeds MaxRestarts restarts, and always ends with LimitReached.
func TestDecideBoundsRestarts(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxRestarts := rapid.IntRange(0, 30).Draw(t, "maxRestarts")
		cfg := process.Config{
			AutoRestart:  true,
			MaxRestarts:  maxRestarts,
			RestartDelay: time.Duration(rapid.Int64Range(0, int64(time.Minute)).Draw(t, "delay")),
		}

		attempts := 0
		launches := 1
		for {
			d := Decide(cfg, attempts)
			if !d.Restart {
				if !d.LimitReached {
					t.Fatalf("auto restart stopped without reaching the limit: %+v", d)
				}
				break
			}
			if d.Delay != cfg.RestartDelay {
				t.Fatalf("delay = %v, want %v", d.Delay, cfg.RestartDelay)
			}
			if d.Attempt != attempts+1 {
				t.Fatalf("attempt = %d, want %d", d.Attempt, attempts+1)
			}
			attempts = d.Attempt
			launches++
			if launches > maxRestarts+1 {
				t.Fatalf("launched %d times with MaxRestarts=%d", launches, maxRestarts)
			}
		}
		if launches != maxRestarts+1 {
			t.Fatalf("launched %d times, want %d", launches, maxRestarts+1)
		}
	})
}

// Without auto restart no exit code or attempt count produces a restart.
func TestDecideNeverRestartsWhenDisabled(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := process.Config{
			AutoRestart: false,
			MaxRestarts: rapid.IntRange(-1, 100).Draw(t, "maxRestarts"),
		}
		attempts := rapid.IntRange(0, 1000).Draw(t, "attempts")
		if d := Decide(cfg, attempts); d.Restart || d.LimitReached {
			t.Fatalf("unexpected decision %+v", d)
		}
	})
}
