package countdown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		endsAt time.Time
		want   Snapshot
	}{
		{
			name:   "days hours minutes seconds",
			endsAt: now.Add(2*24*time.Hour + 3*time.Hour + 4*time.Minute + 5*time.Second),
			want:   Snapshot{State: Running, RemainingSeconds: 183845, Days: 2, Hours: 3, Minutes: 4, Seconds: 5},
		},
		{
			name:   "sub-second remainder rounds up",
			endsAt: now.Add(300 * time.Millisecond),
			want:   Snapshot{State: Running, RemainingSeconds: 1, Seconds: 1},
		},
		{
			name:   "exactly at deadline",
			endsAt: now,
			want:   Snapshot{State: Ended},
		},
		{
			name:   "past deadline",
			endsAt: now.Add(-time.Minute),
			want:   Snapshot{State: Ended},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := At(tt.endsAt, now)
			tt.want.EndsAt = tt.endsAt
			tt.want.ServerTime = now
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCountdown_RunningToEnded(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	c := New(now.Add(2*time.Second), clock)
	assert.Equal(t, Running, c.State())

	now = now.Add(time.Second)
	snap := c.Tick()
	assert.Equal(t, Running, snap.State)
	assert.Equal(t, int64(1), snap.Seconds)

	now = now.Add(time.Second)
	snap = c.Tick()
	assert.Equal(t, Ended, snap.State)
	assert.Equal(t, int64(0), snap.RemainingSeconds)
}

func TestCountdown_EndedIsSticky(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	c := New(now.Add(-time.Second), clock)
	assert.Equal(t, Ended, c.State())

	// clock drifts backwards
	now = now.Add(-time.Minute)
	assert.Equal(t, Ended, c.Tick().State)

	snap := c.Reschedule(now.Add(time.Hour))
	assert.Equal(t, Running, snap.State)
	assert.Equal(t, int64(1), snap.Hours)
}

func TestStopped(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := Stopped(now.Add(time.Hour), now)
	assert.Equal(t, Ended, snap.State)
	assert.Equal(t, int64(0), snap.RemainingSeconds)
	assert.Equal(t, now.Add(time.Hour), snap.EndsAt)
}
