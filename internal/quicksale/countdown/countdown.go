// Package countdown computes the advisory time-remaining display for a quick sale.
// It never decides whether a bid is accepted; the bid path checks ends_at itself.
package countdown

import (
	"time"
)

type State string

const (
	Running State = "running"
	Ended   State = "ended"
)

type Snapshot struct {
	State            State     `json:"state"`
	EndsAt           time.Time `json:"ends_at"`
	ServerTime       time.Time `json:"server_time"`
	RemainingSeconds int64     `json:"remaining_seconds"`
	Days             int64     `json:"days"`
	Hours            int64     `json:"hours"`
	Minutes          int64     `json:"minutes"`
	Seconds          int64     `json:"seconds"`
}

// Clock is swapped out in tests.
type Clock func() time.Time

type Countdown struct {
	endsAt time.Time
	now    Clock
	state  State
}

func New(endsAt time.Time, now Clock) *Countdown {
	if now == nil {
		now = time.Now
	}
	c := &Countdown{endsAt: endsAt, now: now, state: Running}
	c.Tick()
	return c
}

// Tick recomputes the snapshot. Once Ended, the countdown stays Ended even if the clock goes backwards.
func (c *Countdown) Tick() Snapshot {
	snap := At(c.endsAt, c.now())
	if c.state == Ended {
		snap = endedSnapshot(c.endsAt, snap.ServerTime)
	}
	c.state = snap.State
	return snap
}

func (c *Countdown) State() State {
	return c.state
}

// Reschedule moves the deadline, which can bring an ended countdown back to Running.
func (c *Countdown) Reschedule(endsAt time.Time) Snapshot {
	c.endsAt = endsAt
	c.state = Running
	return c.Tick()
}

// At is the pure form of Tick.
func At(endsAt, now time.Time) Snapshot {
	remaining := endsAt.Sub(now)
	if remaining <= 0 {
		return endedSnapshot(endsAt, now)
	}

	// Round up so the display never shows 0s while the sale is still open.
	total := int64((remaining + time.Second - 1) / time.Second)

	return Snapshot{
		State:            Running,
		EndsAt:           endsAt,
		ServerTime:       now,
		RemainingSeconds: total,
		Days:             total / 86400,
		Hours:            (total % 86400) / 3600,
		Minutes:          (total % 3600) / 60,
		Seconds:          total % 60,
	}
}

func endedSnapshot(endsAt, now time.Time) Snapshot {
	return Snapshot{
		State:      Ended,
		EndsAt:     endsAt,
		ServerTime: now,
	}
}

// Stopped is the snapshot of a sale closed before its deadline (finalized early or cancelled).
func Stopped(endsAt, now time.Time) Snapshot {
	return endedSnapshot(endsAt, now)
}
