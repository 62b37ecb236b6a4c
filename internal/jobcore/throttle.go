package jobcore

import "time"

// rapidWindow and cooldown implement spec.md §4.B's restart throttle
// exactly: two exits at most rapidWindow apart trigger a cooldown of
// length cooldown before the next respawn is attempted.
const (
	rapidWindow = 5 * time.Second
	cooldown    = 15 * time.Second
)

// Decision is the throttle's verdict on a single child exit.
type Decision int

const (
	// RespawnImmediately: this exit was not rapid; spawn again right away.
	RespawnImmediately Decision = iota
	// Defer: this exit followed the previous one within rapidWindow;
	// wait until Until before respawning.
	Defer
	// DoNotRespawn: restart is disabled for this job.
	DoNotRespawn
)

// Verdict pairs a Decision with the wake time a Defer verdict implies.
type Verdict struct {
	Decision Decision
	Until    time.Time
}

// Throttle tells a crash loop from an ordinary restart. It keeps no exit
// history and holds no reference to the job it throttles; the state
// machine passes LastExitTime in and receives a Verdict back.
type Throttle struct {
	restart bool
}

// NewThrottle constructs a Throttle for a job whose configuration enables
// or disables restart-on-exit.
func NewThrottle(restart bool) Throttle {
	return Throttle{restart: restart}
}

// Evaluate decides what should happen after a child exits at now, given
// the previous exit time (the zero Time if this is the first exit).
func (t Throttle) Evaluate(now, prevExit time.Time) Verdict {
	if !t.restart {
		return Verdict{Decision: DoNotRespawn}
	}
	if !prevExit.IsZero() && now.Sub(prevExit) <= rapidWindow {
		return Verdict{Decision: Defer, Until: now.Add(cooldown)}
	}
	return Verdict{Decision: RespawnImmediately}
}
