// Package jobcore implements spec.md §3's data model together with the
// job runner (§4.A), restart throttle (§4.B), and per-job state machine
// (§4.C). It knows nothing about sockets, JSON, or the dispatcher's
// request queue; internal/dispatcher is the only package that drives its
// Machine and Runner, while other packages use its Event type.
package jobcore

import (
	"time"

	"github.com/adamnew123456/jobmon/internal/config"
)

// Phase is a job's observable lifecycle state.
type Phase int

const (
	// Stopped: no live child, no pending cooldown.
	Stopped Phase = iota
	// Running: pid names a live child owned by this supervisor.
	Running
	// CooldownPending: the job crashed twice within the rapid window and
	// is waiting out the cooldown before the next respawn attempt.
	CooldownPending
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "RUNNING"
	case CooldownPending:
		return "COOLDOWN_PENDING"
	default:
		return "STOPPED"
	}
}

// WirePhase collapses the three internal phases down to the two phases
// spec.md §6 exposes over the wire: a job with no live child is reported
// as STOPPED whether or not it is mid-cooldown.
func (p Phase) WirePhase() string {
	if p == Running {
		return "RUNNING"
	}
	return "STOPPED"
}

// Event is spec.md §3's event record: a published phase transition.
type Event struct {
	Job   string
	Phase Phase // always Running or Stopped; CooldownPending is never published
	At    time.Time
}

// JobConfig is an alias for the resolved job configuration the config
// package produces; kept as a distinct name in this package so jobcore's
// public API doesn't leak the config package's import path to callers
// that only need the core.
type JobConfig = config.JobConfig
