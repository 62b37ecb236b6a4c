package jobcore

import (
	"time"

	jmerrors "github.com/adamnew123456/jobmon/internal/errors"
)

// Machine is spec.md §4.C's per-job state machine, expressed as a plain
// record. It never calls the Runner or the bus itself; every transition
// returns the list of Actions the dispatcher must carry out, so the
// machine is exercised with nothing more than a clock in tests.
type Machine struct {
	Name string
	Cfg  JobConfig

	Phase         Phase
	PID           int
	LastExitTime  time.Time
	CooldownUntil time.Time

	// Generation increments on every spawn; a child-exited event carrying
	// a stale generation is from a process this machine has already
	// moved past (e.g. a superseded cooldown respawn) and is ignored.
	Generation int

	throttle Throttle
}

// NewMachine builds a Stopped machine for cfg.
func NewMachine(cfg JobConfig) *Machine {
	return &Machine{
		Name:     cfg.Name,
		Cfg:      cfg,
		Phase:    Stopped,
		throttle: NewThrottle(cfg.Restart),
	}
}

// ActionKind enumerates the side effects a transition may require.
type ActionKind int

const (
	ActionSpawn ActionKind = iota
	ActionSignal
	ActionPublish
	ActionScheduleWake
	ActionCancelWake
)

// Action is one side effect the dispatcher must perform after a
// transition. Only the fields relevant to Kind are populated.
type Action struct {
	Kind  ActionKind
	Sig   int     // ActionSignal: signal number
	Event Event   // ActionPublish
	At    time.Time // ActionScheduleWake: when to deliver WakeCooldown
}

// RequestStart handles a client start-request. Valid from Stopped and
// from CooldownPending (where it cancels the pending wake and spawns
// right away); a start against an already-Running job is rejected.
func (m *Machine) RequestStart(now time.Time) (bool, []Action) {
	if m.Phase == Running {
		return false, nil
	}
	m.Generation++
	return true, []Action{{Kind: ActionSpawn}}
}

// ConfirmSpawn records that the runner successfully started a child with
// the given pid, transitioning Stopped -> Running and publishing RUNNING.
func (m *Machine) ConfirmSpawn(pid int, now time.Time) []Action {
	m.Phase = Running
	m.PID = pid
	return []Action{{Kind: ActionPublish, Event: Event{Job: m.Name, Phase: Running, At: now}}}
}

// FailSpawn records that the runner could not start a child; the job
// stays Stopped and no event is published, per spec.md §7 (autostart
// spawn failure logs a warning and leaves the job Stopped).
func (m *Machine) FailSpawn() {
	m.Phase = Stopped
	m.PID = 0
}

// RequestStop handles a client stop-request.
//
//   - Running: signal the process group with Cfg.StopSignal. The phase
//     stays Running until the corresponding child-exited event arrives;
//     spec.md's table calls this transient state "Stopped-pending-reap"
//     but it is not a distinct externally visible phase.
//   - CooldownPending: no live child exists, so there is nothing to
//     signal; cancel the pending wake and go straight to Stopped with no
//     event (RUNNING was never published for the cancelled respawn).
//   - Stopped: no-op error, same convention as RequestStart.
func (m *Machine) RequestStop(now time.Time) (bool, []Action) {
	switch m.Phase {
	case Running:
		return true, []Action{{Kind: ActionSignal, Sig: int(m.Cfg.StopSignal)}}
	case CooldownPending:
		m.Phase = Stopped
		m.Generation++ // invalidate the pending wake
		return true, []Action{{Kind: ActionCancelWake}}
	default:
		return false, nil
	}
}

// ChildExited applies spec.md §4.C's exit table. gen must match the
// generation the exiting child was spawned under; a stale gen is
// ignored entirely (no actions, no phase change) since a newer attempt
// has already superseded it.
func (m *Machine) ChildExited(gen int, now time.Time) []Action {
	if gen != m.Generation {
		return nil
	}

	m.PID = 0
	verdict := m.throttle.Evaluate(now, m.LastExitTime)
	m.LastExitTime = now

	switch verdict.Decision {
	case DoNotRespawn:
		m.Phase = Stopped
		return []Action{{Kind: ActionPublish, Event: Event{Job: m.Name, Phase: Stopped, At: now}}}

	case RespawnImmediately:
		m.Phase = Running
		m.Generation++
		return []Action{
			{Kind: ActionPublish, Event: Event{Job: m.Name, Phase: Stopped, At: now}},
			{Kind: ActionSpawn},
		}

	case Defer:
		m.Phase = CooldownPending
		m.CooldownUntil = verdict.Until
		return []Action{
			{Kind: ActionPublish, Event: Event{Job: m.Name, Phase: Stopped, At: now}},
			{Kind: ActionScheduleWake, At: verdict.Until},
		}

	default:
		return nil
	}
}

// ChildExitedDuringShutdown applies a reap that arrives after this job has
// already been sent a stop signal as part of graceful shutdown. Unlike
// ChildExited it never consults the throttle: once shutdown has begun a
// job must not gain a new child, regardless of its restart policy or exit
// spacing (spec.md §4.E). gen is still checked so a reap belonging to an
// already-superseded attempt is ignored rather than misapplied.
func (m *Machine) ChildExitedDuringShutdown(gen int, now time.Time) []Action {
	if gen != m.Generation {
		return nil
	}
	m.PID = 0
	m.Phase = Stopped
	m.LastExitTime = now
	return []Action{{Kind: ActionPublish, Event: Event{Job: m.Name, Phase: Stopped, At: now}}}
}

// WakeCooldown fires when a scheduled cooldown timer expires. gen must
// match the generation that scheduled the wake; a stale wake (e.g. from
// a job that was stopped and restarted since) is ignored.
func (m *Machine) WakeCooldown(gen int, now time.Time) []Action {
	if gen != m.Generation || m.Phase != CooldownPending {
		return nil
	}
	m.Generation++
	return []Action{{Kind: ActionSpawn}}
}

// Status reports the externally visible phase, per spec.md §6.
func (m *Machine) Status() string {
	return m.Phase.WirePhase()
}

// ErrForStart maps the current phase to the error a start-request
// against it should report, or nil if the request is valid.
func (m *Machine) ErrForStart() error {
	if m.Phase == Running {
		return jmerrors.ErrAlreadyRunning
	}
	return nil
}

// ErrForStop maps the current phase to the error a stop-request against
// it should report, or nil if the request is valid.
func (m *Machine) ErrForStop() error {
	if m.Phase == Stopped {
		return jmerrors.ErrAlreadyStopped
	}
	return nil
}
