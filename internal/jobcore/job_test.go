package jobcore

import (
	"testing"
	"time"
)

func newTestMachine(restart bool) *Machine {
	return NewMachine(JobConfig{Name: "web", Command: "/bin/true", Restart: restart})
}

func TestRequestStartFromStoppedSpawns(t *testing.T) {
	m := newTestMachine(false)
	ok, actions := m.RequestStart(time.Now())
	if !ok {
		t.Fatal("RequestStart rejected from Stopped")
	}
	if len(actions) != 1 || actions[0].Kind != ActionSpawn {
		t.Fatalf("actions = %+v, want single ActionSpawn", actions)
	}
}

func TestRequestStartFromRunningRejected(t *testing.T) {
	m := newTestMachine(false)
	m.RequestStart(time.Now())
	m.ConfirmSpawn(123, time.Now())

	ok, actions := m.RequestStart(time.Now())
	if ok {
		t.Fatal("RequestStart accepted while Running")
	}
	if actions != nil {
		t.Errorf("actions = %+v, want nil", actions)
	}
	if err := m.ErrForStart(); err == nil {
		t.Error("ErrForStart = nil, want ErrAlreadyRunning")
	}
}

func TestConfirmSpawnPublishesRunning(t *testing.T) {
	m := newTestMachine(false)
	m.RequestStart(time.Now())
	now := time.Now()
	actions := m.ConfirmSpawn(42, now)

	if m.Phase != Running || m.PID != 42 {
		t.Fatalf("Phase=%v PID=%d, want Running/42", m.Phase, m.PID)
	}
	if len(actions) != 1 || actions[0].Kind != ActionPublish || actions[0].Event.Phase != Running {
		t.Fatalf("actions = %+v, want publish Running", actions)
	}
}

func TestChildExitedNoRestartGoesStopped(t *testing.T) {
	m := newTestMachine(false)
	m.RequestStart(time.Now())
	m.ConfirmSpawn(42, time.Now())

	actions := m.ChildExited(m.Generation, time.Now())
	if m.Phase != Stopped {
		t.Fatalf("Phase = %v, want Stopped", m.Phase)
	}
	if len(actions) != 1 || actions[0].Kind != ActionPublish || actions[0].Event.Phase != Stopped {
		t.Fatalf("actions = %+v, want single publish Stopped", actions)
	}
}

func TestChildExitedStaleGenerationIgnored(t *testing.T) {
	m := newTestMachine(false)
	m.RequestStart(time.Now())
	m.ConfirmSpawn(42, time.Now())

	actions := m.ChildExited(m.Generation-1, time.Now())
	if actions != nil {
		t.Errorf("actions = %+v, want nil for stale generation", actions)
	}
	if m.Phase != Running {
		t.Errorf("Phase = %v, want unchanged Running", m.Phase)
	}
}

func TestChildExitedRestartRespawnsImmediatelyOnFirstExit(t *testing.T) {
	m := newTestMachine(true)
	m.RequestStart(time.Now())
	m.ConfirmSpawn(42, time.Now())

	now := time.Now()
	actions := m.ChildExited(m.Generation, now)
	if m.Phase != Running {
		t.Fatalf("Phase = %v, want Running after immediate respawn", m.Phase)
	}
	if len(actions) != 2 || actions[0].Kind != ActionPublish || actions[1].Kind != ActionSpawn {
		t.Fatalf("actions = %+v, want [publish, spawn]", actions)
	}
}

func TestChildExitedRapidExitsDefer(t *testing.T) {
	m := newTestMachine(true)
	m.RequestStart(time.Now())
	m.ConfirmSpawn(42, time.Now())

	first := time.Now()
	m.ChildExited(m.Generation, first)

	m.ConfirmSpawn(43, first)
	second := first.Add(1 * time.Second)
	actions := m.ChildExited(m.Generation, second)

	if m.Phase != CooldownPending {
		t.Fatalf("Phase = %v, want CooldownPending", m.Phase)
	}
	if len(actions) != 2 || actions[0].Kind != ActionPublish || actions[1].Kind != ActionScheduleWake {
		t.Fatalf("actions = %+v, want [publish, scheduleWake]", actions)
	}
	wantUntil := second.Add(cooldown)
	if !actions[1].At.Equal(wantUntil) {
		t.Errorf("wake At = %v, want %v", actions[1].At, wantUntil)
	}
}

func TestChildExitedDuringShutdownNeverRespawns(t *testing.T) {
	m := newTestMachine(true) // restart=true: ordinary ChildExited would respawn
	m.RequestStart(time.Now())
	m.ConfirmSpawn(42, time.Now())

	now := time.Now()
	actions := m.ChildExitedDuringShutdown(m.Generation, now)
	if m.Phase != Stopped {
		t.Fatalf("Phase = %v, want Stopped", m.Phase)
	}
	if len(actions) != 1 || actions[0].Kind != ActionPublish || actions[0].Event.Phase != Stopped {
		t.Fatalf("actions = %+v, want single publish Stopped", actions)
	}
}

func TestChildExitedDuringShutdownRapidExitStillNeverRespawns(t *testing.T) {
	m := newTestMachine(true)
	m.RequestStart(time.Now())
	m.ConfirmSpawn(42, time.Now())
	m.LastExitTime = time.Now() // simulate a just-prior rapid exit

	actions := m.ChildExitedDuringShutdown(m.Generation, m.LastExitTime.Add(time.Second))
	for _, a := range actions {
		if a.Kind == ActionSpawn || a.Kind == ActionScheduleWake {
			t.Fatalf("actions = %+v, want no spawn or scheduled wake during shutdown", actions)
		}
	}
	if m.Phase != Stopped {
		t.Fatalf("Phase = %v, want Stopped", m.Phase)
	}
}

func TestChildExitedDuringShutdownStaleGenerationIgnored(t *testing.T) {
	m := newTestMachine(true)
	m.RequestStart(time.Now())
	m.ConfirmSpawn(42, time.Now())

	actions := m.ChildExitedDuringShutdown(m.Generation-1, time.Now())
	if actions != nil {
		t.Errorf("actions = %+v, want nil for stale generation", actions)
	}
	if m.Phase != Running {
		t.Errorf("Phase = %v, want unchanged Running", m.Phase)
	}
}

func TestWakeCooldownRespawns(t *testing.T) {
	m := newTestMachine(true)
	m.Phase = CooldownPending
	gen := m.Generation

	actions := m.WakeCooldown(gen, time.Now())
	if len(actions) != 1 || actions[0].Kind != ActionSpawn {
		t.Fatalf("actions = %+v, want single ActionSpawn", actions)
	}
	if m.Generation == gen {
		t.Error("Generation unchanged after WakeCooldown")
	}
}

func TestWakeCooldownStaleGenerationIgnored(t *testing.T) {
	m := newTestMachine(true)
	m.Phase = CooldownPending
	gen := m.Generation

	actions := m.WakeCooldown(gen-1, time.Now())
	if actions != nil {
		t.Errorf("actions = %+v, want nil for stale generation", actions)
	}
}

func TestRequestStopFromRunningSignals(t *testing.T) {
	m := newTestMachine(false)
	m.RequestStart(time.Now())
	m.ConfirmSpawn(42, time.Now())

	ok, actions := m.RequestStop(time.Now())
	if !ok {
		t.Fatal("RequestStop rejected from Running")
	}
	if len(actions) != 1 || actions[0].Kind != ActionSignal {
		t.Fatalf("actions = %+v, want single ActionSignal", actions)
	}
	if m.Phase != Running {
		t.Errorf("Phase = %v, want Running until child-exited arrives", m.Phase)
	}
}

func TestRequestStartFromCooldownPendingSpawnsImmediately(t *testing.T) {
	m := newTestMachine(true)
	m.Phase = CooldownPending
	gen := m.Generation

	ok, actions := m.RequestStart(time.Now())
	if !ok {
		t.Fatal("RequestStart rejected from CooldownPending")
	}
	if len(actions) != 1 || actions[0].Kind != ActionSpawn {
		t.Fatalf("actions = %+v, want single ActionSpawn", actions)
	}
	if m.Generation == gen {
		t.Error("Generation unchanged; pending wake would still be valid")
	}
}

func TestRequestStopFromCooldownCancelsWake(t *testing.T) {
	m := newTestMachine(true)
	m.Phase = CooldownPending

	ok, actions := m.RequestStop(time.Now())
	if !ok {
		t.Fatal("RequestStop rejected from CooldownPending")
	}
	if m.Phase != Stopped {
		t.Fatalf("Phase = %v, want Stopped", m.Phase)
	}
	if len(actions) != 1 || actions[0].Kind != ActionCancelWake {
		t.Fatalf("actions = %+v, want single ActionCancelWake", actions)
	}
}

func TestRequestStopFromStoppedRejected(t *testing.T) {
	m := newTestMachine(false)
	ok, actions := m.RequestStop(time.Now())
	if ok {
		t.Fatal("RequestStop accepted while Stopped")
	}
	if actions != nil {
		t.Errorf("actions = %+v, want nil", actions)
	}
	if err := m.ErrForStop(); err == nil {
		t.Error("ErrForStop = nil, want ErrAlreadyStopped")
	}
}

func TestStatusCollapsesCooldownToStopped(t *testing.T) {
	m := newTestMachine(true)
	m.Phase = CooldownPending
	if got := m.Status(); got != "STOPPED" {
		t.Errorf("Status() = %q, want STOPPED", got)
	}
}
