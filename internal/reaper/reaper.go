// Package reaper drains exited children via SIGCHLD, implementing
// spec.md §9's self-pipe requirement: Go's os/signal package already
// delivers signals to user code through a pipe of its own, so the
// handler itself never touches shared state directly. This package's
// goroutine is the only place that does.
package reaper

import (
	"os"
	"os/signal"
	"time"

	"golang.org/x/sys/unix"
)

// Exit describes one reaped child.
type Exit struct {
	PID      int
	ExitCode int
	Signaled bool
	At       time.Time
}

// Reaper watches for SIGCHLD and drains every exited child with a
// non-blocking Wait4 loop, since a single SIGCHLD can represent more
// than one simultaneous exit.
type Reaper struct {
	sigCh  chan os.Signal
	exitCh chan Exit
	done   chan struct{}
}

// New constructs a Reaper. The exit channel is buffered generously since the
// dispatcher, not the reaper, decides how quickly to drain it.
func New() *Reaper {
	return &Reaper{
		sigCh:  make(chan os.Signal, 16),
		exitCh: make(chan Exit, 256),
		done:   make(chan struct{}),
	}
}

// Exits returns the channel exited children are posted to.
func (r *Reaper) Exits() <-chan Exit { return r.exitCh }

// Run registers the SIGCHLD handler and blocks, reaping children until
// Stop is called. Run is meant to be called from its own goroutine.
func (r *Reaper) Run() {
	signal.Notify(r.sigCh, unix.SIGCHLD)
	defer signal.Stop(r.sigCh)

	for {
		select {
		case <-r.sigCh:
			r.drain()
		case <-r.done:
			close(r.exitCh)
			return
		}
	}
}

// Stop halts Run and closes the exit channel.
func (r *Reaper) Stop() {
	close(r.done)
}

func (r *Reaper) drain() {
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if pid <= 0 || err != nil {
			return
		}

		exit := Exit{PID: pid, At: time.Now()}
		switch {
		case status.Exited():
			exit.ExitCode = status.ExitStatus()
		case status.Signaled():
			exit.Signaled = true
			exit.ExitCode = 128 + int(status.Signal())
		}

		select {
		case r.exitCh <- exit:
		case <-r.done:
			return
		}
	}
}
