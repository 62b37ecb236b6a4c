// Package dispatcher implements spec.md §4.E: the single serialization
// point through which every request, reap, and cooldown wake passes, so
// that the job table, the throttle, and the event bus always advance
// together. Nothing outside this package ever touches a jobcore.Machine
// directly.
package dispatcher

import (
	"syscall"
	"time"

	"github.com/adamnew123456/jobmon/internal/bus"
	"github.com/adamnew123456/jobmon/internal/config"
	jmerrors "github.com/adamnew123456/jobmon/internal/errors"
	"github.com/adamnew123456/jobmon/internal/jobcore"
	"github.com/adamnew123456/jobmon/internal/log"
	"github.com/adamnew123456/jobmon/internal/reaper"
)

// shutdownDeadline bounds how long graceful shutdown waits for reaps
// before escalating to SIGKILL, per spec.md §4.E.
const shutdownDeadline = 10 * time.Second

// killStragglerGrace bounds how long shutdown waits for SIGKILL'd
// children to actually be reaped before giving up and exiting anyway.
const killStragglerGrace = 2 * time.Second

type pidEntry struct {
	job string
	gen int
}

type waiter struct {
	reply chan<- Response
	done  chan struct{}
}

// Dispatcher owns the job table, the event bus, and the cooldown queue,
// and is the only consumer of reaper exits.
type Dispatcher struct {
	cfg    *config.Config
	runner *jobcore.Runner
	bus    *bus.Bus
	exits  <-chan reaper.Exit
	log    *log.Logger

	requests chan Request
	shutdown chan struct{}
	done     chan struct{}

	jobs     map[string]*jobcore.Machine
	pidIndex map[int]pidEntry
	cooldown wakeQueue
	waiters  map[string][]*waiter
	cancelCh chan *waiterKey
}

type waiterKey struct {
	job string
	w   *waiter
}

// New constructs a Dispatcher with one Machine per configured job, all
// initially Stopped.
func New(cfg *config.Config, runner *jobcore.Runner, b *bus.Bus, exits <-chan reaper.Exit, logger *log.Logger) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg,
		runner:   runner,
		bus:      b,
		exits:    exits,
		log:      logger,
		requests: make(chan Request, 64),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		jobs:     make(map[string]*jobcore.Machine, len(cfg.Jobs)),
		pidIndex: make(map[int]pidEntry),
		waiters:  make(map[string][]*waiter),
		cancelCh: make(chan *waiterKey, 16),
	}
	for _, name := range cfg.JobOrder {
		d.jobs[name] = jobcore.NewMachine(cfg.Jobs[name])
	}
	return d
}

// Requests returns the channel frontends submit Requests to.
func (d *Dispatcher) Requests() chan<- Request { return d.requests }

// Done is closed once Run has completed graceful shutdown and returned.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

// Shutdown requests graceful shutdown out-of-band, for SIGTERM/SIGINT
// handling in cmd/jobmond; it has the same effect as a terminate request
// but needs no Reply channel.
func (d *Dispatcher) Shutdown() {
	select {
	case <-d.shutdown:
	default:
		close(d.shutdown)
	}
}

// Autostart submits a synthetic start-request for every job configured
// with autostart=true, per spec.md §4.C. Called once, before the control
// frontend opens.
func (d *Dispatcher) Autostart() {
	for _, name := range d.cfg.JobOrder {
		if d.cfg.Jobs[name].Autostart {
			d.requests <- Request{Command: CmdStart, Job: name, Reply: make(chan Response, 1)}
		}
	}
}

// Run is the dispatch loop. It blocks until graceful shutdown completes.
func (d *Dispatcher) Run() {
	defer close(d.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	armed := false

	for {
		d.rearm(timer, &armed)

		select {
		case req := <-d.requests:
			d.handleRequest(req, time.Now())

		case exit := <-d.exits:
			d.handleExit(exit)

		case wk := <-d.cancelCh:
			d.removeWaiter(wk.job, wk.w)

		case <-timer.C:
			armed = false
			d.handleWakes(time.Now())

		case <-d.shutdown:
			d.gracefulShutdown(time.Now())
			return
		}
	}
}

func (d *Dispatcher) rearm(timer *time.Timer, armed *bool) {
	item, ok := d.cooldown.peek()
	if !ok {
		return
	}
	if *armed {
		return
	}
	delay := time.Until(item.at)
	if delay < 0 {
		delay = 0
	}
	timer.Reset(delay)
	*armed = true
}

func (d *Dispatcher) handleWakes(now time.Time) {
	for {
		item, ok := d.cooldown.peek()
		if !ok || item.at.After(now) {
			return
		}
		item = d.cooldown.popEarliest()
		m, ok := d.jobs[item.job]
		if !ok {
			continue
		}
		actions := m.WakeCooldown(item.gen, now)
		d.applyActions(m, actions, now)
	}
}

func (d *Dispatcher) handleRequest(req Request, now time.Time) {
	switch req.Command {
	case CmdStart:
		d.handleStart(req, now)
	case CmdStop:
		d.handleStop(req, now)
	case CmdStatus:
		d.handleStatus(req)
	case CmdListJobs:
		d.handleListJobs(req)
	case CmdWait:
		d.handleWait(req)
	case CmdTerminate:
		req.Reply <- Response{OK: true}
		close(req.Reply)
		d.Shutdown()
	default:
		req.Reply <- Response{OK: false, Error: ErrBadRequest}
		close(req.Reply)
	}
}

func (d *Dispatcher) handleStart(req Request, now time.Time) {
	m, ok := d.jobs[req.Job]
	if !ok {
		req.Reply <- Response{OK: false, Error: ErrUnknownJob}
		close(req.Reply)
		return
	}
	if err := m.ErrForStart(); err != nil {
		req.Reply <- Response{OK: false, Error: errorCode(err)}
		close(req.Reply)
		return
	}

	_, actions := m.RequestStart(now)
	for _, a := range actions {
		if a.Kind == jobcore.ActionSpawn {
			if err := d.execSpawn(m, now); err != nil {
				req.Reply <- Response{OK: false, Error: ErrSpawnFailed}
				close(req.Reply)
				return
			}
		}
	}
	req.Reply <- Response{OK: true}
	close(req.Reply)
}

func (d *Dispatcher) handleStop(req Request, now time.Time) {
	m, ok := d.jobs[req.Job]
	if !ok {
		req.Reply <- Response{OK: false, Error: ErrUnknownJob}
		close(req.Reply)
		return
	}
	if err := m.ErrForStop(); err != nil {
		req.Reply <- Response{OK: false, Error: errorCode(err)}
		close(req.Reply)
		return
	}

	_, actions := m.RequestStop(now)
	d.applyActions(m, actions, now)
	req.Reply <- Response{OK: true}
	close(req.Reply)
}

func (d *Dispatcher) handleStatus(req Request) {
	m, ok := d.jobs[req.Job]
	if !ok {
		req.Reply <- Response{OK: false, Error: ErrUnknownJob}
		close(req.Reply)
		return
	}
	req.Reply <- Response{OK: true, Phase: m.Status()}
	close(req.Reply)
}

func (d *Dispatcher) handleListJobs(req Request) {
	jobs := make([]JobStatus, 0, len(d.cfg.JobOrder))
	for _, name := range d.cfg.JobOrder {
		jobs = append(jobs, JobStatus{Name: name, Status: d.jobs[name].Status()})
	}
	req.Reply <- Response{OK: true, Jobs: jobs}
	close(req.Reply)
}

func (d *Dispatcher) handleWait(req Request) {
	if _, ok := d.jobs[req.Job]; !ok {
		req.Reply <- Response{OK: false, Error: ErrUnknownJob}
		close(req.Reply)
		return
	}

	w := &waiter{reply: req.Reply, done: make(chan struct{})}
	d.waiters[req.Job] = append(d.waiters[req.Job], w)

	if req.Cancel != nil {
		go func() {
			select {
			case <-req.Cancel:
				select {
				case d.cancelCh <- &waiterKey{job: req.Job, w: w}:
				case <-w.done:
				}
			case <-w.done:
			}
		}()
	}
}

func (d *Dispatcher) removeWaiter(job string, w *waiter) {
	list := d.waiters[job]
	for i, candidate := range list {
		if candidate == w {
			d.waiters[job] = append(list[:i], list[i+1:]...)
			close(w.done)
			return
		}
	}
}

func (d *Dispatcher) fulfillWaiters(e jobcore.Event) {
	list := d.waiters[e.Job]
	if len(list) == 0 {
		return
	}
	delete(d.waiters, e.Job)
	for _, w := range list {
		w.reply <- Response{OK: true, Phase: e.Phase.WirePhase()}
		close(w.reply)
		close(w.done)
	}
}

// execSpawn runs the runner, wires the new pid into pidIndex, and drives
// the resulting ConfirmSpawn/FailSpawn transition. The returned error is
// non-nil only to let a direct client start-request report SpawnError;
// internally triggered spawns (restart, cooldown wake) always pass nil
// through to their caller and rely on the WARN log instead.
func (d *Dispatcher) execSpawn(m *jobcore.Machine, now time.Time) error {
	pid, err := d.runner.Spawn(m.Cfg)
	if err != nil {
		d.log.Warnf("spawn %s: %v", m.Name, err)
		m.FailSpawn()
		return err
	}
	d.pidIndex[pid] = pidEntry{job: m.Name, gen: m.Generation}
	more := m.ConfirmSpawn(pid, now)
	d.applyActions(m, more, now)
	return nil
}

func (d *Dispatcher) applyActions(m *jobcore.Machine, actions []jobcore.Action, now time.Time) {
	for _, a := range actions {
		switch a.Kind {
		case jobcore.ActionSpawn:
			_ = d.execSpawn(m, now) // error already logged

		case jobcore.ActionSignal:
			if m.PID != 0 {
				if err := d.runner.Signal(m.PID, syscall.Signal(a.Sig)); err != nil {
					d.log.Warnf("signal %s: %v", m.Name, err)
				}
			}

		case jobcore.ActionPublish:
			d.bus.Publish(a.Event)
			d.fulfillWaiters(a.Event)
			if a.Event.Phase == jobcore.Stopped {
				d.log.Infof("job %s stopped", m.Name)
			}

		case jobcore.ActionScheduleWake:
			d.cooldown.schedule(wakeItem{at: a.At, job: m.Name, gen: m.Generation})

		case jobcore.ActionCancelWake:
			// Stale heap entries are discarded by generation check in
			// WakeCooldown; nothing further to do here.
		}
	}
}

func (d *Dispatcher) handleExit(exit reaper.Exit) {
	entry, ok := d.pidIndex[exit.PID]
	if !ok {
		d.log.Debugf("reaped unknown pid %d", exit.PID)
		return
	}
	delete(d.pidIndex, exit.PID)

	m, ok := d.jobs[entry.job]
	if !ok {
		return
	}
	actions := m.ChildExited(entry.gen, exit.At)
	d.applyActions(m, actions, exit.At)
}

func (d *Dispatcher) gracefulShutdown(now time.Time) {
	for _, name := range d.cfg.JobOrder {
		m := d.jobs[name]
		if m.Phase == jobcore.Stopped {
			continue
		}
		_, actions := m.RequestStop(now)
		d.applyActions(m, actions, now)
	}

	deadline := time.NewTimer(shutdownDeadline)
	defer deadline.Stop()

	for d.anyLiveChild() {
		select {
		case exit := <-d.exits:
			d.handleExitDuringShutdown(exit)
		case <-deadline.C:
			d.killStragglers()
			d.drainRemaining()
			return
		}
	}
}

// handleExitDuringShutdown is handleExit's shutdown counterpart: it routes
// the reap through Machine.ChildExitedDuringShutdown instead of
// ChildExited so a job already signalled to stop can never be respawned
// by its own throttle while shutdown is in progress.
func (d *Dispatcher) handleExitDuringShutdown(exit reaper.Exit) {
	entry, ok := d.pidIndex[exit.PID]
	if !ok {
		d.log.Debugf("reaped unknown pid %d", exit.PID)
		return
	}
	delete(d.pidIndex, exit.PID)

	m, ok := d.jobs[entry.job]
	if !ok {
		return
	}
	actions := m.ChildExitedDuringShutdown(entry.gen, exit.At)
	d.applyActions(m, actions, exit.At)
}

func (d *Dispatcher) anyLiveChild() bool {
	return len(d.pidIndex) > 0
}

func (d *Dispatcher) killStragglers() {
	for pid := range d.pidIndex {
		if err := d.runner.Signal(pid, syscall.SIGKILL); err != nil {
			d.log.Warnf("kill straggler pid %d: %v", pid, err)
		}
	}
}

func (d *Dispatcher) drainRemaining() {
	grace := time.NewTimer(killStragglerGrace)
	defer grace.Stop()
	for d.anyLiveChild() {
		select {
		case exit := <-d.exits:
			d.handleExitDuringShutdown(exit)
		case <-grace.C:
			return
		}
	}
}

func errorCode(err error) ErrorCode {
	switch {
	case jmerrors.Is(err, jmerrors.ErrUnknownJob):
		return ErrUnknownJob
	case jmerrors.Is(err, jmerrors.ErrAlreadyRunning):
		return ErrAlreadyRunning
	case jmerrors.Is(err, jmerrors.ErrAlreadyStopped):
		return ErrAlreadyStopped
	default:
		return ErrBadRequest
	}
}
