package jobcore

import (
	"os"
	"os/exec"
	"syscall"

	jmerrors "github.com/adamnew123456/jobmon/internal/errors"
)

// Runner spawns and signals child processes on behalf of the dispatcher.
// It holds no job table of its own: every call is given the JobConfig it
// needs and hands back a pid (or consumes one), exactly as spec.md §4.A
// describes.
type Runner struct {
	// Environ returns the daemon's own environment; overridable in tests.
	Environ func() []string
}

// NewRunner constructs a Runner that overlays job env on top of the
// daemon's real environment.
func NewRunner() *Runner {
	return &Runner{Environ: os.Environ}
}

// Spawn starts cfg.Command under "/bin/sh -c", wiring up stdio files and
// a fresh process group so the whole tree can be signaled at once. The
// returned pid is the shell's pid, which is also the process group
// leader's pid since Setpgid is set.
func (r *Runner) Spawn(cfg JobConfig) (pid int, err error) {
	stdin, err := openStdio(cfg.Stdin, os.O_RDONLY, 0)
	if err != nil {
		return 0, jmerrors.Spawn(cfg.Name, err)
	}
	defer stdin.Close()

	stdout, err := openStdio(cfg.Stdout, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return 0, jmerrors.Spawn(cfg.Name, err)
	}
	defer stdout.Close()

	stderr, err := openStdio(cfg.Stderr, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return 0, jmerrors.Spawn(cfg.Name, err)
	}
	defer stderr.Close()

	cmd := exec.Command("/bin/sh", "-c", cfg.Command)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Dir = cfg.WorkDir
	cmd.Env = overlayEnv(r.environ(), cfg.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}

	if err := cmd.Start(); err != nil {
		return 0, jmerrors.Spawn(cfg.Name, err)
	}

	// The child is detached from cmd.Wait(): the reaper collects it via
	// Wait4(-1, ...), not cmd.Wait. Release lets the exec package forget
	// about this *os.Process without reaping it itself.
	pid = cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return 0, jmerrors.Spawn(cfg.Name, err)
	}
	return pid, nil
}

// Signal delivers sig to the process group led by pid. ESRCH (no such
// process) is swallowed: the job may have already exited and be waiting
// on the reaper, which is not an error from the caller's perspective.
func (r *Runner) Signal(pid int, sig syscall.Signal) error {
	err := syscall.Kill(-pid, sig)
	if err != nil && err != syscall.ESRCH {
		return jmerrors.Wrap(err)
	}
	return nil
}

func (r *Runner) environ() []string {
	if r.Environ != nil {
		return r.Environ()
	}
	return os.Environ()
}

// overlayEnv appends overlay entries after base so they win on lookup;
// exec.Cmd uses the last matching "KEY=value" entry for a given key.
func overlayEnv(base []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return base
	}
	env := make([]string, len(base), len(base)+len(overlay))
	copy(env, base)
	for k, v := range overlay {
		env = append(env, k+"="+v)
	}
	return env
}

// openStdio opens path with the given flags, or os.DevNull if path is
// empty.
func openStdio(path string, flag int, perm os.FileMode) (*os.File, error) {
	if path == "" {
		path = os.DevNull
		flag = os.O_RDWR
	}
	return os.OpenFile(path, flag, perm)
}
