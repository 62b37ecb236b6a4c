// Package config loads and validates the supervisor's static configuration
// document. Shell-variable expansion and YAML parsing are the config
// loader's responsibility; the core only ever sees a validated Config.
package config

import (
	"fmt"
	"os"
	"syscall"

	"github.com/adamnew123456/jobmon/internal/validator"
	"gopkg.in/yaml.v3"
)

// Config is the top-level supervisor configuration document.
type Config struct {
	// WorkDir is the supervisor's own working directory.
	WorkDir string `yaml:"work_dir"`
	// ControlEndpoint is a "unix:///path" or "tcp://host:port" descriptor
	// for the control socket.
	ControlEndpoint string `yaml:"control_endpoint"`
	// EventEndpoint is a "unix:///path" or "tcp://host:port" descriptor
	// for the event socket.
	EventEndpoint string `yaml:"event_endpoint"`
	// LogSink is a file path, or "stdout"/"stderr".
	LogSink string `yaml:"log_sink"`
	// LogLevel is one of DEBUG, INFO, WARN, ERROR, CRITICAL.
	LogLevel string `yaml:"log_level"`

	// Jobs maps job name to its configuration.
	Jobs map[string]JobConfig `yaml:"-"`
	// JobOrder preserves the insertion order of the YAML document's jobs
	// map, since spec.md requires list-jobs output to be stable and Go
	// map iteration order is not.
	JobOrder []string `yaml:"-"`
}

// JobConfig is one job's immutable configuration, per spec.md §3.
type JobConfig struct {
	Name string `yaml:"-"`
	// Command is interpreted by a POSIX shell ("/bin/sh -c Command").
	Command string `yaml:"command"`
	// Stdin, Stdout, Stderr are file paths. Stdout/Stderr are opened
	// append; Stdin is opened read-only. An empty path means the null
	// device.
	Stdin  string `yaml:"stdin"`
	Stdout string `yaml:"stdout"`
	Stderr string `yaml:"stderr"`
	// Env is an overlay applied on top of the daemon's own environment;
	// the overlay wins on key collision.
	Env map[string]string `yaml:"env"`
	// WorkDir is the child process's working directory.
	WorkDir string `yaml:"work_dir"`
	// StopSignal is sent to request termination. Defaults to SIGTERM.
	StopSignal syscall.Signal `yaml:"-"`
	StopSignalName string `yaml:"stop_signal"`
	// Autostart requests a synthetic start-request at supervisor startup.
	Autostart bool `yaml:"autostart"`
	// Restart enables the restart throttle on child exit.
	Restart bool `yaml:"restart"`
}

// yamlDoc is the literal shape of the YAML document on disk; Config.Jobs
// is populated from it in document order.
type yamlDoc struct {
	WorkDir         string             `yaml:"work_dir"`
	ControlEndpoint string             `yaml:"control_endpoint"`
	EventEndpoint   string             `yaml:"event_endpoint"`
	LogSink         string             `yaml:"log_sink"`
	LogLevel        string             `yaml:"log_level"`
	Jobs            yaml.Node          `yaml:"jobs"`
}

// Load reads and parses the configuration document at path, expands
// shell variables in its path fields, and validates it.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var doc yamlDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg := &Config{
		WorkDir:         os.Expand(doc.WorkDir, lookupEnv),
		ControlEndpoint: os.Expand(doc.ControlEndpoint, lookupEnv),
		EventEndpoint:   os.Expand(doc.EventEndpoint, lookupEnv),
		LogSink:         os.Expand(doc.LogSink, lookupEnv),
		LogLevel:        doc.LogLevel,
		Jobs:            make(map[string]JobConfig),
	}

	if err := decodeJobsInOrder(&doc.Jobs, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	for name, jc := range cfg.Jobs {
		jc.Stdin = os.Expand(jc.Stdin, lookupEnv)
		jc.Stdout = os.Expand(jc.Stdout, lookupEnv)
		jc.Stderr = os.Expand(jc.Stderr, lookupEnv)
		jc.WorkDir = os.Expand(jc.WorkDir, lookupEnv)
		cfg.Jobs[name] = jc
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// lookupEnv backs os.Expand; unset variables expand to the empty string,
// matching POSIX shell default behavior for unset-but-referenced vars.
func lookupEnv(key string) string {
	v, _ := os.LookupEnv(key)
	return v
}

// decodeJobsInOrder walks the raw "jobs" mapping node pair-by-pair so the
// document's key order survives into cfg.JobOrder.
func decodeJobsInOrder(node *yaml.Node, cfg *Config) error {
	if node.Kind == 0 {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("jobs must be a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		var jc JobConfig
		if err := node.Content[i+1].Decode(&jc); err != nil {
			return fmt.Errorf("job %q: %w", name, err)
		}
		jc.Name = name
		sig, err := parseSignal(jc.StopSignalName)
		if err != nil {
			return fmt.Errorf("job %q: %w", name, err)
		}
		jc.StopSignal = sig
		cfg.Jobs[name] = jc
		cfg.JobOrder = append(cfg.JobOrder, name)
	}
	return nil
}

// Validate enforces the structural invariants spec.md §3 assumes are
// already true by the time the core sees a Config.
func Validate(cfg *Config) error {
	v := validator.New()
	v.Assert(cfg.ControlEndpoint != "", "control_endpoint empty")
	v.Assert(cfg.EventEndpoint != "", "event_endpoint empty")

	seen := make(map[string]bool, len(cfg.JobOrder))
	for _, name := range cfg.JobOrder {
		v.Assert(name != "", "job name empty")
		v.AssertFunc(func() bool { return !seen[name] }, fmt.Sprintf("duplicate job name %q", name))
		seen[name] = true

		job := cfg.Jobs[name]
		v.AssertFunc(func() bool { return job.Command != "" }, fmt.Sprintf("job %q: command empty", name))
	}
	return v.Err()
}
