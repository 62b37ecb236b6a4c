// Command jobmonctl is the CLI client for jobmond's control and event
// endpoints; spec.md §1 treats the CLI as an external collaborator, with
// only the wire contract in §6 specified.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adamnew123456/jobmon/internal/config"
)

// app holds the resolved endpoints every subcommand dials.
type app struct {
	configPath      string
	controlEndpoint string
	eventEndpoint   string
}

func (a *app) resolveEndpoints() error {
	if a.controlEndpoint != "" && a.eventEndpoint != "" {
		return nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", a.configPath, err)
	}
	if a.controlEndpoint == "" {
		a.controlEndpoint = cfg.ControlEndpoint
	}
	if a.eventEndpoint == "" {
		a.eventEndpoint = cfg.EventEndpoint
	}
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	a := &app{}

	root := &cobra.Command{
		Use:   "jobmonctl",
		Short: "control and observe jobs managed by jobmond",
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "/etc/jobmon/jobmon.yaml", "path to the jobmon configuration document")
	root.PersistentFlags().StringVar(&a.controlEndpoint, "control", "", "control endpoint, overriding the config file")
	root.PersistentFlags().StringVar(&a.eventEndpoint, "event", "", "event endpoint, overriding the config file")

	exitCode := 0
	root.AddCommand(
		newStartCmd(a, &exitCode),
		newStopCmd(a, &exitCode),
		newStatusCmd(a, &exitCode),
		newListJobsCmd(a, &exitCode),
		newWaitCmd(a, &exitCode),
		newListenCmd(a, &exitCode),
		newTerminateCmd(a, &exitCode),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if exitCode == 0 {
			exitCode = 1
		}
	}
	return exitCode
}
