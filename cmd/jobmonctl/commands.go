package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamnew123456/jobmon/internal/frontend"
	"github.com/adamnew123456/jobmon/internal/wire"
)

func jobArg(cmd *cobra.Command, args []string) error {
	return cobra.ExactArgs(1)(cmd, args)
}

func newStartCmd(a *app, exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "start <job>",
		Short: "start a job",
		Args:  jobArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimple(a, exitCode, "start", args[0])
		},
	}
}

func newStopCmd(a *app, exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <job>",
		Short: "stop a job",
		Args:  jobArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimple(a, exitCode, "stop", args[0])
		},
	}
}

func newTerminateCmd(a *app, exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "terminate",
		Short: "gracefully shut down jobmond",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimple(a, exitCode, "terminate", "")
		},
	}
}

// runSimple sends a command with no payload worth reporting beyond
// success/failure: exit 0 on ok, 1 otherwise, per spec.md §6's "every
// other command" contract.
func runSimple(a *app, exitCode *int, command, job string) error {
	if err := a.resolveEndpoints(); err != nil {
		*exitCode = 1
		return err
	}
	resp, err := call(a.controlEndpoint, wire.Request{Command: command, Job: job})
	if err != nil {
		*exitCode = 1
		return err
	}
	if !resp.OK {
		*exitCode = 1
		return fmt.Errorf("%s: %s", command, resp.Error)
	}
	return nil
}

func newStatusCmd(a *app, exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job>",
		Short: "report whether a job is running",
		Args:  jobArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.resolveEndpoints(); err != nil {
				*exitCode = 255 // "negative" truncates to 255 under Unix exit-status rules
				return err
			}
			resp, err := call(a.controlEndpoint, wire.Request{Command: "status", Job: args[0]})
			if err != nil {
				*exitCode = 255
				return err
			}
			if !resp.OK {
				*exitCode = 255
				return fmt.Errorf("status: %s", resp.Error)
			}
			phase, _ := resp.Payload.(string)
			fmt.Println(phase)
			if phase == "RUNNING" {
				*exitCode = 0
			} else {
				*exitCode = 1
			}
			return nil
		},
	}
}

func newListJobsCmd(a *app, exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "list-jobs",
		Short: "list every configured job and its phase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.resolveEndpoints(); err != nil {
				*exitCode = 1
				return err
			}
			resp, err := call(a.controlEndpoint, wire.Request{Command: "list-jobs"})
			if err != nil {
				*exitCode = 1
				return err
			}
			if !resp.OK {
				*exitCode = 1
				return fmt.Errorf("list-jobs: %s", resp.Error)
			}
			printJobEntries(resp.Payload)
			return nil
		},
	}
}

// printJobEntries renders the "RUNNING <name>" / "STOPPED <name>" lines
// spec.md §6 specifies for both list-jobs and listen output.
func printJobEntries(payload interface{}) {
	entries, ok := payload.([]interface{})
	if !ok {
		return
	}
	for _, raw := range entries {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		status, _ := m["status"].(string)
		fmt.Printf("%s %s\n", status, name)
	}
}

func newWaitCmd(a *app, exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "wait <job>",
		Short: "block until a job's next phase transition",
		Args:  jobArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.resolveEndpoints(); err != nil {
				*exitCode = 1
				return err
			}
			resp, err := call(a.controlEndpoint, wire.Request{Command: "wait", Job: args[0]})
			if err != nil {
				*exitCode = 1
				return err
			}
			if !resp.OK {
				*exitCode = 1
				return fmt.Errorf("wait: %s", resp.Error)
			}
			phase, _ := resp.Payload.(string)
			fmt.Println(phase)
			return nil
		},
	}
}

func newListenCmd(a *app, exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "stream job phase transitions as they occur",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.resolveEndpoints(); err != nil {
				*exitCode = 1
				return err
			}
			conn, err := frontend.Dial(a.eventEndpoint)
			if err != nil {
				*exitCode = 1
				return err
			}
			defer conn.Close()

			scanner := wire.NewScanner(conn)
			for {
				var evt wire.Event
				if err := scanner.Next(&evt); err != nil {
					return nil
				}
				fmt.Printf("%s %s\n", evt.Status, evt.Job)
			}
		},
	}
}
