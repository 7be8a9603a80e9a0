package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"tools.zach/dev/ccrpc/internal/hook"
	"tools.zach/dev/ccrpc/internal/statusline"
)

// dataDirFunc returns the --data-dir value once flags are parsed.
type dataDirFunc func() string

// ///////////////////////////////////////////////
// Hook Commands
// ///////////////////////////////////////////////

func newStartCmd(dir dataDirFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Begin or resume a session (SessionStart hook)",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			a := newApp(dir(), "start")
			defer a.Close()

			var in hook.StartInput
			hook.DecodeInput(hook.InputReader(os.Stdin), &in, a.log)
			hook.Start(a.env(cmd.OutOrStdout()), in)
		},
	}
}

func newUpdateCmd(dir dataDirFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Record the current tool (PreToolUse hook)",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			a := newApp(dir(), "update")
			defer a.Close()

			var in hook.UpdateInput
			hook.DecodeInput(hook.InputReader(os.Stdin), &in, a.log)
			hook.Update(a.env(cmd.OutOrStdout()), in)
		},
	}
}

func newStopCmd(dir dataDirFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "End the session and stop the daemon (SessionEnd hook)",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			a := newApp(dir(), "stop")
			defer a.Close()
			hook.Stop(a.env(cmd.OutOrStdout()))
		},
	}
}

func newStatusCmd(dir dataDirFunc) *cobra.Command {
	var logLines int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and session status",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			a := newApp(dir(), "status")
			defer a.Close()
			hook.Status(a.env(cmd.OutOrStdout()), logLines)
		},
	}
	cmd.Flags().IntVar(&logLines, "log", 0, "also print the last N lines of daemon.log")
	return cmd
}

func newStatuslineCmd(dir dataDirFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "statusline",
		Short: "Merge token usage and print a status line (statusLine command)",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			a := newApp(dir(), "statusline")
			defer a.Close()

			if err := statusline.Run(hook.InputReader(os.Stdin), cmd.OutOrStdout(), a.store(), time.Now(), a.log); err != nil {
				a.log.Debug("writing status line failed", "error", err)
			}
		},
	}
}

// ///////////////////////////////////////////////
// Other Commands
// ///////////////////////////////////////////////

func newDaemonCmd(dir dataDirFunc) *cobra.Command {
	return &cobra.Command{
		Use:    "daemon",
		Short:  "Run the presence daemon in the foreground",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), dir())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "ccrpc "+resolveVersion())
		},
	}
}
