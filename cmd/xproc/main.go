package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all subcommands.
type GlobalFlags struct {
	Root       string // control root directory
	ConfigPath string // optional TOML config
}

// EnsureFlags holds flags for the ensure command.
type EnsureFlags struct {
	Name    string
	Restart bool
}

// TerminateFlags holds flags for the terminate command.
type TerminateFlags struct {
	Name string
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	Addr     string
	BasePath string
	Metrics  bool
}

func defaultRoot() string {
	if v := os.Getenv("XPROC_ROOT"); v != "" {
		return v
	}
	return filepath.Join(os.TempDir(), "xproc")
}

// buildRoot creates the root command and wires all subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	ensureFlags := &EnsureFlags{}
	terminateFlags := &TerminateFlags{}
	serveFlags := &ServeFlags{}

	xc := command{flags: globalFlags, out: os.Stdout}

	root := &cobra.Command{
		Use:   "xproc",
		Short: "External process supervision for test harnesses",
		Long: `Xproc tracks named external processes in a control root directory.
Each process gets its own control directory holding its pid file and
captured log, so tracked processes survive the invoking program.

Examples:
  xproc ensure --config=xproc.toml --name=db
  xproc list
  xproc terminate --name=db
  xproc serve --config=xproc.toml --addr=:8379`,
	}
	root.PersistentFlags().StringVar(&globalFlags.Root, "root", defaultRoot(), "control root directory")
	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "path to TOML config file")

	ensure := &cobra.Command{
		Use:   "ensure",
		Short: "Launch configured processes that are not already live",
		Long: `Ensure launches the named process from the config file unless a live
instance is already tracked, then waits for its readiness pattern.
Without --name every configured process is ensured in order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return xc.Ensure(*ensureFlags)
		},
	}
	ensure.Flags().StringVar(&ensureFlags.Name, "name", "", "process name from config (default: all)")
	ensure.Flags().BoolVar(&ensureFlags.Restart, "restart", false, "terminate a live instance and relaunch")

	list := &cobra.Command{
		Use:   "list",
		Short: "List tracked processes and their liveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			return xc.List()
		},
	}

	terminate := &cobra.Command{
		Use:   "terminate",
		Short: "Terminate tracked processes",
		Long: `Terminate sends SIGTERM to the named tracked process and escalates to
SIGKILL after half the timeout. Without --name every tracked process is
terminated. The exit status is zero only when at least one process was
actually terminated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return xc.Terminate(*terminateFlags)
		},
	}
	terminate.Flags().StringVar(&terminateFlags.Name, "name", "", "process name (default: all)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return xc.Serve(*serveFlags)
		},
	}
	serve.Flags().StringVar(&serveFlags.Addr, "addr", ":8379", "listen address")
	serve.Flags().StringVar(&serveFlags.BasePath, "base-path", "/xproc", "API base path")
	serve.Flags().BoolVar(&serveFlags.Metrics, "metrics", true, "expose /metrics on the same listener")

	root.AddCommand(ensure, list, terminate, serve)
	return root
}
