package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/asheshgoplani/pshaw/internal/replicator"
)

func (a *app) createCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create <label>",
		Short: "Start a new named session and attach to it",
		Long: `Create the session directory for <label> and start a shell bound to it.
If the session already exists this behaves like connect.

The exit status is the shell's.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := a.controller()
			if err != nil {
				return a.fail(err)
			}
			code, err := ctrl.Create(context.Background(), args[0])
			if err != nil {
				return a.fail(err)
			}
			a.status = code
			return nil
		},
	}
}

func (a *app) connectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <label>",
		Short: "Reattach to an existing session",
		Long: `Replay the session's output, then start a shell with its history loaded and
its last working directory restored.

The exit status is the shell's.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := a.controller()
			if err != nil {
				return a.fail(err)
			}
			code, err := ctrl.Connect(context.Background(), args[0])
			if err != nil {
				return a.fail(err)
			}
			a.status = code
			return nil
		},
	}
}

func (a *app) tailCommand() *cobra.Command {
	var (
		follow bool
		bytes  int64
	)
	cmd := &cobra.Command{
		Use:   "tail <label>",
		Short: "Print a session's log without attaching",
		Long: `Print the recorded output of <label>. With -f keep printing as the attached
shell produces more. tail never takes the session lock, so it works while
someone else is attached.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := a.controller()
			if err != nil {
				return a.fail(err)
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.fail(ctrl.Tail(ctx, args[0], a.stdout, replicator.FollowOptions{
				Tail:   bytes,
				Follow: follow,
			}))
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing appended output")
	cmd.Flags().Int64VarP(&bytes, "bytes", "n", 0, "print only the last N bytes")
	return cmd
}
