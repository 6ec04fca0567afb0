package main

import (
	"github.com/spf13/cobra"

	"detectd/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the detection daemon in the foreground",
		Long: "Run the detection daemon in the foreground until SIGINT or SIGTERM.\n" +
			"A job in progress when the signal arrives is finished before exit.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: ctx.logLevel()})
		},
	}
}
