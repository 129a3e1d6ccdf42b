package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	ctx := newCommandContext(&configPath)

	root := &cobra.Command{
		Use:           "audio-analyzer",
		Short:         "Transcribe, classify and index audio",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			ctx.close()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	root.AddCommand(
		newServeCommand(ctx),
		newAnalyzeCommand(ctx),
		newKeywordsCommand(ctx),
		newStatsCommand(ctx),
		newConfigCommand(ctx),
	)
	return root
}
