package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/canopy"
	"github.com/aretw0/canopy/internal/presentation/tui"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/feedback"
	"github.com/aretw0/canopy/pkg/runner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Read tasks from stdin and run them interactively",
	Long: `Starts an interactive loop: one task per line. Ctrl+C interrupts the
current run; Ctrl+C while idle, EOF or "exit" quits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		headless, _ := cmd.Flags().GetBool("headless")
		interactive := !headless && tui.IsInteractive(os.Stdin)

		var r *runner.Runner
		ask := feedback.SourceFunc(func(ctx context.Context, cp *domain.Checkpoint) (string, error) {
			return r.Ask(ctx, cp)
		})

		opts := []canopy.Option{
			canopy.WithLogger(logger),
			canopy.WithFeedbackSource(ask),
		}
		if interactive {
			opts = append(opts, canopy.WithConsole(os.Stdout))
		}
		engine, err := canopy.New(cmd.Context(), cfg, opts...)
		if err != nil {
			return err
		}
		defer engine.Close()

		renderer := runner.ContentRenderer(tui.PlainRenderer)
		if interactive {
			tui.PrintBanner(os.Stdout)
			renderer = runner.ContentRenderer(tui.RendererFor(os.Stdout))
		}

		r = runner.New(engine,
			runner.WithIO(os.Stdin, os.Stdout),
			runner.WithHeadless(!interactive),
			runner.WithRenderer(renderer),
			runner.WithLogger(logger),
		)
		return r.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("headless", false, "No banner, prompt or console tee (for piped input)")
}
