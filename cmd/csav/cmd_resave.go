package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/andreyvit/csav"
	"github.com/andreyvit/csav/progress"
)

const progressInterval = 500 * time.Millisecond

func newResaveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resave PATH [OUT]",
		Short: "Decode and re-encode a save file, keeping a backup of the original",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			in, out := args[0], args[0]
			if len(args) > 1 {
				out = args[1]
			}

			runner := &progress.Runner{Logger: a.logger}
			var f *csav.File
			err := a.runJob(ctx, runner, "open", func(p *progress.Progress) error {
				o := a.csavOptions(ctx)
				o.Progress = p
				var err error
				f, err = csav.Open(in, o)
				return err
			})
			if err != nil {
				return err
			}
			return a.runJob(ctx, runner, "save", func(p *progress.Progress) error {
				o := a.csavOptions(ctx)
				o.Progress = p
				return csav.Save(out, f, o)
			})
		},
	}
}

// runJob runs fn on runner and logs its progress until it finishes.
func (a *app) runJob(ctx context.Context, runner *progress.Runner, name string, fn func(p *progress.Progress) error) error {
	if err := runner.Start(name, fn); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(progressInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				v, comment := runner.Progress().Snapshot()
				a.logger.LogAttrs(ctx, slog.LevelInfo, "csav: progress", slog.String("job", name), slog.Float64("value", v), slog.String("stage", comment))
			}
		}
	}()
	err := runner.Wait()
	close(done)
	return err
}
