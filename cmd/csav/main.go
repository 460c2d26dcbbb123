package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/andreyvit/csav"
	"github.com/andreyvit/csav/bpstore"
	"github.com/andreyvit/csav/config"
	"github.com/andreyvit/csav/objgraph"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is the state shared by all subcommands, set up once flags are parsed.
type app struct {
	configPath string
	verbose    bool
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
	reg    *objgraph.Registry
	store  *bpstore.Store
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if cerr := a.close(err == nil); err == nil {
		err = cerr
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "csav",
		Short:         "Inspect, verify and rewrite save files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	addCommonFlags(root.PersistentFlags(), a)

	root.AddCommand(newInfoCmd(a))
	root.AddCommand(newTreeCmd(a))
	root.AddCommand(newDumpCmd(a))
	root.AddCommand(newVerifyCmd(a))
	root.AddCommand(newResaveCmd(a))
	root.AddCommand(newExportCmd(a))
	return root
}

func addCommonFlags(fs *pflag.FlagSet, a *app) {
	fs.StringVar(&a.configPath, "config", "", "config file (default $"+config.EnvVar+")")
	fs.BoolVarP(&a.verbose, "verbose", "v", false, "log debug details")
	fs.StringVar(&a.logLevel, "log-level", "", "override log_level from the config")
}

func (a *app) setup(cmd *cobra.Command) error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFile(a.configPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if a.verbose {
		a.cfg.Verbose = true
	}
	if a.logLevel != "" {
		a.cfg.LogLevel = a.logLevel
		if err := a.cfg.Validate(); err != nil {
			return err
		}
	}

	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: a.cfg.Level()}))
	a.reg = objgraph.NewRegistry()
	a.reg.RegisterEnum(a.cfg.Enums...)

	if a.cfg.BlueprintDB != "" {
		a.store, err = bpstore.Open(a.cfg.BlueprintDB, bpstore.Options{Context: cmd.Context(), Logger: a.logger})
		if err != nil {
			return err
		}
		if _, err := a.store.Load(a.reg); err != nil {
			return err
		}
	}
	return nil
}

// close persists blueprints learned during a successful command.
func (a *app) close(save bool) error {
	if a.store == nil {
		return nil
	}
	var err error
	if save {
		err = a.store.Save(a.reg)
	} else {
		a.logger.Debug("csav: command failed, blueprints not saved")
	}
	if cerr := a.store.Close(); err == nil {
		err = cerr
	}
	a.store = nil
	return err
}

func (a *app) csavOptions(ctx context.Context) csav.Options {
	return csav.Options{
		Context:     ctx,
		Logger:      a.logger,
		Verbose:     a.cfg.Verbose,
		MaxFileSize: a.cfg.MaxFileSize,
		SkipBackup:  !a.cfg.Backup,
	}
}

func (a *app) objgraphOptions(ctx context.Context) objgraph.Options {
	return objgraph.Options{
		Context: ctx,
		Logger:  a.logger,
		Verbose: a.cfg.Verbose,
	}
}

func (a *app) open(cmd *cobra.Command, path string) (*csav.File, error) {
	return csav.Open(path, a.csavOptions(cmd.Context()))
}
