// Package cmd implements the gitrails command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thiagokokada/gitrails/internal/buildinfo"
	"github.com/thiagokokada/gitrails/internal/config"
	"github.com/thiagokokada/gitrails/internal/git"
	"github.com/thiagokokada/gitrails/internal/git/backend"
	"github.com/thiagokokada/gitrails/internal/history"
)

func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
}

// app carries what subcommands share once the root command has run.
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer

	repoPath   string
	configFile string
	verbose    bool
	closeLog   func() error
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: config.New(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "gitrails",
		Short:         "Lay out git history as rails",
		Version:       buildinfo.Read().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.closeLog != nil {
				return a.closeLog()
			}
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.repoPath, "repo", "C", ".", "path inside the repository")
	flags.StringVar(&a.configFile, "config", "", "config file (default: gitrails.yaml in the repository or user config dir)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose logging")
	flags.String("backend", string(backend.KindNative), "git backend: native or gitcli")
	flags.String("color", string(config.ColorAuto), "color mode: auto, light, dark, or never")
	flags.Bool("stash", false, "show the latest stash entry as the first row")
	flags.Int("slack", history.DefaultSlack, "extra rows loaded past each request")
	flags.Int("lookahead", history.DefaultLookahead, "rows added to the total estimate while history is pending")

	root.AddCommand(
		newLogCmd(a),
		newFindCmd(a),
		newShowCmd(a),
		newWatchCmd(a),
		newVersionCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()
	for _, key := range []string{"backend", "color", "stash", "slack", "lookahead"} {
		if err := a.v.BindPFlag(key, flags.Lookup(key)); err != nil {
			return fmt.Errorf("bind flag %s: %w", key, err)
		}
	}
	repoPath, err := filepath.Abs(a.repoPath)
	if err != nil {
		return fmt.Errorf("resolve repository path: %w", err)
	}
	a.repoPath = repoPath

	cfg, err := config.Load(a.v, repoPath, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	closeLog, err := setupLogging(cfg.Log, a.verbose, a.stderr)
	if err != nil {
		return err
	}
	a.closeLog = closeLog
	return nil
}

func (a *app) openSource() (git.Source, error) {
	kind, err := backend.ParseKind(a.cfg.Backend)
	if err != nil {
		return nil, err
	}
	return backend.Open(kind, a.repoPath)
}

func (a *app) openSession(ctx context.Context, pathspec string) (*history.Session, error) {
	src, err := a.openSource()
	if err != nil {
		return nil, err
	}
	opts := a.cfg.HistoryOptions()
	opts.Pathspec = pathspec
	s, err := history.Open(ctx, src, opts)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	return s, nil
}
