package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/thiagokokada/gitrails/internal/history"
	"github.com/thiagokokada/gitrails/internal/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	var rows int
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload history when the repository changes",
		Long: "Print the first rows of history, then print a line for every change\n" +
			"notification until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runWatch(cmd.Context(), rows)
		},
	}
	cmd.Flags().IntVarP(&rows, "rows", "n", 20, "number of rows to print after each reload")
	return cmd
}

func (a *app) runWatch(ctx context.Context, n int) error {
	s, err := a.openSession(ctx, "")
	if err != nil {
		return err
	}
	defer s.Close()

	changes, unsubscribe := s.Subscribe()
	defer unsubscribe()
	w := watch.New(a.cfg.Watch.Debounce, s.Reload)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(ctx, s.Source().RepoPath())
	})
	g.Go(func() error {
		if err := a.printHead(ctx, s, n); err != nil {
			return err
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case c, ok := <-changes:
				if !ok {
					return nil
				}
				if !c.Reload {
					if _, err := fmt.Fprintf(a.stdout, "-- rows %d..%d of %d\n", c.Start, c.End, c.Total); err != nil {
						return err
					}
					continue
				}
				if _, err := fmt.Fprintln(a.stdout, "-- reloaded"); err != nil {
					return err
				}
				if err := a.printHead(ctx, s, n); err != nil {
					return err
				}
			}
		}
	})
	return g.Wait()
}

func (a *app) printHead(ctx context.Context, s *history.Session, n int) error {
	rows, err := s.GraphRows(ctx, 0, n)
	if err != nil {
		return err
	}
	p := a.newPrinter(s.Source())
	return p.print(a.stdout, rows)
}
