package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thiagokokada/gitrails/internal/graph"
)

func newFindCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "find <term>",
		Short: "List rows whose commit matches term",
		Long: "List rows whose author, message or id contains term, ignoring case.\n" +
			"Only the first --limit rows of history are searched.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runFind(cmd.Context(), args[0], limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of rows to search (0 for all)")
	return cmd
}

func (a *app) runFind(ctx context.Context, term string, limit int) error {
	s, err := a.openSession(ctx, "")
	if err != nil {
		return err
	}
	defer s.Close()

	if err := eachPage(ctx, s, limit, func([]graph.Row) error { return nil }); err != nil {
		return err
	}
	p := a.newPrinter(s.Source())
	for _, i := range s.FindRows(term) {
		rows, err := s.GraphRows(ctx, i, i+1)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(a.stdout, "%d\t%s\n", i, p.text(rows[0].Commit)); err != nil {
			return err
		}
	}
	return nil
}
