package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/thiagokokada/gitrails/internal/git"
	"github.com/thiagokokada/gitrails/internal/graph"
	"github.com/thiagokokada/gitrails/internal/history"
)

const logPageSize = 100

var now = time.Now

type logOptions struct {
	limit    int
	pathspec string
	json     bool
}

func newLogCmd(a *app) *cobra.Command {
	var opts logOptions
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the commit graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runLog(cmd.Context(), opts)
		},
	}
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "maximum number of rows to print (0 for all)")
	cmd.Flags().StringVar(&opts.pathspec, "path", "", "only show commits touching this path")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print one JSON row per line")
	return cmd
}

func (a *app) runLog(ctx context.Context, opts logOptions) error {
	s, err := a.openSession(ctx, opts.pathspec)
	if err != nil {
		return err
	}
	defer s.Close()

	p := a.newPrinter(s.Source())
	if opts.json {
		enc := json.NewEncoder(a.stdout)
		return eachPage(ctx, s, opts.limit, func(rows []graph.Row) error {
			for _, row := range rows {
				if err := enc.Encode(row); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return eachPage(ctx, s, opts.limit, func(rows []graph.Row) error {
		return p.print(a.stdout, rows)
	})
}

// eachPage calls fn with consecutive pages of rows until history or limit
// is exhausted.
func eachPage(ctx context.Context, s *history.Session, limit int, fn func([]graph.Row) error) error {
	for start := 0; limit <= 0 || start < limit; {
		end := start + logPageSize
		if limit > 0 {
			end = min(end, limit)
		}
		rows, err := s.GraphRows(ctx, start, end)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return ctx.Err()
		}
		if err := fn(rows); err != nil {
			return err
		}
		start += len(rows)
	}
	return nil
}

type printer struct {
	theme  theme
	labels map[string][]string
	now    time.Time
}

func (a *app) newPrinter(src git.Source) printer {
	labels, err := src.Labels()
	if err != nil {
		slog.Warn("read ref labels", slog.Any("error", err))
	}
	return printer{theme: newTheme(a.cfg.Color, a.stdout), labels: labels, now: now()}
}

func (p printer) print(w io.Writer, rows []graph.Row) error {
	width := 0
	for _, row := range rows {
		width = max(width, row.Width())
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(w, p.line(row, width)); err != nil {
			return err
		}
	}
	return nil
}

func (p printer) line(row graph.Row, width int) string {
	var b strings.Builder
	cells := row.Cells()
	visible := len(cells)
	for visible > 0 && cells[visible-1] == graph.GlyphEmpty {
		visible--
	}
	for i, c := range cells[:visible] {
		if i > 0 {
			b.WriteByte(' ')
		}
		switch c {
		case graph.GlyphCommit:
			b.WriteString(p.theme.commit(string(c)))
		case graph.GlyphEmpty:
			b.WriteRune(c)
		default:
			b.WriteString(p.theme.rail(i, string(c)))
		}
	}
	b.WriteString(strings.Repeat(" ", 2*width+1-max(2*visible-1, 0)))
	b.WriteString(p.text(row.Commit))
	return b.String()
}

func (p printer) text(c *git.Commit) string {
	var b strings.Builder
	b.WriteString(p.theme.id(c.ShortID))
	labels := p.labels[c.ID]
	if c.IsStash() && c.RefName != "" {
		labels = []string{c.RefName}
	}
	if len(labels) > 0 {
		b.WriteString(" (")
		b.WriteString(p.theme.label(strings.Join(labels, ", ")))
		b.WriteString(")")
	}
	b.WriteByte(' ')
	b.WriteString(git.Subject(c))
	when := humanize.RelTime(c.Author.When, p.now, "ago", "from now")
	b.WriteByte(' ')
	b.WriteString(p.theme.muted(fmt.Sprintf("(%s, %s)", c.Author.Name, when)))
	return b.String()
}
