package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"

	"github.com/thiagokokada/gitrails/internal/git"
)

func newShowCmd(a *app) *cobra.Command {
	var stat bool
	cmd := &cobra.Command{
		Use:   "show <commit>",
		Short: "Print a commit and its patch",
		Long:  "Print a commit and its patch. \"stash\" names the latest stash entry.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runShow(cmd.Context(), args[0], stat)
		},
	}
	cmd.Flags().BoolVar(&stat, "stat", false, "print changed files instead of the patch")
	return cmd
}

func (a *app) runShow(ctx context.Context, ref string, stat bool) error {
	src, err := a.openSource()
	if err != nil {
		return err
	}
	defer src.Close()

	c, err := lookupCommit(ctx, src, ref)
	if err != nil {
		return err
	}
	patch, err := src.Patch(c.ID)
	if err != nil {
		return err
	}
	t := newTheme(a.cfg.Color, a.stdout)
	if _, err := io.WriteString(a.stdout, git.FormatCommitHeader(c)); err != nil {
		return err
	}
	if patch == "" {
		return nil
	}
	if _, err := io.WriteString(a.stdout, "\n"); err != nil {
		return err
	}
	if stat {
		return writeStat(a.stdout, git.PatchFiles(patch))
	}
	return writePatch(a.stdout, patch, t.chromaStyle())
}

func writeStat(w io.Writer, files []git.PatchFile) error {
	width := 0
	for _, f := range files {
		width = max(width, len(f.Path))
	}
	var added, deleted int
	for _, f := range files {
		change := fmt.Sprintf("+%d -%d", f.Added, f.Deleted)
		if f.Binary {
			change = "Bin"
		}
		if _, err := fmt.Fprintf(w, " %-*s | %s\n", width, f.Path, change); err != nil {
			return err
		}
		added += f.Added
		deleted += f.Deleted
	}
	_, err := fmt.Fprintf(w, " %s changed, %s(+), %s(-)\n",
		english.Plural(len(files), "file", ""), english.Plural(added, "insertion", ""), english.Plural(deleted, "deletion", ""))
	return err
}

// lookupCommit resolves ref, with "stash" naming the latest stash entry.
func lookupCommit(ctx context.Context, src git.Source, ref string) (*git.Commit, error) {
	if ref == "stash" || ref == "stash@{0}" {
		stash, err := src.Stash()
		if err != nil {
			return nil, err
		}
		if stash == nil {
			return nil, fmt.Errorf("%w: no stash entries", git.ErrInvalidID)
		}
		return stash, nil
	}
	id, err := src.Resolve(ref)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ref, err)
	}
	iter, err := src.Iterate(ctx, []string{id}, nil)
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	c, err := iter.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s", git.ErrInvalidID, ref)
		}
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	return c, nil
}

// writePatch writes patch, highlighted with style when it is not nil.
func writePatch(w io.Writer, patch string, style *chroma.Style) error {
	if style == nil {
		_, err := io.WriteString(w, patch)
		return err
	}
	lexer := lexers.Get("diff")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	iterator, err := chroma.Coalesce(lexer).Tokenise(nil, patch)
	if err != nil {
		return fmt.Errorf("highlight patch: %w", err)
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}
	if err := formatter.Format(w, style, iterator); err != nil {
		return err
	}
	if !strings.HasSuffix(patch, "\n") {
		_, err = io.WriteString(w, "\n")
	}
	return err
}
