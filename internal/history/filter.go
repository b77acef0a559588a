package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/thiagokokada/gitrails/internal/git"
)

// loadFiltered walks all of history from starts and returns the commits that
// touch path, children first. Parents of kept commits are rewritten through
// elided commits so the graph stays connected, then reduced.
func loadFiltered(ctx context.Context, src git.Source, starts []string, path string, maxDepth int) ([]*git.Commit, error) {
	iter, err := src.Iterate(ctx, starts, nil)
	if err != nil {
		return nil, fmt.Errorf("walk history: %w", err)
	}
	defer iter.Close()

	var kept []*git.Commit
	elided := map[string][]string{}
	for {
		c, err := iter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, git.ErrSourceCorrupt) {
			slog.Warn("skipping unreadable commit", slog.Any("error", err))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("walk history: %w", err)
		}
		touched, err := src.HasChanges(c, path)
		if err != nil {
			slog.Warn("pathspec check failed, keeping commit",
				slog.String("commit", c.ShortID),
				slog.String("path", path),
				slog.Any("error", err))
			touched = true
		}
		if touched {
			kept = append(kept, c)
		} else {
			elided[c.ID] = c.GraphParents()
		}
	}
	slog.Debug("pathspec filter",
		slog.String("path", path),
		slog.Int("kept", len(kept)),
		slog.Int("elided", len(elided)))

	inView := make(map[string]struct{}, len(kept))
	for _, c := range kept {
		inView[c.ID] = struct{}{}
	}
	rewritten := make([]*git.Commit, len(kept))
	for i, c := range kept {
		parents := expandParents(c.GraphParents(), elided)
		parents = slices.DeleteFunc(parents, func(id string) bool {
			_, ok := inView[id]
			return !ok
		})
		refs := make([]git.ParentRef, len(parents))
		for j, id := range parents {
			refs[j] = git.NewParentRef(id)
		}
		rewritten[i] = c.WithParents(refs)
	}
	return reduce(rewritten, maxDepth), nil
}

// expandParents replaces elided ids by their own parents, recursively,
// keeping the first occurrence of each id.
func expandParents(parents []string, elided map[string][]string) []string {
	var out []string
	visited := map[string]struct{}{}
	stack := slices.Clone(parents)
	slices.Reverse(stack)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}
		if next, ok := elided[id]; ok {
			for _, p := range slices.Backward(next) {
				stack = append(stack, p)
			}
			continue
		}
		out = append(out, id)
	}
	return out
}
