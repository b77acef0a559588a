package history

import (
	"log/slog"

	"github.com/thiagokokada/gitrails/internal/git"
)

// DefaultMaxDepth bounds the reachability search of the transitive reduction.
const DefaultMaxDepth = 10000

// reduce removes parent edges that are implied by another parent: p is
// dropped from c when a different parent q of c reaches p. Commits are
// replaced, never modified.
func reduce(commits []*git.Commit, maxDepth int) []*git.Commit {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	adjacency := make(map[string][]string, len(commits))
	for _, c := range commits {
		adjacency[c.ID] = c.GraphParents()
	}

	out := make([]*git.Commit, len(commits))
	for i, c := range commits {
		out[i] = c
		parents := adjacency[c.ID]
		if len(parents) < 2 {
			continue
		}
		keep := make([]git.ParentRef, 0, len(c.Parents))
		for _, p := range c.Parents {
			redundant := false
			for _, q := range parents {
				if q != p.ID && reaches(adjacency, q, p.ID, maxDepth) {
					redundant = true
					break
				}
			}
			if !redundant {
				keep = append(keep, p)
			}
		}
		if len(keep) != len(c.Parents) {
			slog.Debug("reduced parents",
				slog.String("commit", c.ShortID),
				slog.Int("from", len(c.Parents)),
				slog.Int("to", len(keep)))
			out[i] = c.WithParents(keep)
		}
	}
	return out
}

// reaches reports whether to is an ancestor of from. The search gives up
// after visiting maxDepth commits and then reports false, which keeps the
// edge being tested.
func reaches(adjacency map[string][]string, from, to string, maxDepth int) bool {
	visited := map[string]struct{}{from: {}}
	stack := []string{from}
	for steps := 0; len(stack) > 0; steps++ {
		if steps >= maxDepth {
			return false
		}
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range adjacency[id] {
			if next == to {
				return true
			}
			if _, ok := visited[next]; ok {
				continue
			}
			visited[next] = struct{}{}
			stack = append(stack, next)
		}
	}
	return false
}
