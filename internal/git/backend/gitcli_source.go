package backend

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/thiagokokada/gitrails/internal/git"
)

func (g *CLI) headState() (hash string, headName string, err error) {
	hash, err = g.revParse("HEAD")
	if err != nil || hash == "" {
		return "", "", err
	}
	ref, err := g.runGitCommand(context.Background(), []string{"symbolic-ref", "-q", "--short", "HEAD"}, true, "git symbolic-ref")
	if err != nil {
		return "", "", err
	}
	return hash, strings.TrimSpace(ref), nil
}

func (g *CLI) StartingPoints() ([]string, error) {
	head, _, err := g.headState()
	if err != nil {
		return nil, fmt.Errorf("read HEAD: %w: %w", git.ErrSourceUnavailable, err)
	}
	refs, err := g.listRefs()
	if err != nil {
		return nil, fmt.Errorf("list branches: %w: %w", git.ErrSourceUnavailable, err)
	}
	ids := []string{head}
	for _, ref := range refs {
		if ref.Kind == RefKindBranch {
			ids = append(ids, ref.Hash)
		}
	}
	return dedupe(ids), nil
}

func (g *CLI) Iterate(ctx context.Context, starts []string, skip func(id string) bool) (git.CommitIter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	starts = dedupe(append([]string(nil), starts...))
	if len(starts) == 0 {
		return emptyIter{}, nil
	}
	args := append([]string{"log", "--date-order"}, starts...)
	stream, err := startGitLogStream(ctx, g.path, args)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", git.ErrSourceUnavailable, err)
	}
	stream.skip = skip
	return stream, nil
}

func (g *CLI) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("resolve: %w: empty reference", git.ErrInvalidID)
	}
	id, err := g.revParse(ref)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("resolve %q: %w", ref, git.ErrInvalidID)
	}
	return id, nil
}

func (g *CLI) HasChanges(c *git.Commit, path string) (bool, error) {
	path = cleanPathspec(path)
	if path == "" {
		return true, nil
	}
	ctx := context.Background()
	if len(c.Parents) == 0 {
		out, err := g.runGitCommand(ctx, []string{"ls-tree", "--name-only", c.ID, "--", path}, false, "git ls-tree")
		if err != nil {
			return false, fmt.Errorf("%w: %w", git.ErrSourceCorrupt, err)
		}
		return strings.TrimSpace(out) != "", nil
	}
	for _, p := range c.Parents {
		out, err := g.runGitCommand(ctx, []string{"diff", "--name-only", "--no-renames", p.ID, c.ID, "--", path}, false, "git diff")
		if err != nil {
			return false, fmt.Errorf("%w: %w", git.ErrSourceCorrupt, err)
		}
		if strings.TrimSpace(out) != "" {
			return true, nil
		}
	}
	return false, nil
}

func (g *CLI) Labels() (map[string][]string, error) {
	refs, err := g.listRefs()
	if err != nil {
		return nil, err
	}
	hash, branch, err := g.headState()
	if err != nil {
		return nil, err
	}
	return buildLabels(refs, hash, branch), nil
}

func (g *CLI) listRefs() ([]Ref, error) {
	out, err := g.runGitCommand(context.Background(), []string{"show-ref", "--dereference"}, true, "git show-ref")
	if err != nil {
		return nil, err
	}
	return parseRefsFromShowRef(out)
}

func (g *CLI) Stash() (*git.Commit, error) {
	id, err := g.revParse("refs/stash")
	if err != nil || id == "" {
		return nil, err
	}
	stream, err := startGitLogStream(context.Background(), g.path, []string{"log", "-1", id})
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	c, err := stream.Next()
	if err != nil {
		return nil, fmt.Errorf("read stash: %w", err)
	}
	c.Kind = git.KindStash
	c.RefName = "stash@{0}"
	return c, nil
}

func (g *CLI) Patch(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("patch: %w: commit not specified", git.ErrInvalidID)
	}
	parent, err := g.revParse(id + "^1")
	if err != nil {
		return "", err
	}
	ctx := context.Background()
	if parent != "" {
		return g.runGitCommand(ctx, []string{"diff", "--no-color", parent, id}, true, "git diff")
	}
	return g.runGitCommand(ctx, []string{"show", "--no-color", "--pretty=format:", id}, false, "git show")
}

func parseRefsFromShowRef(out string) ([]Ref, error) {
	type refEntry struct {
		hash string
		ref  string
	}

	peeledByTagRef := map[string]string{}
	var entries []refEntry

	for rawLine := range strings.SplitSeq(out, "\n") {
		line := strings.TrimRight(rawLine, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return nil, fmt.Errorf("unexpected show-ref output line: %q", rawLine)
		}
		hash, refName := parts[0], parts[1]
		if base, ok := strings.CutSuffix(refName, "^{}"); ok {
			if base != "" {
				peeledByTagRef[base] = hash
			}
			continue
		}
		entries = append(entries, refEntry{hash: hash, ref: refName})
	}

	var refs []Ref
	for _, entry := range entries {
		var ref Ref
		switch {
		case strings.HasPrefix(entry.ref, "refs/tags/"):
			hash := entry.hash
			if peeled, ok := peeledByTagRef[entry.ref]; ok && peeled != "" {
				hash = peeled
			}
			ref = Ref{Hash: hash, Kind: RefKindTag, Name: strings.TrimPrefix(entry.ref, "refs/tags/")}
		case strings.HasPrefix(entry.ref, "refs/heads/"):
			ref = Ref{Hash: entry.hash, Kind: RefKindBranch, Name: strings.TrimPrefix(entry.ref, "refs/heads/")}
		case strings.HasPrefix(entry.ref, "refs/remotes/"):
			ref = Ref{Hash: entry.hash, Kind: RefKindRemoteBranch, Name: strings.TrimPrefix(entry.ref, "refs/remotes/")}
		case entry.ref == "refs/stash":
			ref = Ref{Hash: entry.hash, Kind: RefKindStash, Name: "stash"}
		default:
			continue
		}
		if ref.Name == "" {
			continue
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

type emptyIter struct{}

func (emptyIter) Next() (*git.Commit, error) { return nil, io.EOF }
func (emptyIter) Close() error               { return nil }
