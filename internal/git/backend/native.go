package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/thiagokokada/gitrails/internal/git"
)

const stashRef = plumbing.ReferenceName("refs/stash")

// Native reads history with go-git.
type Native struct {
	repo *gitlib.Repository
	path string

	mu sync.Mutex
	// commits caches decoded commits by id; a commit never changes.
	commits map[string]*git.Commit
}

func OpenNative(repoPath string) (*Native, error) {
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}
	repo, err := gitlib.PlainOpenWithOptions(abs, &gitlib.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w: %w", abs, git.ErrSourceUnavailable, err)
	}
	root := abs
	if wt, err := repo.Worktree(); err == nil {
		root = wt.Filesystem.Root()
	}
	return NewNative(repo, root), nil
}

// NewNative wraps an already opened repository, e.g. one backed by memory storage.
func NewNative(repo *gitlib.Repository, path string) *Native {
	return &Native{repo: repo, path: path, commits: make(map[string]*git.Commit)}
}

func (n *Native) RepoPath() string {
	if n == nil {
		return ""
	}
	return n.path
}

func (n *Native) ready() error {
	if n == nil || n.repo == nil {
		return fmt.Errorf("%w: repository not open", git.ErrSourceUnavailable)
	}
	return nil
}

func (n *Native) StartingPoints() ([]string, error) {
	if err := n.ready(); err != nil {
		return nil, err
	}
	var ids []string
	if head, err := n.repo.Head(); err == nil {
		ids = append(ids, head.Hash().String())
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, fmt.Errorf("read HEAD: %w: %w", git.ErrSourceUnavailable, err)
	}
	branches, err := n.repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("list branches: %w: %w", git.ErrSourceUnavailable, err)
	}
	var heads []*plumbing.Reference
	err = branches.ForEach(func(ref *plumbing.Reference) error {
		heads = append(heads, ref)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list branches: %w: %w", git.ErrSourceUnavailable, err)
	}
	slices.SortFunc(heads, func(a, b *plumbing.Reference) int {
		return strings.Compare(a.Name().String(), b.Name().String())
	})
	for _, ref := range heads {
		ids = append(ids, ref.Hash().String())
	}
	return dedupe(ids), nil
}

func (n *Native) Iterate(ctx context.Context, starts []string, skip func(id string) bool) (git.CommitIter, error) {
	if err := n.ready(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newDateOrderWalker(ctx, n.loadCommit, starts, skip), nil
}

func (n *Native) loadCommit(id string) (*git.Commit, error) {
	n.mu.Lock()
	c, ok := n.commits[id]
	n.mu.Unlock()
	if ok {
		return c, nil
	}
	obj, err := n.repo.CommitObject(plumbing.NewHash(id))
	if err != nil {
		return nil, err
	}
	c = toCommit(obj)
	n.mu.Lock()
	n.commits[id] = c
	n.mu.Unlock()
	return c, nil
}

func toCommit(c *object.Commit) *git.Commit {
	id := c.Hash.String()
	parents := make([]git.ParentRef, len(c.ParentHashes))
	for i, h := range c.ParentHashes {
		parents[i] = git.NewParentRef(h.String())
	}
	return &git.Commit{
		Kind:      git.KindRegular,
		ID:        id,
		ShortID:   git.ShortID(id),
		Message:   c.Message,
		Parents:   parents,
		Author:    toPerson(c.Author),
		Committer: toPerson(c.Committer),
	}
}

func toPerson(sig object.Signature) git.Person {
	return git.Person{Name: sig.Name, Email: sig.Email, When: sig.When}
}

func (n *Native) Resolve(ref string) (string, error) {
	if err := n.ready(); err != nil {
		return "", err
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("resolve: %w: empty reference", git.ErrInvalidID)
	}
	if h, err := n.repo.ResolveRevision(plumbing.Revision(ref)); err == nil {
		if _, err := n.repo.CommitObject(*h); err == nil {
			return h.String(), nil
		}
	}
	return n.resolvePrefix(ref)
}

func (n *Native) resolvePrefix(prefix string) (string, error) {
	prefix = strings.ToLower(prefix)
	if len(prefix) < 4 || strings.Trim(prefix, "0123456789abcdef") != "" {
		return "", fmt.Errorf("resolve %q: %w", prefix, git.ErrInvalidID)
	}
	iter, err := n.repo.CommitObjects()
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", prefix, err)
	}
	defer iter.Close()
	var found string
	err = iter.ForEach(func(c *object.Commit) error {
		id := c.Hash.String()
		if !strings.HasPrefix(id, prefix) {
			return nil
		}
		if found != "" && found != id {
			return fmt.Errorf("resolve %q: ambiguous prefix: %w", prefix, git.ErrInvalidID)
		}
		found = id
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("resolve %q: %w", prefix, git.ErrInvalidID)
	}
	return found, nil
}

// HasChanges reports whether path differs between c and any of its parents.
// A root commit has changes when it contains path.
func (n *Native) HasChanges(c *git.Commit, path string) (bool, error) {
	if err := n.ready(); err != nil {
		return false, err
	}
	path = cleanPathspec(path)
	if path == "" {
		return true, nil
	}
	entry, err := n.treeEntry(c.ID, path)
	if err != nil {
		return false, err
	}
	if len(c.Parents) == 0 {
		return entry != nil, nil
	}
	for _, p := range c.Parents {
		parentEntry, err := n.treeEntry(p.ID, path)
		if err != nil {
			return false, err
		}
		if !sameEntry(entry, parentEntry) {
			return true, nil
		}
	}
	return false, nil
}

func (n *Native) treeEntry(id, path string) (*object.TreeEntry, error) {
	commit, err := n.repo.CommitObject(plumbing.NewHash(id))
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w: %w", git.ShortID(id), git.ErrSourceCorrupt, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("read tree of %s: %w: %w", git.ShortID(id), git.ErrSourceCorrupt, err)
	}
	entry, err := tree.FindEntry(path)
	switch {
	case errors.Is(err, object.ErrEntryNotFound), errors.Is(err, object.ErrDirectoryNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("find %s in %s: %w: %w", path, git.ShortID(id), git.ErrSourceCorrupt, err)
	}
	return entry, nil
}

func sameEntry(a, b *object.TreeEntry) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Hash == b.Hash && a.Mode == b.Mode
}

func (n *Native) Labels() (map[string][]string, error) {
	if err := n.ready(); err != nil {
		return nil, err
	}
	refs, err := n.listRefs()
	if err != nil {
		return nil, err
	}
	var headHash, headBranch string
	if head, err := n.repo.Head(); err == nil {
		headHash = head.Hash().String()
		if head.Name().IsBranch() {
			headBranch = head.Name().Short()
		}
	}
	return buildLabels(refs, headHash, headBranch), nil
}

func (n *Native) listRefs() ([]Ref, error) {
	iter, err := n.repo.References()
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var refs []Ref
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		name := ref.Name()
		hash := ref.Hash()
		switch {
		case name.IsBranch():
			refs = append(refs, Ref{Hash: hash.String(), Kind: RefKindBranch, Name: name.Short()})
		case name.IsRemote():
			refs = append(refs, Ref{Hash: hash.String(), Kind: RefKindRemoteBranch, Name: name.Short()})
		case name.IsTag():
			if peeled, ok := n.peelTag(hash); ok {
				hash = peeled
			}
			refs = append(refs, Ref{Hash: hash.String(), Kind: RefKindTag, Name: name.Short()})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(refs, func(a, b Ref) int {
		if a.Kind != b.Kind {
			return int(a.Kind) - int(b.Kind)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return refs, nil
}

func (n *Native) peelTag(hash plumbing.Hash) (plumbing.Hash, bool) {
	// Lightweight tags point directly at a commit; annotated tags point at a tag object.
	if _, err := n.repo.CommitObject(hash); err == nil {
		return hash, true
	}
	cur := hash
	for range 8 {
		tag, err := n.repo.TagObject(cur)
		if err != nil {
			return plumbing.ZeroHash, false
		}
		switch tag.TargetType {
		case plumbing.CommitObject:
			return tag.Target, true
		case plumbing.TagObject:
			cur = tag.Target
		default:
			return plumbing.ZeroHash, false
		}
	}
	return plumbing.ZeroHash, false
}

// Stash returns the most recent stash entry, or nil when there is none.
func (n *Native) Stash() (*git.Commit, error) {
	if err := n.ready(); err != nil {
		return nil, err
	}
	ref, err := n.repo.Reference(stashRef, true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read stash: %w", err)
	}
	c, err := n.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("read stash %s: %w: %w", git.ShortID(ref.Hash().String()), git.ErrSourceCorrupt, err)
	}
	stash := toCommit(c)
	stash.Kind = git.KindStash
	stash.RefName = "stash@{0}"
	return stash, nil
}

// Patch renders the unified diff of id against its first parent.
func (n *Native) Patch(id string) (string, error) {
	if err := n.ready(); err != nil {
		return "", err
	}
	commit, err := n.repo.CommitObject(plumbing.NewHash(id))
	if err != nil {
		return "", fmt.Errorf("read commit %s: %w: %w", git.ShortID(id), git.ErrInvalidID, err)
	}
	currentTree, err := commit.Tree()
	if err != nil {
		return "", err
	}
	var parentTree *object.Tree
	if commit.NumParents() > 0 {
		parent, err := commit.Parent(0)
		if err != nil {
			return "", err
		}
		parentTree, err = parent.Tree()
		if err != nil {
			return "", err
		}
	}
	changes, err := object.DiffTree(parentTree, currentTree)
	if err != nil {
		return "", err
	}
	if len(changes) == 0 {
		return "", nil
	}
	patch, err := changes.Patch()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := diff.NewUnifiedEncoder(&buf, diff.DefaultContextLines).Encode(patch); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (n *Native) Close() error {
	if n == nil || n.repo == nil {
		return nil
	}
	if c, ok := n.repo.Storer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
