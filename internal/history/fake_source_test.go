package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/thiagokokada/gitrails/internal/git"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// mk builds a commit made at epoch plus minute.
func mk(id string, minute int, parents ...string) *git.Commit {
	refs := make([]git.ParentRef, len(parents))
	for i, p := range parents {
		refs[i] = git.NewParentRef(p)
	}
	when := epoch.Add(time.Duration(minute) * time.Minute)
	return &git.Commit{
		ID:        id,
		ShortID:   git.ShortID(id),
		Message:   "commit " + id,
		Parents:   refs,
		Author:    git.Person{Name: "Test", Email: "test@example.com", When: when},
		Committer: git.Person{Name: "Test", Email: "test@example.com", When: when},
	}
}

type fakeSource struct {
	commits map[string]*git.Commit
	starts  []string
	stash   *git.Commit

	startingPointsErr error
	iterateErr        error
	// corrupt ids fail to load.
	corrupt map[string]bool
	// failAfter makes the next walk fail once after yielding that many commits.
	failAfter int
	// touched lists, per path, the ids that change it.
	touched map[string]map[string]bool

	// onIterate runs at the start of every walk.
	onIterate func(ctx context.Context)

	iterateCalls int
	closed       bool
}

func newFakeSource(starts []string, commits ...*git.Commit) *fakeSource {
	f := &fakeSource{commits: map[string]*git.Commit{}, starts: starts}
	for _, c := range commits {
		f.commits[c.ID] = c
	}
	return f
}

func (f *fakeSource) RepoPath() string { return "/fake" }

func (f *fakeSource) StartingPoints() ([]string, error) {
	if f.startingPointsErr != nil {
		return nil, f.startingPointsErr
	}
	return slices.Clone(f.starts), nil
}

func (f *fakeSource) Iterate(ctx context.Context, starts []string, skip func(string) bool) (git.CommitIter, error) {
	f.iterateCalls++
	if f.onIterate != nil {
		f.onIterate(ctx)
	}
	if f.iterateErr != nil {
		return nil, f.iterateErr
	}
	if skip == nil {
		skip = func(string) bool { return false }
	}
	it := &fakeIter{ctx: ctx, src: f, skip: skip, seen: map[string]bool{}, failAfter: f.failAfter}
	f.failAfter = 0
	for _, id := range starts {
		it.push(id)
	}
	return it, nil
}

func (f *fakeSource) Resolve(ref string) (string, error) {
	for id := range f.commits {
		if strings.HasPrefix(id, ref) {
			return id, nil
		}
	}
	return "", git.ErrInvalidID
}

func (f *fakeSource) HasChanges(c *git.Commit, path string) (bool, error) {
	if f.corrupt[c.ID] {
		return false, fmt.Errorf("diff %s: %w", c.ID, git.ErrSourceCorrupt)
	}
	return f.touched[path][c.ID], nil
}

func (f *fakeSource) Labels() (map[string][]string, error) { return nil, nil }

func (f *fakeSource) Stash() (*git.Commit, error) { return f.stash, nil }

func (f *fakeSource) Patch(string) (string, error) { return "", errors.New("unexpected Patch call") }

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

// fakeIter walks newest committer time first, ties by id.
type fakeIter struct {
	ctx       context.Context
	src       *fakeSource
	skip      func(string) bool
	queue     []*git.Commit
	seen      map[string]bool
	errs      []error
	yielded   int
	failAfter int
}

func (it *fakeIter) push(id string) {
	if it.seen[id] || it.skip(id) {
		return
	}
	it.seen[id] = true
	c, ok := it.src.commits[id]
	if !ok || it.src.corrupt[id] {
		it.errs = append(it.errs, fmt.Errorf("load %s: %w", id, git.ErrSourceCorrupt))
		return
	}
	it.queue = append(it.queue, c)
}

func (it *fakeIter) Next() (*git.Commit, error) {
	if err := it.ctx.Err(); err != nil {
		return nil, err
	}
	if it.failAfter > 0 && it.yielded == it.failAfter {
		it.failAfter = 0
		return nil, errors.New("pack file vanished")
	}
	if len(it.errs) > 0 {
		err := it.errs[0]
		it.errs = it.errs[1:]
		return nil, err
	}
	if len(it.queue) == 0 {
		return nil, io.EOF
	}
	slices.SortFunc(it.queue, func(a, b *git.Commit) int {
		if c := b.Committer.When.Compare(a.Committer.When); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	c := it.queue[0]
	it.queue = it.queue[1:]
	for _, p := range c.Parents {
		it.push(p.ID)
	}
	it.yielded++
	return c, nil
}

func (it *fakeIter) Close() error { return nil }
