package backend

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thiagokokada/gitrails/internal/git"
	"github.com/thiagokokada/gitrails/internal/graph"
)

type repoFixture struct {
	t     *testing.T
	repo  *gogit.Repository
	fs    billy.Filesystem
	wt    *gogit.Worktree
	clock time.Time
}

func newRepoFixture(t *testing.T) *repoFixture {
	t.Helper()
	fs := memfs.New()
	repo, err := gogit.Init(memory.NewStorage(), fs)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	return &repoFixture{
		t:     t,
		repo:  repo,
		fs:    fs,
		wt:    wt,
		clock: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

// commit writes files and commits them one minute after the previous commit.
// Without parents the commit goes on top of HEAD.
func (f *repoFixture) commit(msg string, files map[string]string, parents ...plumbing.Hash) plumbing.Hash {
	f.t.Helper()
	f.clock = f.clock.Add(time.Minute)
	return f.commitAt(f.clock, msg, files, parents...)
}

// commitAt is commit with an explicit commit time.
func (f *repoFixture) commitAt(when time.Time, msg string, files map[string]string, parents ...plumbing.Hash) plumbing.Hash {
	f.t.Helper()
	for name, content := range files {
		require.NoError(f.t, util.WriteFile(f.fs, name, []byte(content), 0o644))
		_, err := f.wt.Add(name)
		require.NoError(f.t, err)
	}
	sig := &object.Signature{Name: "Test", Email: "test@example.com", When: when}
	h, err := f.wt.Commit(msg, &gogit.CommitOptions{Author: sig, Committer: sig, Parents: parents})
	require.NoError(f.t, err)
	return h
}

func (f *repoFixture) setRef(name plumbing.ReferenceName, h plumbing.Hash) {
	f.t.Helper()
	require.NoError(f.t, f.repo.Storer.SetReference(plumbing.NewHashReference(name, h)))
}

func (f *repoFixture) source() *Native {
	return NewNative(f.repo, "/repo")
}

func collect(t *testing.T, iter git.CommitIter) ([]string, []error) {
	t.Helper()
	defer iter.Close()
	var ids []string
	var errs []error
	for {
		c, err := iter.Next()
		if errors.Is(err, io.EOF) {
			return ids, errs
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ids = append(ids, c.ID)
	}
}

// branchyRepo builds:
//
//	master:  a - b - c
//	feature:  \- d
//
// with commit times a < b < d < c.
func branchyRepo(t *testing.T) (*repoFixture, map[string]plumbing.Hash) {
	f := newRepoFixture(t)
	a := f.commit("a", map[string]string{"a.txt": "a"})
	b := f.commit("b", map[string]string{"b.txt": "b"})
	d := f.commit("d", map[string]string{"d.txt": "d"}, a)
	f.setRef(plumbing.NewBranchReferenceName("feature"), d)
	f.setRef(plumbing.Master, b)
	c := f.commit("c", map[string]string{"a.txt": "a2"})
	return f, map[string]plumbing.Hash{"a": a, "b": b, "c": c, "d": d}
}

func TestNativeStartingPoints(t *testing.T) {
	t.Parallel()

	f, h := branchyRepo(t)
	got, err := f.source().StartingPoints()
	require.NoError(t, err)
	// HEAD (master) first, then branches by name with duplicates removed.
	assert.Equal(t, []string{h["c"].String(), h["d"].String()}, got)
}

func TestNativeIterateDateOrder(t *testing.T) {
	t.Parallel()

	f, h := branchyRepo(t)
	src := f.source()
	starts, err := src.StartingPoints()
	require.NoError(t, err)
	iter, err := src.Iterate(context.Background(), starts, nil)
	require.NoError(t, err)
	ids, errs := collect(t, iter)
	require.Empty(t, errs)
	assert.Equal(t, []string{h["c"].String(), h["d"].String(), h["b"].String(), h["a"].String()}, ids)
}

func TestNativeIterateResumesFromFrontier(t *testing.T) {
	t.Parallel()

	f, _ := branchyRepo(t)
	// A merge so the frontier holds more than one commit at some point.
	f.commit("merge", map[string]string{"m.txt": "m"}, f.head(), f.ref("feature"))
	src := f.source()
	starts, err := src.StartingPoints()
	require.NoError(t, err)

	full, errs := collect(t, mustIterate(t, src, starts, nil))
	require.Empty(t, errs)

	for n := range full {
		emitted := map[string]bool{}
		for _, id := range full[:n] {
			emitted[id] = true
		}
		frontier := pendingFrontier(t, src, starts, full[:n], emitted)
		rest, errs := collect(t, mustIterate(t, src, frontier, func(id string) bool { return emitted[id] }))
		require.Empty(t, errs)
		assert.Equal(t, full[n:], rest, "resuming after %d commits", n)
	}
}

// skewedRepo builds two branches off a root whose clock runs ahead:
//
//	master: p - x
//	topic:   \- c
//
// with p at 11:00, x at 10:00 and c at 09:00.
func skewedRepo(t *testing.T) (*repoFixture, map[string]plumbing.Hash) {
	f := newRepoFixture(t)
	at := func(hour int) time.Time { return time.Date(2024, 1, 1, hour, 0, 0, 0, time.UTC) }
	p := f.commitAt(at(11), "p", map[string]string{"p.txt": "p"})
	x := f.commitAt(at(10), "x", map[string]string{"x.txt": "x"}, p)
	c := f.commitAt(at(9), "c", map[string]string{"c.txt": "c"}, p)
	f.setRef(plumbing.Master, x)
	f.setRef(plumbing.NewBranchReferenceName("topic"), c)
	return f, map[string]plumbing.Hash{"p": p, "x": x, "c": c}
}

func TestNativeIterateHoldsParentBehindSkewedChild(t *testing.T) {
	t.Parallel()

	f, h := skewedRepo(t)
	src := f.source()
	starts, err := src.StartingPoints()
	require.NoError(t, err)
	require.Equal(t, []string{h["x"].String(), h["c"].String()}, starts)

	var commits []*git.Commit
	iter := mustIterate(t, src, starts, nil)
	defer iter.Close()
	for {
		c, err := iter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		commits = append(commits, c)
	}
	var ids []string
	for _, c := range commits {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{h["x"].String(), h["c"].String(), h["p"].String()}, ids)

	layout := graph.Compute(commits, nil)
	assert.Empty(t, layout.Rails)
	// c sits on rail 1 and joins x's line to p on rail 0.
	assert.Equal(t, 1, layout.Rows[1].Rail)
	assert.Equal(t, []int{0}, layout.Rows[1].Outgoing)
	assert.Equal(t, 0, layout.Rows[2].Rail)
	assert.True(t, layout.Rows[2].HasChildLine)

	// Resuming after x waits for c as well.
	emitted := map[string]bool{h["x"].String(): true}
	rest, errs := collect(t, mustIterate(t, src, []string{h["p"].String(), h["c"].String()}, func(id string) bool { return emitted[id] }))
	require.Empty(t, errs)
	assert.Equal(t, []string{h["c"].String(), h["p"].String()}, rest)
}

func (f *repoFixture) head() plumbing.Hash {
	f.t.Helper()
	ref, err := f.repo.Head()
	require.NoError(f.t, err)
	return ref.Hash()
}

func (f *repoFixture) ref(branch string) plumbing.Hash {
	f.t.Helper()
	ref, err := f.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	require.NoError(f.t, err)
	return ref.Hash()
}

func mustIterate(t *testing.T, src git.Source, starts []string, skip func(string) bool) git.CommitIter {
	t.Helper()
	iter, err := src.Iterate(context.Background(), starts, skip)
	require.NoError(t, err)
	return iter
}

// pendingFrontier is the starting tips plus the parents of emitted commits
// that were not emitted themselves.
func pendingFrontier(t *testing.T, src *Native, starts, emittedIDs []string, emitted map[string]bool) []string {
	t.Helper()
	var frontier []string
	for _, id := range starts {
		if !emitted[id] {
			frontier = append(frontier, id)
		}
	}
	for _, id := range emittedIDs {
		c, err := src.loadCommit(id)
		require.NoError(t, err)
		for _, p := range c.Parents {
			if !emitted[p.ID] {
				frontier = append(frontier, p.ID)
			}
		}
	}
	return dedupe(frontier)
}

func TestNativeIterateReportsMissingParent(t *testing.T) {
	t.Parallel()

	f := newRepoFixture(t)
	missing := plumbing.NewHash("dddddddddddddddddddddddddddddddddddddddd")
	tip := f.commit("orphaned", map[string]string{"a.txt": "a"}, missing)

	ids, errs := collect(t, mustIterate(t, f.source(), []string{tip.String()}, nil))
	assert.Equal(t, []string{tip.String()}, ids)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], git.ErrSourceCorrupt)
}

func TestNativeIterateCancelled(t *testing.T) {
	t.Parallel()

	f, h := branchyRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	iter, err := f.source().Iterate(ctx, []string{h["c"].String()}, nil)
	require.NoError(t, err)
	defer iter.Close()
	_, err = iter.Next()
	require.NoError(t, err)
	cancel()
	_, err = iter.Next()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNativeHasChanges(t *testing.T) {
	t.Parallel()

	f := newRepoFixture(t)
	c1 := f.commit("add a", map[string]string{"a.txt": "1"})
	c2 := f.commit("add b", map[string]string{"dir/b.txt": "1"})
	c3 := f.commit("change a", map[string]string{"a.txt": "2"})
	c4 := f.commit("change b", map[string]string{"dir/b.txt": "2"})
	src := f.source()

	tests := []struct {
		commit plumbing.Hash
		path   string
		want   bool
	}{
		{commit: c1, path: "a.txt", want: true},
		{commit: c1, path: "dir", want: false},
		{commit: c2, path: "a.txt", want: false},
		{commit: c2, path: "dir", want: true},
		{commit: c2, path: "./dir/b.txt", want: true},
		{commit: c3, path: "a.txt", want: true},
		{commit: c3, path: "dir/", want: false},
		{commit: c4, path: "dir", want: true},
		{commit: c4, path: "missing/file", want: false},
		{commit: c4, path: "", want: true},
	}
	for _, tt := range tests {
		c, err := src.loadCommit(tt.commit.String())
		require.NoError(t, err)
		got, err := src.HasChanges(c, tt.path)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "HasChanges(%s, %q)", c.Message, tt.path)
	}
}

func TestNativeResolve(t *testing.T) {
	t.Parallel()

	f, h := branchyRepo(t)
	src := f.source()
	full := h["d"].String()

	for _, ref := range []string{full, full[:10], "feature", "refs/heads/feature"} {
		got, err := src.Resolve(ref)
		require.NoError(t, err, ref)
		assert.Equal(t, full, got, ref)
	}
	got, err := src.Resolve("HEAD")
	require.NoError(t, err)
	assert.Equal(t, h["c"].String(), got)

	for _, ref := range []string{"", "nope", "zzzzzzz", "0000000000"} {
		_, err := src.Resolve(ref)
		assert.ErrorIs(t, err, git.ErrInvalidID, ref)
	}
}

func TestNativeLabelsAndStash(t *testing.T) {
	t.Parallel()

	f, h := branchyRepo(t)
	f.setRef(plumbing.NewTagReferenceName("v1"), h["a"])
	src := f.source()

	labels, err := src.Labels()
	require.NoError(t, err)
	assert.Equal(t, []string{"HEAD -> master"}, labels[h["c"].String()])
	assert.Equal(t, []string{"feature"}, labels[h["d"].String()])
	assert.Equal(t, []string{"tag: v1"}, labels[h["a"].String()])

	stash, err := src.Stash()
	require.NoError(t, err)
	assert.Nil(t, stash)

	f.setRef(stashRef, h["b"])
	stash, err = src.Stash()
	require.NoError(t, err)
	require.NotNil(t, stash)
	assert.True(t, stash.IsStash())
	assert.Equal(t, "stash@{0}", stash.RefName)
	assert.Nil(t, stash.GraphParents())
}

func TestNativePatch(t *testing.T) {
	t.Parallel()

	f := newRepoFixture(t)
	root := f.commit("root", map[string]string{"a.txt": "hello\n"})
	next := f.commit("edit", map[string]string{"a.txt": "hello\nworld\n"})
	src := f.source()

	patch, err := src.Patch(root.String())
	require.NoError(t, err)
	assert.Contains(t, patch, "+hello")

	patch, err = src.Patch(next.String())
	require.NoError(t, err)
	assert.Contains(t, patch, "diff --git a/a.txt b/a.txt")
	assert.Contains(t, patch, "+world")
	assert.NotContains(t, patch, "+hello")
}
