package backend

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/emirpasic/gods/queues/priorityqueue"

	"github.com/thiagokokada/gitrails/internal/git"
)

// dateOrder sorts newest committer time first, then by id.
func dateOrder(a, b any) int {
	x, y := a.(*git.Commit), b.(*git.Commit)
	switch tx, ty := x.Committer.When, y.Committer.When; {
	case tx.After(ty):
		return -1
	case ty.After(tx):
		return 1
	}
	return strings.Compare(x.ID, y.ID)
}

type loadFunc func(id string) (*git.Commit, error)

// dateOrderWalker yields the commits reachable from its starts with no parent
// before any of its children, otherwise newest first, like git log
// --date-order. The reachable set is read up front so a child with a skewed
// clock still holds its parent back.
//
// Only commits that are not skipped take part, and the choice at each step
// depends on nothing but the remaining commits. Walking again from the rails
// of an earlier walk, skipping what it emitted, therefore yields the same
// commits in the same order as continuing that walk would have.
type dateOrderWalker struct {
	ctx    context.Context
	load   loadFunc
	skip   func(id string) bool
	starts []string

	scanned bool
	// commits holds the reachable commits not yet emitted.
	commits map[string]*git.Commit
	// children counts the not yet emitted children of each commit.
	children map[string]int
	// queue holds the commits whose children were all emitted.
	queue *priorityqueue.Queue
	// errs holds per-commit read failures reported before the next commit.
	errs []error
}

func newDateOrderWalker(ctx context.Context, load loadFunc, starts []string, skip func(string) bool) *dateOrderWalker {
	if skip == nil {
		skip = func(string) bool { return false }
	}
	return &dateOrderWalker{
		ctx:      ctx,
		load:     load,
		skip:     skip,
		starts:   starts,
		commits:  make(map[string]*git.Commit),
		children: make(map[string]int),
		queue:    priorityqueue.NewWith(dateOrder),
	}
}

func (w *dateOrderWalker) scan() error {
	seen := make(map[string]struct{}, len(w.starts))
	stack := append([]string(nil), w.starts...)
	for len(stack) > 0 {
		if err := w.ctx.Err(); err != nil {
			return err
		}
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == "" || w.skip(id) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		c, err := w.load(id)
		if err != nil {
			w.errs = append(w.errs, fmt.Errorf("read commit %s: %w: %w", git.ShortID(id), git.ErrSourceCorrupt, err))
			continue
		}
		w.commits[id] = c
		for _, p := range c.Parents {
			stack = append(stack, p.ID)
		}
	}

	for _, c := range w.commits {
		for _, p := range c.Parents {
			if _, ok := w.commits[p.ID]; ok {
				w.children[p.ID]++
			}
		}
	}
	for id, c := range w.commits {
		if w.children[id] == 0 {
			w.queue.Enqueue(c)
		}
	}
	return nil
}

func (w *dateOrderWalker) Next() (*git.Commit, error) {
	if !w.scanned {
		w.scanned = true
		if err := w.scan(); err != nil {
			return nil, err
		}
	}
	if err := w.ctx.Err(); err != nil {
		return nil, err
	}
	if len(w.errs) > 0 {
		err := w.errs[0]
		w.errs = w.errs[1:]
		return nil, err
	}
	v, ok := w.queue.Dequeue()
	if !ok {
		return nil, io.EOF
	}
	c := v.(*git.Commit)
	delete(w.commits, c.ID)
	for _, p := range c.Parents {
		parent, ok := w.commits[p.ID]
		if !ok {
			continue
		}
		w.children[p.ID]--
		if w.children[p.ID] == 0 {
			delete(w.children, p.ID)
			w.queue.Enqueue(parent)
		}
	}
	return c, nil
}

func (w *dateOrderWalker) Close() error {
	w.queue.Clear()
	clear(w.commits)
	clear(w.children)
	w.errs = nil
	return nil
}
