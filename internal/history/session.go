// Package history serves the commit graph of a repository page by page.
//
// A Session lays out history lazily: rows are computed when a caller asks
// for them, in batches, and kept for the lifetime of the session. Every
// extension resumes from a cursor made of the trailing rail state and the
// commits still expected by it, so no iterator outlives a call.
package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/thiagokokada/gitrails/internal/git"
	"github.com/thiagokokada/gitrails/internal/graph"
)

const (
	DefaultSlack     = 50
	DefaultLookahead = 100
)

type Options struct {
	// Slack is the number of extra rows loaded past a request.
	Slack int
	// Lookahead is added to the row count while history is still pending.
	Lookahead int
	// IncludeStash emits the latest stash entry as the first row.
	IncludeStash bool
	// Pathspec restricts history to commits touching a path. The filtered
	// view is computed in one go when the session loads.
	Pathspec string
	// MaxDepth bounds the reachability search of the pathspec view.
	MaxDepth int
}

func DefaultOptions() Options {
	return Options{
		Slack:     DefaultSlack,
		Lookahead: DefaultLookahead,
		MaxDepth:  DefaultMaxDepth,
	}
}

func (o Options) withDefaults() Options {
	if o.Slack <= 0 {
		o.Slack = DefaultSlack
	}
	if o.Lookahead <= 0 {
		o.Lookahead = DefaultLookahead
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	return o
}

// Change announces rows [Start, End) appended to the session. After a
// reload, Reload is set and [Start, End) covers the rows kept by it. Total
// is estimated until history is exhausted.
type Change struct {
	Total  int  `json:"total"`
	Start  int  `json:"start"`
	End    int  `json:"end"`
	Reload bool `json:"reload,omitempty"`
}

type Session struct {
	src  git.Source
	opts Options

	mu        sync.RWMutex
	rows      []graph.Row
	rails     graph.Rails
	index     map[string]int
	starts    []string
	exhausted bool
	closed    bool

	// extendMu serializes extensions and reloads; group coalesces concurrent requests.
	extendMu sync.Mutex
	group    singleflight.Group

	subMu  sync.Mutex
	subs   map[int]chan Change
	nextID int
}

// Open starts a session over src and loads its starting points. The
// session owns src and closes it on Close.
func Open(ctx context.Context, src git.Source, opts Options) (*Session, error) {
	s := &Session{
		src:  src,
		opts: opts.withDefaults(),
		subs: map[int]chan Change{},
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) Options() Options { return s.opts }

func (s *Session) Source() git.Source { return s.src }

// load resets the session to the current state of the repository. Callers
// hold extendMu or have exclusive access.
func (s *Session) load(ctx context.Context) error {
	starts, err := s.src.StartingPoints()
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	var (
		rows      []graph.Row
		rails     graph.Rails
		exhausted bool
	)
	if s.opts.Pathspec != "" {
		commits, err := loadFiltered(ctx, s.src, starts, s.opts.Pathspec, s.opts.MaxDepth)
		if err != nil {
			return fmt.Errorf("load history for %s: %w", s.opts.Pathspec, err)
		}
		layout := graph.Compute(commits, nil)
		rows, rails, exhausted = layout.Rows, layout.Rails, true
	} else if s.opts.IncludeStash {
		stash, err := s.src.Stash()
		if err != nil {
			slog.Warn("read stash", slog.Any("error", err))
		}
		if stash != nil {
			rows = append(rows, graph.Next(stash, &rails))
		}
	}

	index := make(map[string]int, len(rows))
	for i, row := range rows {
		index[row.Commit.ID] = i
	}
	s.mu.Lock()
	s.rows = rows
	s.rails = rails
	s.index = index
	s.starts = starts
	s.exhausted = exhausted || len(starts) == 0
	s.mu.Unlock()
	slog.Debug("history loaded",
		slog.String("repo", s.src.RepoPath()),
		slog.Int("starts", len(starts)),
		slog.Int("rows", len(rows)))
	return nil
}

// Reload discards all rows and starts over from the current branch heads.
func (s *Session) Reload(ctx context.Context) error {
	s.extendMu.Lock()
	defer s.extendMu.Unlock()
	if s.isClosed() {
		return fmt.Errorf("reload: %w: session closed", git.ErrSourceUnavailable)
	}
	if err := s.load(ctx); err != nil {
		return err
	}
	s.mu.RLock()
	change := Change{Total: s.totalLocked(), End: len(s.rows), Reload: true}
	s.mu.RUnlock()
	s.notify(change)
	return nil
}

// GraphRows returns rows [start, end), loading more history when needed.
// Fewer rows are returned when history ends earlier.
func (s *Session) GraphRows(ctx context.Context, start, end int) ([]graph.Row, error) {
	start = max(start, 0)
	if end <= start {
		return []graph.Row{}, nil
	}
	for {
		s.mu.RLock()
		have, done := len(s.rows), s.exhausted || s.closed
		s.mu.RUnlock()
		if have >= end || done {
			break
		}
		ext, err := s.extend(ctx, end-have+s.opts.Slack)
		if err != nil {
			return nil, err
		}
		if ext.interrupted && ctx.Err() == nil {
			// Joined a walk whose caller gave up; ours is still live.
			continue
		}
		if ext.added == 0 || ctx.Err() != nil {
			break
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if start >= len(s.rows) {
		return []graph.Row{}, nil
	}
	return slices.Clone(s.rows[start:min(end, len(s.rows))]), nil
}

// extension is the outcome of one shared walk.
type extension struct {
	added int
	// interrupted is set when the walk stopped because the context it ran
	// with was done.
	interrupted bool
}

// extend lays out about n more rows. Concurrent callers share one walk, which
// runs with the context of the caller that started it.
func (s *Session) extend(ctx context.Context, n int) (extension, error) {
	v, err, _ := s.group.Do("extend", func() (any, error) {
		s.extendMu.Lock()
		defer s.extendMu.Unlock()
		return s.extendLocked(ctx, n)
	})
	if err != nil {
		return extension{}, err
	}
	return v.(extension), nil
}

func (s *Session) extendLocked(ctx context.Context, n int) (extension, error) {
	s.mu.RLock()
	if s.exhausted || s.closed {
		s.mu.RUnlock()
		return extension{}, nil
	}
	frontier := s.frontierLocked()
	rails := s.rails.Clone()
	base := len(s.rows)
	s.mu.RUnlock()

	var batch []graph.Row
	var interrupted bool
	exhausted := len(frontier) == 0
	if !exhausted {
		// index is only written under extendMu, which we hold.
		iter, err := s.src.Iterate(ctx, frontier, s.emitted)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return extension{interrupted: true}, nil
			}
			return extension{}, fmt.Errorf("extend history: %w", err)
		}
		batch, exhausted, interrupted = s.walk(iter, n, &rails)
		if err := iter.Close(); err != nil {
			slog.Debug("close history walk", slog.Any("error", err))
		}
	}

	s.mu.Lock()
	for i, row := range batch {
		s.index[row.Commit.ID] = base + i
	}
	s.rows = append(s.rows, batch...)
	if len(batch) > 0 {
		s.rails = rails
	}
	s.exhausted = exhausted
	change := Change{Total: s.totalLocked(), Start: base, End: len(s.rows)}
	s.mu.Unlock()

	slog.Debug("history extended",
		slog.Int("requested", n),
		slog.Int("added", len(batch)),
		slog.Int("total", change.Total),
		slog.Bool("exhausted", exhausted))
	if len(batch) > 0 || exhausted {
		s.notify(change)
	}
	return extension{added: len(batch), interrupted: interrupted}, nil
}

// walk lays out up to n commits from iter. Unreadable commits are skipped;
// any other error ends the walk early and keeps what was read.
func (s *Session) walk(iter git.CommitIter, n int, rails *graph.Rails) (batch []graph.Row, exhausted, interrupted bool) {
	batch = make([]graph.Row, 0, n)
	for len(batch) < n {
		c, err := iter.Next()
		switch {
		case errors.Is(err, io.EOF):
			return batch, true, false
		case errors.Is(err, git.ErrSourceCorrupt):
			slog.Warn("skipping unreadable commit", slog.Any("error", err))
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			slog.Debug("history walk cancelled", slog.Int("rows", len(batch)))
			return batch, false, true
		case err != nil:
			slog.Warn("history walk stopped", slog.Int("rows", len(batch)), slog.Any("error", err))
			return batch, false, false
		}
		batch = append(batch, graph.Next(c, rails))
	}
	return batch, false, false
}

func (s *Session) emitted(id string) bool {
	_, ok := s.index[id]
	return ok
}

// frontierLocked returns the ids still expected by the trailing rails and
// the starting points not yet emitted.
func (s *Session) frontierLocked() []string {
	var frontier []string
	seen := map[string]struct{}{}
	add := func(id string) {
		if _, ok := s.index[id]; ok {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		frontier = append(frontier, id)
	}
	for _, id := range s.rails.Expected() {
		add(id)
	}
	for _, id := range s.starts {
		add(id)
	}
	return frontier
}

// Total is the number of rows, or an estimate while history is pending.
func (s *Session) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalLocked()
}

func (s *Session) totalLocked() int {
	if s.exhausted || len(s.frontierLocked()) == 0 {
		return len(s.rows)
	}
	return len(s.rows) + s.opts.Lookahead
}

// Exhausted reports whether all of history has been laid out.
func (s *Session) Exhausted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exhausted
}

// Rails returns the rail state after the last loaded row.
func (s *Session) Rails() graph.Rails {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rails.Clone()
}

// RowIndex returns the row of a loaded commit.
func (s *Session) RowIndex(id string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	return i, ok
}

// FindRows returns, in order, the loaded rows whose commit matches term.
func (s *Session) FindRows(term string) []int {
	if term == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int
	for i, row := range s.rows {
		if git.Matches(row.Commit, term) {
			out = append(out, i)
		}
	}
	return out
}

// Subscribe returns a channel receiving a Change after every extension and
// reload. Slow readers only see the latest change. The channel is closed by
// cancel or Close.
func (s *Session) Subscribe() (<-chan Change, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	ch := make(chan Change, 1)
	if s.subs == nil {
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

func (s *Session) notify(c Change) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
			// replace the pending change
			select {
			case <-ch:
			default:
			}
			ch <- c
		}
	}
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close releases the source and closes all subscriptions.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.subMu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.subs = nil
	s.subMu.Unlock()

	s.extendMu.Lock()
	defer s.extendMu.Unlock()
	return s.src.Close()
}
