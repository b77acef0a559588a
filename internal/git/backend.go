package git

import "context"

// Source abstracts read access to repository history.
//
// The native implementation reads objects through go-git; the CLI one shells
// out to the git executable. Callers never depend on which one is in use.
type Source interface {
	RepoPath() string

	// StartingPoints returns the tips history is walked from: local branch
	// heads and HEAD, deduplicated.
	StartingPoints() ([]string, error)
	// Iterate walks history reachable from starts, newest committer time first
	// with ties broken by id. Ids for which skip returns true are neither
	// yielded nor traversed.
	Iterate(ctx context.Context, starts []string, skip func(id string) bool) (CommitIter, error)
	Resolve(ref string) (string, error)

	HasChanges(c *Commit, path string) (bool, error)
	Labels() (map[string][]string, error)
	Stash() (*Commit, error)
	Patch(id string) (string, error)

	Close() error
}

// CommitIter yields commits until io.EOF. Errors wrapping ErrSourceCorrupt
// concern a single object and the iterator may be called again.
type CommitIter interface {
	Next() (*Commit, error)
	Close() error
}
