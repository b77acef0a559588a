// Package graph lays out commit history on rails (lanes), one row per commit.
//
// The layout is a left fold over the commit stream: Next consumes one commit
// and the current Rails and produces a Row, updating Rails in place. Given the
// same commits and the same starting Rails the output is identical, which is
// what lets callers page through history and resume from a trailing snapshot.
package graph

import "github.com/thiagokokada/gitrails/internal/git"

// RailEntry records which commit a rail expects next, going down towards
// ancestors. Entries are never modified after being placed on a rail.
type RailEntry struct {
	Expected string `json:"expectedParent"`
	// Through is set when the same commit was already expected on this rail
	// in the previous row, i.e. the line passes the row unchanged.
	Through bool `json:"hasThroughLine"`
}

// Rails is the ordered rail state; index is the rail number and a nil entry
// is a free rail.
type Rails []*RailEntry

// Clone returns a snapshot of r. Entries are shared since they are immutable.
func (r Rails) Clone() Rails {
	if len(r) == 0 {
		return Rails{}
	}
	return append(Rails(nil), r...)
}

func (r Rails) expects(i int, id string) bool {
	return i < len(r) && r[i] != nil && r[i].Expected == id
}

// Find returns the leftmost rail expecting id.
func (r Rails) Find(id string) (int, bool) {
	for i := range r {
		if r.expects(i, id) {
			return i, true
		}
	}
	return -1, false
}

// Pending reports whether any rail still expects a commit.
func (r Rails) Pending() bool {
	for _, e := range r {
		if e != nil {
			return true
		}
	}
	return false
}

// Expected returns the distinct ids expected on r, leftmost first.
func (r Rails) Expected() []string {
	var ids []string
	seen := make(map[string]struct{}, len(r))
	for _, e := range r {
		if e == nil {
			continue
		}
		if _, ok := seen[e.Expected]; ok {
			continue
		}
		seen[e.Expected] = struct{}{}
		ids = append(ids, e.Expected)
	}
	return ids
}

// Occupied counts the non-free rails.
func (r Rails) Occupied() int {
	n := 0
	for _, e := range r {
		if e != nil {
			n++
		}
	}
	return n
}

// claim returns the leftmost rail expecting id, else the leftmost free rail,
// appending a new one when none is free. The bool reports whether id was
// already expected.
func (r *Rails) claim(id string) (int, bool) {
	if i, ok := r.Find(id); ok {
		return i, true
	}
	for i, e := range *r {
		if e == nil {
			return i, false
		}
	}
	*r = append(*r, nil)
	return len(*r) - 1, false
}

func (r *Rails) trim() {
	end := len(*r)
	for end > 0 && (*r)[end-1] == nil {
		end--
	}
	*r = (*r)[:end]
}

// Row is one line of the graph.
type Row struct {
	Commit *git.Commit `json:"commit"`
	Rail   int         `json:"rail"`
	// HasParentLine is set when a line continues down from this commit on its own rail.
	HasParentLine bool `json:"hasParentLine"`
	// HasChildLine is set when a row above expected this commit on its rail.
	HasChildLine bool `json:"hasChildLine"`
	// Outgoing lists the rails, other than Rail, this commit's parents were placed on.
	Outgoing []int `json:"outgoing"`
	// Incoming lists the other rails that expected this commit and end here.
	Incoming []int `json:"incoming"`
	// Rails is the rail state after this row.
	Rails Rails `json:"rails"`
}

// Layout is an ordered sequence of rows and the rail state after the last one.
type Layout struct {
	Rows  []Row `json:"lines"`
	Rails Rails `json:"rails"`
}
