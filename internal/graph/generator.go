package graph

import (
	"slices"

	"github.com/thiagokokada/gitrails/internal/git"
)

// Next lays out c against rails and returns its row. rails is updated to the
// state after the row; the row holds its own snapshot of it.
func Next(c *git.Commit, rails *Rails) Row {
	prev := rails.Clone()
	parents := c.GraphParents()

	// Take the leftmost rail expecting us, else a free one.
	myRail, hasChild := rails.claim(c.ID)

	// Our rail continues with the first parent that is not already expected
	// somewhere to our left; keeps lines leaning towards rail 0.
	var first *RailEntry
	for _, p := range parents {
		if _, ok := (*rails)[:myRail].Find(p); !ok {
			first = &RailEntry{Expected: p}
			break
		}
	}
	(*rails)[myRail] = first

	// Every parent gets the leftmost rail expecting it, else a free one.
	var outgoing []int
	for _, p := range parents {
		idx, _ := rails.claim(p)
		(*rails)[idx] = &RailEntry{Expected: p}
		if idx != myRail {
			outgoing = append(outgoing, idx)
		}
	}

	var incoming []int
	for i := range *rails {
		if i != myRail && rails.expects(i, c.ID) {
			incoming = append(incoming, i)
		}
	}

	for i, e := range *rails {
		switch {
		case e == nil:
		case e.Expected == c.ID:
			(*rails)[i] = nil
		default:
			(*rails)[i] = &RailEntry{Expected: e.Expected, Through: prev.expects(i, e.Expected)}
		}
	}
	rails.trim()

	return Row{
		Commit:        c,
		Rail:          myRail,
		HasParentLine: myRail < len(*rails) && (*rails)[myRail] != nil,
		HasChildLine:  hasChild,
		Outgoing:      outgoing,
		Incoming:      incoming,
		Rails:         rails.Clone(),
	}
}

// Compute lays out commits in order starting from rails, which is not modified.
func Compute(commits []*git.Commit, rails Rails) Layout {
	state := rails.Clone()
	rows := make([]Row, 0, len(commits))
	for _, c := range commits {
		if c == nil {
			continue
		}
		rows = append(rows, Next(c, &state))
	}
	return Layout{Rows: rows, Rails: state}
}

// Width is the number of columns needed to draw row.
func (row Row) Width() int {
	w := max(len(row.Rails), row.Rail+1)
	if len(row.Outgoing) > 0 {
		w = max(w, slices.Max(row.Outgoing)+1)
	}
	if len(row.Incoming) > 0 {
		w = max(w, slices.Max(row.Incoming)+1)
	}
	return w
}
