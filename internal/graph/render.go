package graph

import (
	"slices"
	"strings"
)

// Glyphs used by Render.
const (
	GlyphCommit = '*'
	GlyphLine   = '|'
	GlyphLeft   = '/'
	GlyphRight  = '\\'
	GlyphEmpty  = ' '
)

// Cells returns one glyph per column of row. Edges to parents on other rails
// and lines from other rails ending at the commit are drawn as diagonals
// touching the commit; other occupied rails are vertical lines.
func (row Row) Cells() []rune {
	cells := make([]rune, row.Width())
	for i := range cells {
		switch {
		case i == row.Rail:
			cells[i] = GlyphCommit
		case slices.Contains(row.Outgoing, i):
			cells[i] = diagonal(i < row.Rail)
		case slices.Contains(row.Incoming, i):
			cells[i] = diagonal(i > row.Rail)
		case i < len(row.Rails) && row.Rails[i] != nil:
			cells[i] = GlyphLine
		default:
			cells[i] = GlyphEmpty
		}
	}
	return cells
}

func diagonal(left bool) rune {
	if left {
		return GlyphLeft
	}
	return GlyphRight
}

// Render draws row in the style of git log --graph, columns separated by a space.
func Render(row Row) string {
	cells := row.Cells()
	var b strings.Builder
	for i, c := range cells {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(c)
	}
	return strings.TrimRight(b.String(), " ")
}

// RenderLayout renders every row of l followed by its subject line.
func RenderLayout(l Layout, subject func(Row) string) string {
	width := 0
	for _, row := range l.Rows {
		width = max(width, row.Width())
	}
	var b strings.Builder
	for _, row := range l.Rows {
		line := Render(row)
		if subject != nil {
			line += strings.Repeat(" ", 2*width+1-len(line)) + subject(row)
		}
		b.WriteString(strings.TrimRight(line, " "))
		b.WriteByte('\n')
	}
	return b.String()
}
