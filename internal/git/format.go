package git

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

func FormatCommitHeader(c *Commit) string {
	var b strings.Builder
	if c.IsStash() {
		fmt.Fprintf(&b, "stash %s", c.ID)
		if c.RefName != "" {
			fmt.Fprintf(&b, " (%s)", c.RefName)
		}
		b.WriteByte('\n')
	} else {
		fmt.Fprintf(&b, "commit %s\n", c.ID)
	}
	if len(c.Parents) > 1 {
		short := make([]string, len(c.Parents))
		for i, p := range c.Parents {
			short[i] = p.ShortID
		}
		fmt.Fprintf(&b, "Merge: %s\n", strings.Join(short, " "))
	}
	appendSignatureLine(&b, "Author", c.Author)
	committer := c.Committer
	if committer.Name == "" && committer.Email == "" && committer.When.IsZero() {
		committer = c.Author
	}
	appendSignatureLine(&b, "Committer", committer)
	b.WriteString("\n")
	message := strings.TrimRight(c.Message, "\n")
	if message == "" {
		b.WriteString("    (no commit message)\n")
		return b.String()
	}
	for line := range strings.SplitSeq(message, "\n") {
		if line == "" {
			b.WriteString("\n")
			continue
		}
		fmt.Fprintf(&b, "    %s\n", line)
	}
	return b.String()
}

func appendSignatureLine(b *strings.Builder, label string, sig Person) {
	fmt.Fprintf(b, "%s: %s <%s>", label, sig.Name, sig.Email)
	if !sig.When.IsZero() {
		fmt.Fprintf(b, "  %s", sig.When.Format("2006-01-02 15:04:05 -0700"))
	}
	b.WriteByte('\n')
}

// Subject returns the first line of the message, truncated for list views.
func Subject(c *Commit) string {
	firstLine := strings.SplitN(strings.TrimSpace(c.Message), "\n", 2)[0]
	if utf8.RuneCountInString(firstLine) > 80 {
		firstLine = string([]rune(firstLine)[:77]) + "..."
	}
	return firstLine
}

// Matches reports whether term occurs, case-insensitively, in the author
// name, author email, message, short id or id of a regular commit.
// Stash entries never match.
func Matches(c *Commit, term string) bool {
	if c == nil || c.IsStash() {
		return false
	}
	term = strings.ToLower(term)
	for _, field := range []string{c.Author.Name, c.Author.Email, c.Message, c.ShortID, c.ID} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}
