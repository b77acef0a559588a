package git

import (
	"strconv"
	"strings"
)

// PatchFile summarizes one file of a unified diff.
type PatchFile struct {
	Path    string `json:"path"`
	Line    int    `json:"line"` // 1-based line of the "diff --git" header
	Added   int    `json:"added"`
	Deleted int    `json:"deleted"`
	Binary  bool   `json:"binary,omitempty"`
}

// PatchFiles lists the files of patch in order, with added and deleted line
// counts. Headers it cannot parse start no file.
func PatchFiles(patch string) []PatchFile {
	var (
		files   []PatchFile
		cur     *PatchFile
		inHunks bool
	)
	for i, line := range strings.Split(patch, "\n") {
		if strings.HasPrefix(line, "diff --git ") {
			cur, inHunks = nil, false
			if path := diffHeaderPath(line); path != "" {
				files = append(files, PatchFile{Path: path, Line: i + 1})
				cur = &files[len(files)-1]
			}
			continue
		}
		if cur == nil {
			continue
		}
		switch {
		case strings.HasPrefix(line, "@@"):
			inHunks = true
		case !inHunks && strings.HasPrefix(line, "Binary files "):
			cur.Binary = true
		case inHunks && strings.HasPrefix(line, "+"):
			cur.Added++
		case inHunks && strings.HasPrefix(line, "-"):
			cur.Deleted++
		}
	}
	return files
}

// diffHeaderPath returns the post-image path of a "diff --git a/x b/x" line.
func diffHeaderPath(line string) string {
	tokens := headerTokens(strings.TrimPrefix(line, "diff --git "))
	if len(tokens) < 2 {
		return ""
	}
	return strings.TrimPrefix(tokens[1], "b/")
}

// headerTokens splits s on blanks. Quoted tokens use git's C-style escapes.
func headerTokens(s string) []string {
	var tokens []string
	for {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			return tokens
		}
		if s[0] != '"' {
			end := strings.IndexAny(s, " \t")
			if end < 0 {
				end = len(s)
			}
			tokens = append(tokens, s[:end])
			s = s[end:]
			continue
		}
		end := closingQuote(s)
		if end < 0 {
			return tokens
		}
		tok, err := strconv.Unquote(s[:end+1])
		if err != nil {
			tok = s[1:end]
		}
		tokens = append(tokens, tok)
		s = s[end+1:]
	}
}

func closingQuote(s string) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}
