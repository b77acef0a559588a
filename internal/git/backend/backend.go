// Package backend provides the git.Source implementations: a pure Go one built
// on go-git and one that shells out to the git executable.
package backend

import (
	"fmt"
	"strings"

	"github.com/thiagokokada/gitrails/internal/git"
)

type Kind string

const (
	KindNative Kind = "native"
	KindGitCLI Kind = "gitcli"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "", KindNative:
		return KindNative, nil
	case KindGitCLI:
		return KindGitCLI, nil
	default:
		return "", fmt.Errorf("unknown backend %q (want %s or %s)", s, KindNative, KindGitCLI)
	}
}

// Open opens the repository containing repoPath with the given backend.
func Open(kind Kind, repoPath string) (git.Source, error) {
	switch kind {
	case KindNative, "":
		return OpenNative(repoPath)
	case KindGitCLI:
		return OpenCLI(repoPath)
	default:
		return nil, fmt.Errorf("unknown backend %q", kind)
	}
}

// buildLabels groups ref labels by commit id, with HEAD first.
func buildLabels(refs []Ref, headHash, headBranch string) map[string][]string {
	labels := map[string][]string{}
	for _, ref := range refs {
		switch {
		case ref.Kind == RefKindStash,
			ref.Kind == RefKindRemoteBranch && strings.HasSuffix(ref.Name, "/HEAD"),
			// shown as "HEAD -> branch"
			ref.Kind == RefKindBranch && ref.Name == headBranch && ref.Hash == headHash:
			continue
		}
		labels[ref.Hash] = append(labels[ref.Hash], ref.Label())
	}
	if headHash != "" {
		label := "HEAD"
		if headBranch != "" {
			label = fmt.Sprintf("HEAD -> %s", headBranch)
		}
		labels[headHash] = append([]string{label}, labels[headHash]...)
	}
	return labels
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func cleanPathspec(path string) string {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "./")
	return strings.Trim(path, "/")
}
