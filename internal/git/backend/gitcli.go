package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/thiagokokada/gitrails/internal/git"
)

// CLI reads history by running the git executable.
type CLI struct {
	path string
}

func OpenCLI(repoPath string) (*CLI, error) {
	if err := ensureMinGitVersion(); err != nil {
		return nil, fmt.Errorf("%w: %w", git.ErrSourceUnavailable, err)
	}
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}
	tmp := &CLI{path: abs}
	root, err := tmp.runGitCommand(context.Background(), []string{"rev-parse", "--show-toplevel"}, false, "git rev-parse")
	if err != nil {
		return nil, fmt.Errorf("open repository: %w: %w", git.ErrSourceUnavailable, err)
	}
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("open repository: %w: git rev-parse returned empty root", git.ErrSourceUnavailable)
	}
	return &CLI{path: root}, nil
}

func (g *CLI) RepoPath() string {
	if g == nil {
		return ""
	}
	return g.path
}

func (g *CLI) Close() error { return nil }

func (g *CLI) runGitCommand(ctx context.Context, args []string, allowExit1 bool, what string) (string, error) {
	if g == nil || g.path == "" {
		return "", fmt.Errorf("%w: repository root not set", git.ErrSourceUnavailable)
	}
	cmdArgs := append([]string{"--no-pager", "-C", g.path}, args...)
	cmd := exec.CommandContext(ctx, "git", cmdArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if allowExit1 && errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && stderr.Len() == 0 {
			// exit status 1 without output: nothing matched
		} else {
			if stderr.Len() > 0 {
				return "", fmt.Errorf("%s: %v: %s", what, err, strings.TrimSpace(stderr.String()))
			}
			return "", fmt.Errorf("%s: %w", what, err)
		}
	}
	return stdout.String(), nil
}

// revParse resolves rev to a commit id, returning "" when it does not exist.
func (g *CLI) revParse(rev string) (string, error) {
	if strings.HasPrefix(rev, "-") {
		return "", nil
	}
	out, err := g.runGitCommand(context.Background(), []string{"rev-parse", "-q", "--verify", "--end-of-options", rev + "^{commit}"}, true, "git rev-parse")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
