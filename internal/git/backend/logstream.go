package backend

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/thiagokokada/gitrails/internal/git"
)

// NUL-delimited records; commit message cannot contain NUL.
const logFormat = "%H%n%P%n%an%n%ae%n%aI%n%cn%n%ce%n%cI%n%B%x00"

type gitLogStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
	r      *bufio.Reader
	skip   func(id string) bool

	waitOnce sync.Once
	waitErr  error
}

// startGitLogStream runs git log with args followed by the record format
// flags. The process is killed when ctx is done or the stream is closed.
func startGitLogStream(ctx context.Context, repoPath string, args []string) (*gitLogStream, error) {
	if repoPath == "" {
		return nil, fmt.Errorf("repository root not set")
	}
	ctx, cancel := context.WithCancel(ctx)
	cmdArgs := []string{"--no-pager", "-C", repoPath}
	cmdArgs = append(cmdArgs, args[0],
		"--no-color",
		"--no-decorate",
		"--no-patch",
		// Use tformat to avoid git log adding an extra newline after each record.
		"--pretty=tformat:"+logFormat,
	)
	cmdArgs = append(cmdArgs, args[1:]...)
	cmdArgs = append(cmdArgs, "--")
	cmd := exec.CommandContext(ctx, "git", cmdArgs...)
	stream := &gitLogStream{ctx: ctx, cancel: cancel, cmd: cmd}
	cmd.Stderr = &stream.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("git log stdout: %w", err)
	}
	stream.stdout = stdout
	stream.r = bufio.NewReader(stdout)
	if err := cmd.Start(); err != nil {
		cancel()
		_ = stdout.Close()
		if stream.stderr.Len() > 0 {
			return nil, fmt.Errorf("git log start: %v: %s", err, strings.TrimSpace(stream.stderr.String()))
		}
		return nil, fmt.Errorf("git log start: %w", err)
	}
	return stream, nil
}

func (s *gitLogStream) Next() (*git.Commit, error) {
	for {
		if err := s.ctx.Err(); err != nil {
			return nil, err
		}
		c, err := s.read()
		if err != nil {
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if s.skip != nil && s.skip(c.ID) {
			continue
		}
		return c, nil
	}
}

func (s *gitLogStream) read() (*git.Commit, error) {
	rec, err := s.r.ReadBytes(0)
	if err != nil {
		if err == io.EOF {
			if waitErr := s.wait(); waitErr != nil {
				return nil, waitErr
			}
			return nil, io.EOF
		}
		return nil, err
	}
	if len(rec) == 0 {
		return nil, io.EOF
	}
	// Strip trailing NUL.
	rec = rec[:len(rec)-1]
	// git log prints a newline between commits even when the format ends with NUL,
	// so subsequent records can start with '\n'.
	rec = bytes.TrimLeft(rec, "\r\n")
	if len(rec) == 0 {
		return nil, fmt.Errorf("%w: unexpected empty git log record", git.ErrSourceCorrupt)
	}
	commit, err := parseGitLogRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", git.ErrSourceCorrupt, err)
	}
	return commit, nil
}

func (s *gitLogStream) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.stdout != nil {
		_ = s.stdout.Close()
	}
	// the process was killed above unless it already finished
	_ = s.wait()
	return nil
}

func (s *gitLogStream) wait() error {
	s.waitOnce.Do(func() {
		if s.cmd != nil {
			s.waitErr = s.cmd.Wait()
		}
	})
	if s.waitErr == nil {
		return nil
	}
	if s.stderr.Len() > 0 {
		return fmt.Errorf("git log: %v: %s", s.waitErr, strings.TrimSpace(s.stderr.String()))
	}
	return fmt.Errorf("git log: %w", s.waitErr)
}

func parseGitLogRecord(rec []byte) (*git.Commit, error) {
	parts := strings.Split(string(rec), "\n")
	if len(parts) < 8 {
		return nil, fmt.Errorf("unexpected git log record: got %d lines", len(parts))
	}
	id := strings.TrimSpace(parts[0])
	if id == "" {
		return nil, fmt.Errorf("missing commit hash")
	}
	var parents []git.ParentRef
	for _, p := range strings.Fields(parts[1]) {
		parents = append(parents, git.NewParentRef(p))
	}
	authorWhen, err := time.Parse(time.RFC3339, parts[4])
	if err != nil {
		return nil, fmt.Errorf("commit %s: author date: %w", git.ShortID(id), err)
	}
	committerWhen, err := time.Parse(time.RFC3339, parts[7])
	if err != nil {
		return nil, fmt.Errorf("commit %s: committer date: %w", git.ShortID(id), err)
	}
	message := ""
	if len(parts) > 8 {
		message = strings.Join(parts[8:], "\n")
	}
	return &git.Commit{
		Kind:      git.KindRegular,
		ID:        id,
		ShortID:   git.ShortID(id),
		Message:   message,
		Parents:   parents,
		Author:    git.Person{Name: parts[2], Email: parts[3], When: authorWhen},
		Committer: git.Person{Name: parts[5], Email: parts[6], When: committerWhen},
	}, nil
}
