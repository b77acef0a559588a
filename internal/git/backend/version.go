package backend

import (
	"cmp"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// ErrGitTooOld is returned by OpenCLI when the git executable predates
// "rev-parse --end-of-options".
var ErrGitTooOld = errors.New("git is too old")

var minGitVersion = gitVersion{major: 2, minor: 24}

type gitVersion struct {
	major, minor, patch int
}

func (v gitVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.major, v.minor, v.patch)
}

func (v gitVersion) compare(o gitVersion) int {
	return cmp.Or(cmp.Compare(v.major, o.major), cmp.Compare(v.minor, o.minor), cmp.Compare(v.patch, o.patch))
}

// versionPattern matches the numeric part of "git version 2.39.3 (Apple Git-146)",
// "git version 2.39.3.windows.1" or a bare "2.42".
var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

func parseGitVersionOutput(out string) (gitVersion, bool) {
	s := strings.TrimSpace(out)
	s = strings.TrimSpace(strings.TrimPrefix(s, "git version"))
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return gitVersion{}, false
	}
	var v gitVersion
	v.major, _ = strconv.Atoi(m[1])
	v.minor, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		v.patch, _ = strconv.Atoi(m[3])
	}
	return v, true
}

func checkGitVersion(out string) error {
	got, ok := parseGitVersionOutput(out)
	if !ok {
		return fmt.Errorf("unable to parse git version output: %q", strings.TrimSpace(out))
	}
	if got.compare(minGitVersion) < 0 {
		return fmt.Errorf("%w: found %s, gitrails requires git >= %s", ErrGitTooOld, got, minGitVersion)
	}
	return nil
}

var gitVersionOutput = sync.OnceValues(func() (string, error) {
	out, err := exec.Command("git", "--version").CombinedOutput()
	s := strings.TrimSpace(string(out))
	if err != nil {
		if s != "" {
			return "", fmt.Errorf("git --version: %v: %s", err, s)
		}
		return "", fmt.Errorf("git --version: %w", err)
	}
	return s, nil
})

// GitVersion returns the output of "git --version", run once per process.
func GitVersion() (string, error) {
	return gitVersionOutput()
}

func ensureMinGitVersion() error {
	out, err := gitVersionOutput()
	if err != nil {
		return err
	}
	return checkGitVersion(out)
}
