// Package buildinfo reports how the running binary was built.
package buildinfo

import (
	"fmt"
	"runtime/debug"
	"strings"
)

var readBuildInfo = debug.ReadBuildInfo

// Info is the subset of build metadata printed by the version command.
type Info struct {
	Version  string `json:"version"`
	Revision string `json:"revision,omitempty"`
	Modified bool   `json:"modified,omitempty"`
	Tags     string `json:"tags,omitempty"`
	Go       string `json:"go"`
}

// Read returns the build metadata, with Version "dev" for local builds.
func Read() Info {
	info, ok := readBuildInfo()
	if !ok || info == nil {
		return Info{Version: "dev"}
	}
	out := Info{Version: info.Main.Version, Go: info.GoVersion}
	if out.Version == "" || out.Version == "(devel)" {
		out.Version = "dev"
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "-tags":
			out.Tags = setting.Value
		case "vcs.revision":
			out.Revision = setting.Value
		case "vcs.modified":
			out.Modified = setting.Value == "true"
		}
	}
	return out
}

func (i Info) String() string {
	var b strings.Builder
	b.WriteString(i.Version)
	if i.Revision != "" {
		rev := i.Revision
		if len(rev) > 12 {
			rev = rev[:12]
		}
		fmt.Fprintf(&b, " (%s", rev)
		if i.Modified {
			b.WriteString(", dirty")
		}
		b.WriteString(")")
	}
	if i.Tags != "" {
		fmt.Fprintf(&b, " (tags: %s)", i.Tags)
	}
	return b.String()
}

// Version returns the module version or "dev" when unset.
func Version() string {
	return Read().Version
}
