package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"gopkg.in/yaml.v3"
)

// 构建时通过 ldflags 注入：
//
//	-X github.com/John-Robertt/catresize/internal/version.Version=v0.3.0
//	-X github.com/John-Robertt/catresize/internal/version.Commit=<sha>
var (
	Version = "dev"
	Commit  = ""
)

// Info 是 version 子命令的输出结构。
type Info struct {
	Name      string `json:"name" yaml:"name"`
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	Modified  bool   `json:"modified,omitempty" yaml:"modified,omitempty"`
	GoVersion string `json:"go" yaml:"go"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Get 汇总 ldflags 与 runtime/debug 中的构建信息；ldflags 优先。
func Get() Info {
	i := Info{
		Name:      "catresize",
		Version:   Version,
		Commit:    Commit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return i
	}
	if i.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		i.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if i.Commit == "" {
				i.Commit = s.Value
			}
		case "vcs.modified":
			i.Modified = s.Value == "true"
		}
	}
	if i.Commit == "" {
		i.Commit = "unknown"
	}
	return i
}

// UserAgent 返回 storefront 请求使用的 UA。
func (i Info) UserAgent() string { return i.Name + "/" + i.Version }

func (i Info) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", i.Name, i.Version)
	commit := i.Commit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if i.Modified {
		commit += " (modified)"
	}
	fmt.Fprintf(&sb, "  commit:   %s\n", commit)
	fmt.Fprintf(&sb, "  go:       %s\n", i.GoVersion)
	fmt.Fprintf(&sb, "  platform: %s\n", i.Platform)
	return sb.String()
}

// Format 按 output（text|json|yaml）渲染。
func (i Info) Format(output string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(output)) {
	case "", "text":
		return i.String(), nil
	case "json":
		b, err := json.MarshalIndent(i, "", "  ")
		if err != nil {
			return "", err
		}
		return string(b) + "\n", nil
	case "yaml":
		b, err := yaml.Marshal(i)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("unsupported output format %q (text|json|yaml)", output)
	}
}
