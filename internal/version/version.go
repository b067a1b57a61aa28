// Package version reports the qermital build.
package version

import (
	"runtime/debug"
	"strings"
)

// buildVersion is set via -ldflags "-X pkt.systems/qermital/internal/version.buildVersion=...".
var buildVersion = ""

// String returns the release set at link time, else the module version, else
// the short vcs revision with a "+dirty" suffix for modified trees.
func String() string {
	if v := strings.TrimSpace(buildVersion); v != "" {
		return v
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "devel"
	}
	return fromBuildInfo(info)
}

// Line is what `/version` prints.
func Line() string {
	return "qermital " + String()
}

func fromBuildInfo(info *debug.BuildInfo) string {
	if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
		return v
	}
	var revision string
	var modified bool
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	if revision == "" {
		return "devel"
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	if modified {
		revision += "+dirty"
	}
	return "devel-" + revision
}
