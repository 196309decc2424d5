// Package version carries build metadata injected at link time.
package version

import "runtime/debug"

// Set via -ldflags at release build time; Init fills gaps from build info.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Init backfills version metadata from the embedded module build info when
// the binary was built without ldflags (go install, go run).
func Init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if Commit == "unknown" {
				Commit = setting.Value
			}
		case "vcs.time":
			if Date == "unknown" {
				Date = setting.Value
			}
		}
	}
}
