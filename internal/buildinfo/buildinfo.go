// Package buildinfo carries the version stamped at link time:
//
//	go build -ldflags "-X deliverysync/internal/buildinfo.Version=v1.2.0 -X deliverysync/internal/buildinfo.Commit=$(git rev-parse HEAD)"
package buildinfo

import "runtime/debug"

var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

// Info is served on /healthz. Without a linked commit it falls back to the VCS
// revision recorded by the go tool.
func Info() map[string]string {
    commit := Commit
    goVersion := ""
    if bi, ok := debug.ReadBuildInfo(); ok {
        goVersion = bi.GoVersion
        if commit == "" {
            for _, s := range bi.Settings {
                if s.Key == "vcs.revision" {
                    commit = s.Value
                }
            }
        }
    }
    return map[string]string{
        "service": "deliverysync",
        "version": Version,
        "commit":  commit,
        "builtAt": BuiltAt,
        "go":      goVersion,
    }
}
