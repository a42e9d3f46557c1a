// Package version carries the build metadata stamped into the sfile binary.
package version

var (
	// Version is the release version (set via -ldflags).
	Version = ""
	// Commit is the git commit hash (set via -ldflags).
	Commit = ""
	// Date is the build timestamp (set via -ldflags).
	Date = ""
)

type Info struct {
	Version string
	Commit  string
	Date    string
}

func Resolve() Info {
	resolved := Info{
		Version: Version,
		Commit:  Commit,
		Date:    Date,
	}
	if resolved.Version == "" {
		resolved.Version = "dev"
	}
	return resolved
}

func String() string {
	info := Resolve()
	if info.Commit == "" {
		return info.Version
	}
	return info.Version + " (" + shortCommit(info.Commit) + ")"
}

func shortCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}
