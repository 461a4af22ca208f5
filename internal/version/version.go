package version

var (
	// Version is the current application version, set via ldflags.
	Version = "v0.1.0"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)

// String renders version, commit and build date for -version output.
func String() string {
	return Version + " (commit: " + Commit + ", built: " + Date + ")"
}
