package build

// Stamped at link time, e.g.
//
//	go build -ldflags "-X github.com/rohmanhakim/gutenberg-fetch/internal/build.Version=1.2.0"
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// FullVersion returns the version string with commit hash appended.
// Format: "Version+Commit" (e.g., "1.0.0+abc123")
func FullVersion() string {
	return Version + "+" + Commit
}

// UserAgent returns the default User-Agent product token for this build.
func UserAgent() string {
	return "gutenberg-fetch/" + Version
}
