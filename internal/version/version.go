package version

// Version is set at build time via -ldflags "-X github.com/neox5/seqbox/internal/version.Version=...".
var Version = "dev"

// String returns the build version.
func String() string {
	return Version
}
