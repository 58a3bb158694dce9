package version

// Set at build time with -ldflags "-X .../pkg/version.Version=..."
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)
