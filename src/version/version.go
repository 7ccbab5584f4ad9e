package version

// Flag carries extra info about the version while developing. It should
// always be empty on the master branch.
const Flag = ""

var (
	// Version is the full version string
	Version = "0.1.0"

	// GitCommit is set with --ldflags "-X main.gitCommit=$(git rev-parse HEAD)"
	GitCommit string
)

func init() {
	if Flag != "" {
		Version += "-" + Flag
	}

	if GitCommit != "" {
		Version += "-" + GitCommit[:8]
	}
}
