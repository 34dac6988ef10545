package version

var (
	// GitCommit is the current HEAD set using ldflags.
	GitCommit string

	// Version is the built software version.
	Version = OprelaySemVer
)

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
}

// OprelaySemVer is the current version of the oprelay software. It's the
// Semantic Version of the software.
const OprelaySemVer = "0.1.0"
