package buildinfo

// Populated via -ldflags "-X" at release time.
var (
	// Version is the release tag of the duma binary.
	Version = "dev"
	// Commit is the source revision the binary was built from.
	Commit = "none"
	// Date is the build timestamp.
	Date = "unknown"
)
