package ir

// Version constants for documents and tooling.
const (
	// SessionVersion is the SpecSession record schema version.
	SessionVersion = "1"

	// ToolVersion is the specforge version.
	ToolVersion = "0.1.0"
)
