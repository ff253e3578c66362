package ir

// Version constants for the state format and engine.
const (
	// FormatVersion is the version of the serialized state/action format.
	FormatVersion = "1"

	// EngineVersion is the strata engine version.
	EngineVersion = "0.1.0"
)
