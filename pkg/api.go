package sbforensics

// This file holds small helpers the command line front ends share

// InitDebugFlags initialises debug flags - for CLI compatibility
func InitDebugFlags(flagsStr string) {
	if flagsStr != "" {
		SetDebugFlags(flagsStr)
	}
}

// ApplyVerboseConfig sets the verbose level and debug flags from a config file
// section; explicit command line values win when non-zero.
func ApplyVerboseConfig(vc *VerboseConfig, cliLevel int, cliDebug string) {
	level := vc.Level
	if cliLevel > 0 {
		level = cliLevel
	}
	SetVerboseLevel(level)

	debug := vc.Debug
	if cliDebug != "" {
		debug = cliDebug
	}
	InitDebugFlags(debug)

	if level > 0 {
		VerboseLog(1, "verbose level %d, debug flags %q", level, debug)
	}
}

// GetDebugEnabled returns whether a debug flag is enabled - public alternative to IsDebugEnabled
func GetDebugEnabled(flag string) bool {
	return IsDebugEnabled(flag)
}

// GetVerbose returns the current verbose level - public alternative
func GetVerbose() int {
	return GetVerboseLevel()
}
