package deps

// FFprobe describes the duration probe. Without it durations are unknown and
// rotation only advances on explicit swap requests, so it is optional.
func FFprobe(binary string) Requirement {
	return Requirement{
		Name:        "FFprobe",
		Command:     binary,
		Description: "Probes media duration for swap timing",
		Optional:    true,
		VersionArg:  "-version",
	}
}
