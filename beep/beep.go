package beep

var disabled bool

func Disable() { disabled = true }

const (
	sampleRate = 44100

	// Recording-start cue: short rising ping
	startFreq   = 1040
	startVolume = 0.45
	startDecay  = 55

	// Recording-saved cue: softer, a fifth below the start ping
	endFreq   = 693
	endVolume = 0.45
	endDecay  = 35

	// Error cue: low double-beep
	errorFreq   = 310
	errorVolume = 0.6
	errorDecay  = 28
)

// Platform-specific durations (darwin uses shorter durations)
