package domain

type CallStatus string

const (
	CallIdle       CallStatus = "idle"
	CallConnecting CallStatus = "connecting"
	CallActive     CallStatus = "active"
)

type CallMode string

const (
	ModeNone  CallMode = "none"
	ModeAudio CallMode = "audio"
	ModeVideo CallMode = "video"
)

// Valid reports whether m can be used to start a call.
func (m CallMode) Valid() bool {
	return m == ModeAudio || m == ModeVideo
}

func (m CallMode) WantsVideo() bool { return m == ModeVideo }

// OrAudio maps anything a remote peer might send that is not a usable mode
// onto audio, which every client can capture.
func (m CallMode) OrAudio() CallMode {
	if m.Valid() {
		return m
	}
	return ModeAudio
}
