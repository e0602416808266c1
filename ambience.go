package darkmix

// AmbienceTrack configures a pre-rendered asset played by the ambience layer.
// Loop points are sample indices into the decoded asset; LoopEnd 0 means the
// end of the asset.
type AmbienceTrack struct {
	Name      string
	File      string `yaml:",omitempty"`
	LoopStart int    `yaml:",omitempty"`
	LoopEnd   int    `yaml:",omitempty"`
	Gain      float64
	FadeIn    float64 `yaml:",omitempty"` // seconds
	FadeOut   float64 `yaml:",omitempty"` // seconds
}

const (
	BedTrack    = "bed"
	SpeechTrack = "speech"
)
