package ambience

import (
	"fmt"
	"io"
	"os"

	"github.com/firehorse/darkmix"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// Asset is a decoded stereo recording at the engine sample rate.
type Asset struct {
	Name    string
	Samples darkmix.AudioBuffer
}

const resampleQuality = 4

// Decode reads a WAV stream and converts it to the engine sample rate. Mono
// files are duplicated to both channels.
func Decode(name string, r io.Reader, sampleRate int) (*Asset, error) {
	streamer, format, err := wav.Decode(r)
	if err != nil {
		return nil, decodeError(name, err)
	}
	defer streamer.Close()
	var s beep.Streamer = streamer
	if target := beep.SampleRate(sampleRate); format.SampleRate != target {
		s = beep.Resample(resampleQuality, format.SampleRate, target, streamer)
	}
	a := &Asset{Name: name}
	chunk := make([][2]float64, 4096)
	for {
		n, ok := s.Stream(chunk)
		for _, v := range chunk[:n] {
			a.Samples = append(a.Samples, [2]float32{float32(v[0]), float32(v[1])})
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, decodeError(name, err)
	}
	if len(a.Samples) == 0 {
		return nil, decodeError(name, fmt.Errorf("no samples"))
	}
	return a, nil
}

// Load decodes the WAV file at path.
func Load(name, path string, sampleRate int) (*Asset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, decodeError(name, err)
	}
	defer f.Close()
	return Decode(name, f, sampleRate)
}

// Duration is the asset length in seconds at the given rate.
func (a *Asset) Duration(sampleRate int) float64 {
	return float64(len(a.Samples)) / float64(sampleRate)
}

func decodeError(name string, err error) error {
	return darkmix.InitializationError(fmt.Errorf("%w: %s: %w", darkmix.ErrAssetDecode, name, err), "loading ambience asset")
}
