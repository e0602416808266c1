//go:build !darkmixdebug

package ambience_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/firehorse/darkmix"
	"github.com/firehorse/darkmix/ambience"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

const (
	sampleRate = 44100
	blockSize  = 512
)

// sineAsset returns seconds of a sine wave with a whole number of cycles, so
// that its end joins its start.
func sineAsset(name string, seconds float64, freq float64) *ambience.Asset {
	n := int(seconds * sampleRate)
	a := &ambience.Asset{Name: name, Samples: make(darkmix.AudioBuffer, n)}
	for i := range a.Samples {
		v := float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
		a.Samples[i] = [2]float32{v, v}
	}
	return a
}

func render(l *ambience.Layer, frame *int64, seconds float64) darkmix.AudioBuffer {
	var out darkmix.AudioBuffer
	buf := make(darkmix.AudioBuffer, blockSize)
	for n := int(seconds * sampleRate); n > 0; n -= blockSize {
		l.Render(buf, *frame)
		*frame += blockSize
		out = append(out, buf...)
	}
	return out
}

func maxJump(x darkmix.AudioBuffer) float64 {
	var m float64
	for i := 1; i < len(x); i++ {
		m = math.Max(m, math.Abs(float64(x[i][0]-x[i-1][0])))
	}
	return m
}

func TestLoopSeamIsContinuous(t *testing.T) {
	const loopEnd = sampleRate * 5
	asset := sineAsset("bed", 5, 440)
	l, err := ambience.NewLayer(sampleRate, []ambience.Track{{
		Config: darkmix.AmbienceTrack{Name: "bed", LoopStart: 0, LoopEnd: loopEnd, Gain: 1},
		Asset:  asset,
	}})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.PlayLoop("bed"); err != nil {
		t.Fatal(err)
	}
	var frame int64
	out := render(l, &frame, 20)
	if len(out) < 20*sampleRate {
		t.Fatalf("rendered only %d frames", len(out))
	}
	for i := 0; i < 20*sampleRate; i++ {
		if out[i] != asset.Samples[i%loopEnd] {
			t.Fatalf("frame %d: got %v, expected asset frame %d %v", i, out[i], i%loopEnd, asset.Samples[i%loopEnd])
		}
	}
	bound := maxJump(asset.Samples) + 1e-6
	for seam := loopEnd; seam < 20*sampleRate; seam += loopEnd {
		if d := math.Abs(float64(out[seam][0] - out[seam-1][0])); d > bound {
			t.Errorf("seam at %d jumps by %v (max in asset %v)", seam, d, bound)
		}
	}
}

func TestLoopPointsInsideAsset(t *testing.T) {
	asset := sineAsset("bed", 1, 100)
	l, _ := ambience.NewLayer(sampleRate, []ambience.Track{{
		Config: darkmix.AmbienceTrack{Name: "bed", LoopStart: 1000, LoopEnd: 1000 + 441, Gain: 1},
		Asset:  asset,
	}})
	l.PlayLoop("bed")
	var frame int64
	out := render(l, &frame, 0.5)
	for i := 1441; i < len(out); i++ {
		want := asset.Samples[1000+(i-1000)%441]
		if out[i] != want {
			t.Fatalf("frame %d: got %v want %v", i, out[i], want)
		}
	}
	_, err := ambience.NewLayer(sampleRate, []ambience.Track{{
		Config: darkmix.AmbienceTrack{Name: "bad", LoopStart: 10, LoopEnd: sampleRate * 2},
		Asset:  asset,
	}})
	if !darkmix.IsInitializationError(err) {
		t.Errorf("loop end beyond the asset should fail, got %v", err)
	}
}

func TestPlayOncePerSession(t *testing.T) {
	l, _ := ambience.NewLayer(sampleRate, []ambience.Track{{
		Config: darkmix.AmbienceTrack{Name: "speech", Gain: 1, FadeIn: 0.02, FadeOut: 0.05},
		Asset:  sineAsset("speech", 0.5, 200),
	}})
	var frame int64
	l.PlayOnce("speech")
	l.PlayOnce("speech")
	render(l, &frame, 0.1)
	if l.Active() != 1 {
		t.Fatalf("expected one speech player, got %d", l.Active())
	}
	out := render(l, &frame, 1)
	if l.Active() != 0 {
		t.Errorf("speech did not end")
	}
	if maxJump(out) > 0.05 {
		t.Errorf("speech ended with a click")
	}
	l.PlayOnce("speech")
	render(l, &frame, 0.1)
	if l.Active() != 0 {
		t.Errorf("speech retriggered in the same session")
	}
	l.NewSession()
	l.PlayOnce("speech")
	render(l, &frame, 0.1)
	if l.Active() != 1 {
		t.Errorf("speech did not play in a new session")
	}
}

func TestStopFadesOut(t *testing.T) {
	l, _ := ambience.NewLayer(sampleRate, []ambience.Track{{
		Config: darkmix.AmbienceTrack{Name: "bed", Gain: 1, FadeOut: 0.2},
		Asset:  sineAsset("bed", 1, 50),
	}})
	var frame int64
	l.PlayLoop("bed")
	before := render(l, &frame, 0.5)
	l.Stop("bed", -1)
	after := render(l, &frame, 0.5)
	if j, bound := maxJump(append(before, after...)), maxJump(before)+1e-4; j > bound {
		t.Errorf("stop produced a jump of %v (bound %v)", j, bound)
	}
	if l.Active() != 0 {
		t.Errorf("player not removed after fade out")
	}
	if s := after[len(after)-1]; s != ([2]float32{}) {
		t.Errorf("expected silence after stop, got %v", s)
	}
}

func TestStopBeforeStartDropsPlayer(t *testing.T) {
	l, _ := ambience.NewLayer(sampleRate, []ambience.Track{{
		Config: darkmix.AmbienceTrack{Name: "speech", Gain: 1, FadeOut: 0.05},
		Asset:  sineAsset("speech", 1, 440),
	}})
	var frame int64
	l.PlayOnceAt("speech", 2)
	render(l, &frame, 0.1)
	if l.Active() != 1 {
		t.Fatalf("scheduled speech not queued: %d players", l.Active())
	}
	l.Stop("speech", -1)
	out := render(l, &frame, 0.1)
	if l.Active() != 0 {
		t.Errorf("stopped speech still waiting for its start: %d players", l.Active())
	}
	out = append(out, render(l, &frame, 2.5)...)
	for i, s := range out {
		if s != ([2]float32{}) {
			t.Fatalf("stopped speech audible at sample %d: %v", i, s)
		}
	}
}

func TestCrossfadeAndGain(t *testing.T) {
	l, _ := ambience.NewLayer(sampleRate, []ambience.Track{
		{Config: darkmix.AmbienceTrack{Name: "a", Gain: 1}, Asset: sineAsset("a", 1, 50)},
		{Config: darkmix.AmbienceTrack{Name: "b", Gain: 1}, Asset: sineAsset("b", 1, 50)},
	})
	var frame int64
	l.PlayLoop("a")
	render(l, &frame, 0.1)
	if err := l.Crossfade("a", "b", 0.5); err != nil {
		t.Fatal(err)
	}
	render(l, &frame, 0.2)
	if l.Active() != 2 {
		t.Errorf("expected both tracks during the crossfade, got %d", l.Active())
	}
	render(l, &frame, 0.5)
	if l.Active() != 1 {
		t.Errorf("expected only the new track after the crossfade, got %d", l.Active())
	}
	if err := l.SetGain("b", 0); err != nil {
		t.Fatal(err)
	}
	out := render(l, &frame, 0.1)
	if s := out[len(out)-1]; s != ([2]float32{}) {
		t.Errorf("gain 0 not applied: %v", s)
	}
}

func TestUnknownTrack(t *testing.T) {
	l, _ := ambience.NewLayer(sampleRate, nil)
	for _, err := range []error{l.PlayLoop("x"), l.PlayOnce("x"), l.SetGain("x", 1), l.Stop("x", 0)} {
		if !errors.Is(err, darkmix.ErrUnknownTrack) || !darkmix.IsProgrammingError(err) {
			t.Errorf("expected ErrUnknownTrack, got %v", err)
		}
	}
}

func TestDecodeResamples(t *testing.T) {
	const srcRate = 22050
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	tone := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			v := 0.5 * math.Sin(2*math.Pi*220*float64(n)/srcRate)
			samples[i] = [2]float64{v, v}
			n++
		}
		return len(samples), true
	})
	format := beep.Format{SampleRate: srcRate, NumChannels: 1, Precision: 2}
	if err := wav.Encode(f, beep.Take(srcRate/2, tone), format); err != nil {
		t.Fatalf("encoding test file: %v", err)
	}
	f.Close()
	a, err := ambience.Load("tone", path, sampleRate)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if d := a.Duration(sampleRate); math.Abs(d-0.5) > 0.01 {
		t.Errorf("expected 0.5 s after resampling, got %v", d)
	}
	var peak float32
	for _, s := range a.Samples {
		if s[0] != s[1] {
			t.Fatalf("mono file not duplicated to stereo: %v", s)
		}
		peak = max(peak, s[0])
	}
	if peak < 0.4 || peak > 0.6 {
		t.Errorf("unexpected peak %v", peak)
	}
}

func TestDecodeGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	os.WriteFile(path, []byte("definitely not a wav file"), 0o644)
	_, err := ambience.Load("junk", path, sampleRate)
	if !errors.Is(err, darkmix.ErrAssetDecode) || !darkmix.IsInitializationError(err) {
		t.Errorf("expected an asset decode initialization error, got %v", err)
	}
}
