package mixbus_test

import (
	"math"
	"testing"

	"github.com/firehorse/darkmix"
	"github.com/firehorse/darkmix/graph"
	"github.com/firehorse/darkmix/mixbus"
	"github.com/firehorse/darkmix/voice"
)

const sampleRate = 44100

func TestLimiterCeilingWith32Voices(t *testing.T) {
	g := graph.New(sampleRate)
	patch := darkmix.DefaultConfig().Voices.Copy()
	for i := range patch {
		patch[i].Gain = 1
		patch[i].Monophonic = false
	}
	bank, err := voice.NewBank(patch, g)
	if err != nil {
		t.Fatalf("NewBank: %v", err)
	}
	for i := 0; i < 32; i++ {
		id := patch[i%len(patch)].Name
		if _, err := bank.Trigger(id, 0.01, float64(i%5), 1, 0.5); err != nil {
			t.Fatalf("Trigger %s: %v", id, err)
		}
	}
	bus := mixbus.New(sampleRate)
	voices := make(darkmix.AudioBuffer, 256)
	amb := make(darkmix.AudioBuffer, 256)
	out := make(darkmix.AudioBuffer, 256)
	amb.Fill([2]float32{0.5, -0.5})
	rawPeak := float32(0)
	for n := 0; n < sampleRate; n += len(out) {
		frame := g.Frame()
		g.Render(voices)
		for _, s := range voices {
			rawPeak = max(rawPeak, float32(math.Abs(float64(s[0]))), float32(math.Abs(float64(s[1]))))
		}
		bus.Mix(out, voices, amb, frame)
		for i, s := range out {
			if math.Abs(float64(s[0])) > mixbus.DefaultCeiling || math.Abs(float64(s[1])) > mixbus.DefaultCeiling {
				t.Fatalf("frame %d sample %d = %v exceeds ceiling", frame, i, s)
			}
		}
	}
	if rawPeak <= mixbus.DefaultCeiling {
		t.Fatalf("raw voice peak %v never exceeded the ceiling, test does not exercise the limiter", rawPeak)
	}
}

func TestLimiterHoldsHugeInput(t *testing.T) {
	bus := mixbus.New(sampleRate, mixbus.WithCeiling(0.5))
	voices := make(darkmix.AudioBuffer, 128)
	amb := make(darkmix.AudioBuffer, 128)
	out := make(darkmix.AudioBuffer, 128)
	for i := range voices {
		v := float32(32)
		if i%2 == 1 {
			v = -32
		}
		voices[i] = [2]float32{v, v / 2}
	}
	bus.Mix(out, voices, amb, 0)
	for i, s := range out {
		if math.Abs(float64(s[0])) > 0.5 || math.Abs(float64(s[1])) > 0.5 {
			t.Fatalf("sample %d = %v exceeds ceiling 0.5", i, s)
		}
	}
	if l := bus.Levels(); l.Reduction >= 0 {
		t.Errorf("expected gain reduction, got %v dB", l.Reduction)
	}
}

func TestQuietSignalPassesUnchanged(t *testing.T) {
	bus := mixbus.New(sampleRate)
	voices := make(darkmix.AudioBuffer, 64)
	amb := make(darkmix.AudioBuffer, 64)
	out := make(darkmix.AudioBuffer, 64)
	voices.Fill([2]float32{0.1, 0.2})
	amb.Fill([2]float32{0.05, -0.05})
	bus.Mix(out, voices, amb, 0)
	for i, s := range out {
		if math.Abs(float64(s[0]-0.15)) > 1e-6 || math.Abs(float64(s[1]-0.15)) > 1e-6 {
			t.Fatalf("sample %d = %v, want [0.15 0.15]", i, s)
		}
	}
}

func TestMasterGainIsRamped(t *testing.T) {
	bus := mixbus.New(sampleRate)
	voices := make(darkmix.AudioBuffer, 512)
	amb := make(darkmix.AudioBuffer, 512)
	out := make(darkmix.AudioBuffer, 512)
	voices.Fill([2]float32{0.5, 0.5})
	bus.SetMasterGain(0)
	if got := bus.MasterGain(); got != 0 {
		t.Fatalf("MasterGain = %v, want 0", got)
	}
	var rendered []float32
	frame := int64(0)
	for n := 0; n < 8; n++ {
		bus.Mix(out, voices, amb, frame)
		frame += int64(len(out))
		for _, s := range out {
			rendered = append(rendered, s[0])
		}
	}
	maxStep := 0.5 / (mixbus.DefaultRampTime * sampleRate) * 1.01
	for i := 1; i < len(rendered); i++ {
		if d := math.Abs(float64(rendered[i] - rendered[i-1])); d > maxStep+1e-6 {
			t.Fatalf("step %v at sample %d exceeds ramp slope %v", d, i, maxStep)
		}
	}
	if last := rendered[len(rendered)-1]; last != 0 {
		t.Errorf("output after ramp = %v, want 0", last)
	}
}

func TestMasterGainClamped(t *testing.T) {
	bus := mixbus.New(sampleRate)
	bus.SetMasterGain(3)
	if got := bus.MasterGain(); got != 1 {
		t.Errorf("MasterGain = %v, want 1", got)
	}
	bus.SetMasterGain(-1)
	if got := bus.MasterGain(); got != 0 {
		t.Errorf("MasterGain = %v, want 0", got)
	}
}

func TestInvalidSamplesAreSilenced(t *testing.T) {
	var alerts []darkmix.Alert
	bus := mixbus.New(sampleRate, mixbus.WithAlerts(func(a darkmix.Alert) { alerts = append(alerts, a) }))
	voices := make(darkmix.AudioBuffer, 16)
	amb := make(darkmix.AudioBuffer, 16)
	out := make(darkmix.AudioBuffer, 16)
	voices[3][0] = float32(math.NaN())
	voices[5][1] = float32(math.Inf(1))
	bus.Mix(out, voices, amb, 0)
	for i, s := range out {
		if s != [2]float32{} {
			t.Fatalf("sample %d = %v, want silence", i, s)
		}
	}
	if len(alerts) != 1 || alerts[0].Name != darkmix.AlertInvalidSample || alerts[0].Priority != darkmix.Error {
		t.Errorf("alerts = %v, want one InvalidSample error", alerts)
	}
}

func TestLevelsFollowSignal(t *testing.T) {
	bus := mixbus.New(sampleRate)
	if l := bus.Levels(); l.Peak > -59 {
		t.Fatalf("initial peak %v dB, want floor", l.Peak)
	}
	voices := make(darkmix.AudioBuffer, 1024)
	amb := make(darkmix.AudioBuffer, 1024)
	out := make(darkmix.AudioBuffer, 1024)
	voices.Fill([2]float32{0.5, 0.5})
	for n := 0; n < 100; n++ {
		bus.Mix(out, voices, amb, int64(n*len(out)))
	}
	l := bus.Levels()
	want := float32(20 * math.Log10(0.5))
	if math.Abs(float64(l.Peak-want)) > 0.5 || math.Abs(float64(l.Average-want)) > 0.5 {
		t.Errorf("levels %+v, want peak and average near %v dB", l, want)
	}
}
