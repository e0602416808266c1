package darkmix_test

import (
	"errors"
	"math"
	"testing"

	"github.com/firehorse/darkmix"
)

func TestSecondsPerStepDecreasesWithTempo(t *testing.T) {
	prev := math.Inf(1)
	for bpm := darkmix.MinTempo; bpm <= darkmix.MaxTempo; bpm += 0.5 {
		s := bpm.SecondsPerStep()
		if s >= prev {
			t.Fatalf("SecondsPerStep(%v) = %v, not below %v", bpm, s, prev)
		}
		prev = s
	}
}

func TestSecondsPerStepAt120(t *testing.T) {
	if got := darkmix.Tempo(120).SecondsPerStep(); math.Abs(got-0.125) > 1e-12 {
		t.Errorf("expected 0.125 s per 16th at 120 bpm, got %v", got)
	}
	if got := darkmix.Tempo(120).SecondsPerBar(); math.Abs(got-2) > 1e-12 {
		t.Errorf("expected 2 s per bar at 120 bpm, got %v", got)
	}
}

func TestTempoValidate(t *testing.T) {
	for _, bpm := range []darkmix.Tempo{0, -10, 19.9, 400.1} {
		if err := bpm.Validate(); !errors.Is(err, darkmix.ErrInvalidTempo) {
			t.Errorf("tempo %v: expected ErrInvalidTempo, got %v", bpm, err)
		}
	}
	if err := darkmix.DefaultTempo.Validate(); err != nil {
		t.Errorf("default tempo invalid: %v", err)
	}
}

func TestStepPosWraps(t *testing.T) {
	pos := darkmix.StepPos{}
	for i := 0; i < 5*darkmix.PatternLength; i++ {
		if pos.Step != i%darkmix.PatternLength || pos.Bar != i/darkmix.PatternLength {
			t.Fatalf("after %d steps expected %d.%d, got %v", i, i/darkmix.PatternLength, i%darkmix.PatternLength, pos)
		}
		if pos.Steps() != i {
			t.Fatalf("Steps() = %d, expected %d", pos.Steps(), i)
		}
		pos = pos.Next()
	}
	if got := (darkmix.StepPos{Bar: 1, Step: 14}).Add(5); got != (darkmix.StepPos{Bar: 2, Step: 3}) {
		t.Errorf("Add(5) from 1.14 = %v", got)
	}
}

func TestAudioBufferFlat(t *testing.T) {
	buf := darkmix.AudioBuffer{{1, 2}, {3, 4}}
	flat := buf.Flat()
	if len(flat) != 4 || flat[0] != 1 || flat[3] != 4 {
		t.Fatalf("unexpected flat view %v", flat)
	}
	flat[1] = 5
	if buf[0][1] != 5 {
		t.Errorf("write through flat view not visible in buffer")
	}
	if darkmix.AudioBuffer(nil).Flat() != nil {
		t.Errorf("empty buffer should flatten to nil")
	}
}
