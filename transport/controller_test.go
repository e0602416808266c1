package transport_test

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"reflect"
	"sort"
	"testing"

	"github.com/firehorse/darkmix"
	"github.com/firehorse/darkmix/ambience"
	"github.com/firehorse/darkmix/engine"
	"github.com/firehorse/darkmix/pattern"
	"github.com/firehorse/darkmix/transport"
	"github.com/firehorse/darkmix/voice"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type trigger struct {
	ev darkmix.PatternEvent
	in *voice.Instance
}

func tone(n int, freq float64) darkmix.AudioBuffer {
	buf := make(darkmix.AudioBuffer, n)
	for i := range buf {
		v := float32(0.3 * math.Sin(2*math.Pi*freq*float64(i)/darkmix.DefaultSampleRate))
		buf[i] = [2]float32{v, v}
	}
	return buf
}

func testConfig() darkmix.Config {
	cfg := darkmix.DefaultConfig()
	cfg.Tempo = 120
	cfg.Intensity = 0.5
	cfg.Seed = 7
	return cfg
}

func newEngine(t *testing.T, cfg darkmix.Config) *engine.Engine {
	t.Helper()
	bed, _ := cfg.Track(darkmix.BedTrack)
	speech, _ := cfg.Track(darkmix.SpeechTrack)
	tracks := []ambience.Track{
		{Config: bed, Asset: &ambience.Asset{Name: bed.Name, Samples: tone(darkmix.DefaultSampleRate*2, 220)}},
		{Config: speech, Asset: &ambience.Asset{Name: speech.Name, Samples: tone(darkmix.DefaultSampleRate/2, 440)}},
	}
	e, err := engine.New(cfg, tracks, engine.WithLogger(quiet))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return e
}

func newController(t *testing.T, e *engine.Engine, cfg darkmix.Config, opts ...transport.Option) (*transport.Controller, *[]trigger) {
	t.Helper()
	var triggers []trigger
	opts = append([]transport.Option{
		transport.WithLogger(quiet),
		transport.WithTrigger(func(ev darkmix.PatternEvent, in *voice.Instance) {
			triggers = append(triggers, trigger{ev, in})
		}),
	}, opts...)
	c, err := transport.New(e, cfg, opts...)
	if err != nil {
		t.Fatalf("transport.New: %v", err)
	}
	return c, &triggers
}

// play renders seconds of audio the way the output device would, polling
// the controller between blocks.
func play(t *testing.T, e *engine.Engine, c *transport.Controller, seconds float64) {
	t.Helper()
	buf := make(darkmix.AudioBuffer, 1024)
	for n := int(seconds * darkmix.DefaultSampleRate); n > 0; n -= len(buf) {
		if _, err := e.Renderer.ReadAudio(buf); err != nil {
			t.Fatalf("ReadAudio: %v", err)
		}
		if err := c.Poll(); err != nil {
			t.Fatalf("Poll: %v", err)
		}
	}
}

func TestIntroBarAt120(t *testing.T) {
	cfg := testConfig()
	e := newEngine(t, cfg)
	c, triggers := newController(t, e, cfg)
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	play(t, e, c, 2.5)
	st := c.State()
	if st.Transport != transport.Running || st.Section != pattern.Intro {
		t.Fatalf("state after 16 steps: %+v", st)
	}
	if st.Pos.Steps() < darkmix.PatternLength {
		t.Fatalf("only reached %v", st.Pos)
	}
	first := math.Inf(1)
	for _, tr := range *triggers {
		first = math.Min(first, tr.in.Start)
	}
	barEnd := first + darkmix.Tempo(120).SecondsPerBar() - 1e-9
	var kicks []int
	for _, tr := range *triggers {
		if tr.ev.Voice == "kick" && tr.in.Start < barEnd {
			kicks = append(kicks, tr.ev.Step)
		}
	}
	sort.Ints(kicks)
	if !reflect.DeepEqual(kicks, []int{0, 4, 8, 12}) {
		t.Fatalf("kick steps in the first bar = %v, want [0 4 8 12]", kicks)
	}
	for _, tr := range *triggers {
		want := first + float64(tr.ev.Step)*darkmix.Tempo(120).SecondsPerStep()
		if tr.in.Start < barEnd && math.Abs(tr.in.Start-want) > 1e-9 {
			t.Fatalf("%v triggered at %v, want %v", tr.ev, tr.in.Start, want)
		}
	}
}

func TestStopMidBar(t *testing.T) {
	cfg := testConfig()
	e := newEngine(t, cfg)
	c, triggers := newController(t, e, cfg)
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	play(t, e, c, 3.3)
	stopAt, err := e.Graph.CurrentTime()
	if err != nil {
		t.Fatal(err)
	}
	c.Stop()
	if st := c.State(); st.Transport != transport.Stopping {
		t.Fatalf("transport after Stop = %v, want stopping", st.Transport)
	}
	n := len(*triggers)
	play(t, e, c, 6)
	if len(*triggers) != n {
		t.Fatalf("%d triggers after stop", len(*triggers)-n)
	}
	if st := c.State(); st.Transport != transport.Stopped {
		t.Fatalf("transport = %v, want stopped once voices decayed", st.Transport)
	}
	if e.Graph.Outstanding() != 0 || e.Graph.Playing() != 0 {
		t.Fatalf("graph still holds %d nodes", e.Graph.Outstanding())
	}
	stopFrame := e.Graph.FrameAt(stopAt)
	for _, tr := range *triggers {
		in := tr.in
		switch {
		case in.Start >= stopAt:
			if in.State() != voice.Cancelled {
				t.Fatalf("%v at %v (after stop %v) is %v, want cancelled", tr.ev, in.Start, stopAt, in.State())
			}
		default:
			if in.State() != voice.Finished {
				t.Fatalf("%v at %v is %v, want finished", tr.ev, in.Start, in.State())
			}
			if in.EndedAt() > e.Graph.FrameAt(in.End())+1 {
				t.Fatalf("%v rang until frame %d, past its end %v", tr.ev, in.EndedAt(), in.End())
			}
			// only a voice that started before the stop may have stolen it
			if in.EndedAt() < e.Graph.FrameAt(in.End())-1 {
				def, _ := e.Bank.Definition(in.Voice)
				if !def.Monophonic || in.EndedAt() > stopFrame+int64(def.StealFadeTime()*darkmix.DefaultSampleRate)+1 {
					t.Fatalf("%v was cut at frame %d before its end %v", tr.ev, in.EndedAt(), in.End())
				}
			}
		}
	}
}

func TestStartTwiceFails(t *testing.T) {
	cfg := testConfig()
	e := newEngine(t, cfg)
	c, _ := newController(t, e, cfg)
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(); !errors.Is(err, darkmix.ErrAlreadyRunning) {
		t.Fatalf("second Start = %v, want ErrAlreadyRunning", err)
	}
	play(t, e, c, 1)
	c.Stop()
	if err := c.Start(); err != nil {
		t.Fatalf("Start while stopping: %v", err)
	}
	st := c.State()
	if st.Transport != transport.Running || st.Session != 2 || st.Section != pattern.Intro {
		t.Fatalf("restart state %+v", st)
	}
}

func TestIntensityQueuedWhileStopped(t *testing.T) {
	cfg := testConfig()
	e := newEngine(t, cfg)
	c, _ := newController(t, e, cfg)
	c.SetIntensity(1.5)
	if st := c.State(); st.Intensity != 1 || st.Transport != transport.Stopped {
		t.Fatalf("state %+v, want intensity 1 while stopped", st)
	}
	c.SetIntensity(-2)
	if got := c.State().Intensity; got != 0 {
		t.Fatalf("intensity %v, want 0", got)
	}
	c.SetIntensity(0.8)
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	if got := c.State().Intensity; got != 0.8 {
		t.Fatalf("intensity after start %v, want 0.8", got)
	}
}

func TestSeedIsReproducible(t *testing.T) {
	run := func() []darkmix.PatternEvent {
		cfg := testConfig()
		e := newEngine(t, cfg)
		c, triggers := newController(t, e, cfg)
		if err := c.Start(); err != nil {
			t.Fatal(err)
		}
		play(t, e, c, 4)
		var evs []darkmix.PatternEvent
		for _, tr := range *triggers {
			evs = append(evs, tr.ev)
		}
		return evs
	}
	a, b := run(), run()
	if len(a) == 0 || !reflect.DeepEqual(a, b) {
		t.Fatalf("same seed gave different sessions (%d and %d events)", len(a), len(b))
	}

	cfg := testConfig()
	cfg.Seed = 0
	e := newEngine(t, cfg)
	c, _ := newController(t, e, cfg)
	c.Start()
	if c.State().Seed == 0 {
		t.Error("seed 0 should pick a random session seed")
	}
}

func TestSectionRequestAndAutomation(t *testing.T) {
	cfg := testConfig()
	e := newEngine(t, cfg)
	c, _ := newController(t, e, cfg)
	if err := c.RequestSection(pattern.Drop); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	if got := c.State().Section; got != pattern.Intro {
		t.Fatalf("section at start %v, want intro", got)
	}
	if err := c.RequestSection(pattern.Break); err != nil {
		t.Fatal(err)
	}
	play(t, e, c, 2.5)
	if got := c.State().Section; got != pattern.Break {
		t.Fatalf("section after the bar %v, want break", got)
	}
	filter, err := e.Chain.Stage(e.Chain.Index(darkmix.StageFilter))
	if err != nil {
		t.Fatal(err)
	}
	if got := filter.Parameters["cutoff"]; got != 2500 {
		t.Errorf("break cutoff target %v, want 2500", got)
	}
	reverb, _ := e.Chain.Stage(e.Chain.Index(darkmix.StageReverb))
	if got := reverb.Parameters["mix"]; got <= 0.18 {
		t.Errorf("break reverb mix %v, want above the configured 0.18", got)
	}
	if err := c.RequestSection(pattern.Build); err != nil {
		t.Fatal(err)
	}
	play(t, e, c, 2.1)
	filter, _ = e.Chain.Stage(e.Chain.Index(darkmix.StageFilter))
	if got := c.State().Section; got != pattern.Build || filter.Parameters["cutoff"] != 18000 {
		t.Errorf("build: section %v cutoff target %v", got, filter.Parameters["cutoff"])
	}
}

func TestMasterVolumeAndTempo(t *testing.T) {
	cfg := testConfig()
	e := newEngine(t, cfg)
	c, _ := newController(t, e, cfg)
	c.SetMasterVolume(1.7)
	if got := c.State().MasterGain; got != 1 {
		t.Fatalf("master gain %v, want 1", got)
	}
	if err := c.SetTempo(140); err != nil {
		t.Fatal(err)
	}
	if got := c.State().Tempo; got != 140 {
		t.Fatalf("tempo %v, want 140", got)
	}
	if err := c.SetTempo(1000); !errors.Is(err, darkmix.ErrInvalidTempo) {
		t.Fatalf("SetTempo(1000) = %v", err)
	}
}

func TestAlertsAreDrained(t *testing.T) {
	cfg := testConfig()
	e := newEngine(t, cfg)
	var got []darkmix.Alert
	c, _ := newController(t, e, cfg, transport.WithAlertHandler(func(a darkmix.Alert) { got = append(got, a) }))
	e.Broker.Alert(darkmix.DegradedPlaybackWarning("test"))
	if err := c.Poll(); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != darkmix.AlertDegradedPlayback {
		t.Fatalf("alerts %v", got)
	}
}

func TestClockUnavailable(t *testing.T) {
	cfg := testConfig()
	e := newEngine(t, cfg)
	c, _ := newController(t, e, cfg)
	e.Close()
	if err := c.Start(); !darkmix.IsInitializationError(err) {
		t.Fatalf("Start without clock = %v, want initialization error", err)
	}
	if st := c.State(); st.Transport != transport.Stopped {
		t.Fatalf("transport %v after failed start", st.Transport)
	}
	if _, err := transport.New(e, cfg); !darkmix.IsInitializationError(err) {
		t.Fatalf("New without clock = %v, want initialization error", err)
	}
}

func TestRulesMustMatchPatch(t *testing.T) {
	cfg := testConfig()
	e := newEngine(t, cfg)
	_, err := transport.New(e, cfg, transport.WithRules(pattern.Rule{Voice: "cowbell"}))
	if !darkmix.IsInitializationError(err) || !errors.Is(err, darkmix.ErrUnknownVoice) {
		t.Fatalf("New with unknown rule voice = %v", err)
	}
}

func TestSectionsFollowBarsAfterStall(t *testing.T) {
	cfg := testConfig()
	e := newEngine(t, cfg)
	var alerts []darkmix.Alert
	c, _ := newController(t, e, cfg,
		transport.WithSections(pattern.NewSectionsWithLengths([pattern.NumSections]int{2, 2, 2, 2})),
		transport.WithAlertHandler(func(a darkmix.Alert) { alerts = append(alerts, a) }))
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	play(t, e, c, 0.5)
	buf := make(darkmix.AudioBuffer, 1024)
	for n := 8 * darkmix.DefaultSampleRate; n > 0; n -= len(buf) {
		e.Renderer.ReadAudio(buf)
	}
	if err := c.Poll(); err != nil {
		t.Fatal(err)
	}
	st := c.State()
	if st.Pos.Bar != 4 {
		t.Fatalf("resumed at %v, want bar 4", st.Pos)
	}
	if st.Section != pattern.Drop || st.SectionBar != 0 {
		t.Errorf("after the stall: section %v bar %d, want drop bar 0", st.Section, st.SectionBar)
	}
	if err := c.Poll(); err != nil {
		t.Fatal(err)
	}
	degraded := false
	for _, a := range alerts {
		degraded = degraded || a.Name == darkmix.AlertDegradedPlayback
	}
	if !degraded {
		t.Errorf("stall not reported, alerts: %v", alerts)
	}
	play(t, e, c, 2)
	if st := c.State(); st.Section != pattern.Drop || st.SectionBar != 1 {
		t.Errorf("one bar later: section %v bar %d, want drop bar 1", st.Section, st.SectionBar)
	}
}

func TestClockFailureCancelsPending(t *testing.T) {
	cfg := testConfig()
	e := newEngine(t, cfg)
	c, triggers := newController(t, e, cfg)
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	play(t, e, c, 1)
	failAt, err := e.Graph.CurrentTime()
	if err != nil {
		t.Fatal(err)
	}
	e.Close()
	if err := c.Poll(); !errors.Is(err, darkmix.ErrClockUnavailable) {
		t.Fatalf("Poll after the clock closed = %v", err)
	}
	if st := c.State(); st.Transport == transport.Running {
		t.Fatalf("still running after the clock failed")
	}
	play(t, e, c, 3)
	pending := 0
	for _, tr := range *triggers {
		if tr.in.Start >= failAt {
			pending++
			if tr.in.State() != voice.Cancelled {
				t.Errorf("%v at %.3f queued before the failure played: %v", tr.ev, tr.in.Start, tr.in.State())
			}
		}
	}
	if pending == 0 {
		t.Errorf("nothing was queued in the lookahead window")
	}
	if n := e.Ambience.Active(); n != 0 {
		t.Errorf("%d ambience players still running after the clock failed", n)
	}
	if e.Graph.Outstanding() == 0 && c.State().Transport != transport.Stopped {
		t.Errorf("transport %v with nothing left to render", c.State().Transport)
	}
}
