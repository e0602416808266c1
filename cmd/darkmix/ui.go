package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/firehorse/darkmix"
	"github.com/firehorse/darkmix/mixbus"
	"github.com/firehorse/darkmix/pattern"
	"github.com/firehorse/darkmix/transport"
	"github.com/gdamore/tcell/v2"
)

const (
	intensityStep = 0.05
	volumeStep    = 0.05
	tempoStep     = 1
	meterWidth    = 40
	statusTimeout = 3 * time.Second
	redrawRate    = 50 * time.Millisecond
)

var (
	labelStyle   = tcell.StyleDefault.Foreground(tcell.ColorGray)
	valueStyle   = tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true)
	meterStyle   = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	clipStyle    = tcell.StyleDefault.Foreground(tcell.ColorRed)
	statusStyle  = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	sectionStyle = tcell.StyleDefault.Foreground(tcell.ColorPurple).Bold(true)
)

// ui is the terminal front panel: it maps keys to transport controls and
// draws the engine state and the output meter.
type ui struct {
	screen      tcell.Screen
	controller  *transport.Controller
	bus         *mixbus.Bus
	midiPort    string
	status      string
	statusUntil time.Time
}

func newUI(c *transport.Controller, bus *mixbus.Bus, midiPort string) (*ui, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("could not create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("could not initialize screen: %w", err)
	}
	screen.SetStyle(tcell.StyleDefault)
	screen.Clear()
	return &ui{screen: screen, controller: c, bus: bus, midiPort: midiPort}, nil
}

// run handles input and redraws until the user quits or done is closed.
func (u *ui) run(done <-chan struct{}) {
	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := u.screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()
	ticker := time.NewTicker(redrawRate)
	defer ticker.Stop()
	u.draw()
	for {
		select {
		case <-done:
			return
		case ev := <-events:
			if !u.handleEvent(ev) {
				return
			}
			u.draw()
		case <-ticker.C:
			u.draw()
		}
	}
}

func (u *ui) close() {
	u.screen.Fini()
}

// handleEvent applies one terminal event. It returns false to quit.
func (u *ui) handleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		u.screen.Sync()
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return false
		case tcell.KeyUp:
			u.controller.SetIntensity(u.controller.State().Intensity + intensityStep)
		case tcell.KeyDown:
			u.controller.SetIntensity(u.controller.State().Intensity - intensityStep)
		case tcell.KeyRune:
			return u.handleRune(ev.Rune())
		}
	}
	return true
}

func (u *ui) handleRune(r rune) bool {
	st := u.controller.State()
	switch r {
	case 'q':
		return false
	case ' ':
		if st.Transport == transport.Running {
			u.controller.Stop()
			return true
		}
		if err := u.controller.Start(); err != nil {
			u.setStatus("start failed: %v", err)
		}
	case '+', '=':
		u.controller.SetMasterVolume(st.MasterGain + volumeStep)
	case '-':
		u.controller.SetMasterVolume(st.MasterGain - volumeStep)
	case '[', ']':
		t := st.Tempo - tempoStep
		if r == ']' {
			t = st.Tempo + tempoStep
		}
		if err := u.controller.SetTempo(t); err != nil {
			u.setStatus("%v", err)
		}
	case '1', '2', '3', '4':
		s := pattern.Section(r - '1')
		if st.Transport != transport.Running {
			u.setStatus("start the transport before requesting %s", s)
			return true
		}
		if err := u.controller.RequestSection(s); err != nil {
			u.setStatus("%v", err)
		} else {
			u.setStatus("%s from the next bar", s)
		}
	}
	return true
}

func (u *ui) setStatus(format string, args ...any) {
	u.status = fmt.Sprintf(format, args...)
	u.statusUntil = time.Now().Add(statusTimeout)
}

func (u *ui) draw() {
	st := u.controller.State()
	lv := u.bus.Levels()
	u.screen.Clear()
	y := 0
	u.print(0, y, valueStyle, "darkmix")
	y += 2
	y = u.field(y, "transport", st.Transport.String())
	y = u.field(y, "tempo", fmt.Sprintf("%.0f bpm", float64(st.Tempo)))
	y = u.field(y, "intensity", fmt.Sprintf("%3.0f%%", st.Intensity*100))
	y = u.field(y, "volume", fmt.Sprintf("%3.0f%%", st.MasterGain*100))
	y = u.field(y, "seed", fmt.Sprintf("%d", st.Seed))
	y = u.field(y, "position", st.Pos.String())
	u.print(0, y, labelStyle, "section")
	u.print(12, y, sectionStyle, fmt.Sprintf("%s  bar %d", st.Section, st.SectionBar+1))
	y++
	y = u.field(y, "triggers", fmt.Sprintf("%d", st.Triggers))
	if u.midiPort != "" {
		y = u.field(y, "midi", u.midiPort)
	}
	y++
	y = u.meter(y, "peak", lv.Peak)
	y = u.meter(y, "average", lv.Average)
	y = u.field(y, "limiter", fmt.Sprintf("%5.1f dB", lv.Reduction))
	y++
	u.print(0, y, labelStyle, "space start/stop  up/down intensity  +/- volume  [/] tempo")
	y++
	u.print(0, y, labelStyle, "1 intro  2 build  3 drop  4 break  q quit")
	y += 2
	if u.status != "" && time.Now().Before(u.statusUntil) {
		u.print(0, y, statusStyle, u.status)
	}
	u.screen.Show()
}

func (u *ui) field(y int, label, value string) int {
	u.print(0, y, labelStyle, label)
	u.print(12, y, valueStyle, value)
	return y + 1
}

// meter draws a bar for a level in dB between -60 and 0.
func (u *ui) meter(y int, label string, db float32) int {
	u.print(0, y, labelStyle, label)
	n := int(darkmix.Clamp(float64(db+60)/60, 0, 1) * meterWidth)
	style := meterStyle
	if db > -1 {
		style = clipStyle
	}
	u.print(12, y, style, strings.Repeat("█", n))
	u.print(12+meterWidth+1, y, valueStyle, fmt.Sprintf("%5.1f dB", db))
	return y + 1
}

func (u *ui) print(x, y int, style tcell.Style, s string) {
	for _, r := range s {
		u.screen.SetContent(x, y, r, nil, style)
		x++
	}
}
