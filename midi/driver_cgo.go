//go:build cgo

package midi

import (
	"errors"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// Input is an open MIDI input port feeding a Surface.
type Input struct {
	driver *rtmididrv.Driver
	in     drivers.In
	stop   func()
}

// Ports lists the names of the MIDI input ports.
func Ports() ([]string, error) {
	d, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("opening MIDI driver failed: %w", err)
	}
	defer d.Close()
	ins, err := d.Ins()
	if err != nil {
		return nil, fmt.Errorf("listing MIDI inputs failed: %w", err)
	}
	ret := make([]string, len(ins))
	for i, in := range ins {
		ret[i] = in.String()
	}
	return ret, nil
}

// OpenInput opens the first input port whose name starts with prefix (any
// port if prefix is empty) and sends its messages to s.
func OpenInput(prefix string, s *Surface) (*Input, error) {
	d, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("opening MIDI driver failed: %w", err)
	}
	ins, err := d.Ins()
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("listing MIDI inputs failed: %w", err)
	}
	for _, in := range ins {
		if !strings.HasPrefix(in.String(), prefix) {
			continue
		}
		if err := in.Open(); err != nil {
			d.Close()
			return nil, fmt.Errorf("opening MIDI input %s failed: %w", in, err)
		}
		stop, err := midi.ListenTo(in, s.HandleMessage)
		if err != nil {
			in.Close()
			d.Close()
			return nil, fmt.Errorf("listening to MIDI input %s failed: %w", in, err)
		}
		s.logger.Info("midi input open", "port", in.String())
		return &Input{driver: d, in: in, stop: stop}, nil
	}
	d.Close()
	return nil, fmt.Errorf("no MIDI input starting with %q: %w", prefix, ErrNoInput)
}

func (i *Input) String() string {
	return i.in.String()
}

func (i *Input) Close() error {
	i.stop()
	return errors.Join(i.in.Close(), i.driver.Close())
}
