//go:build !cgo

package midi

import "fmt"

// Input is an open MIDI input port. Without cgo there is no MIDI driver.
type Input struct{}

func Ports() ([]string, error) {
	return nil, nil
}

func OpenInput(prefix string, s *Surface) (*Input, error) {
	return nil, fmt.Errorf("built without cgo: %w", ErrNoInput)
}

func (i *Input) String() string { return "" }

func (i *Input) Close() error { return nil }
