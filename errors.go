package darkmix

import (
	"errors"
	"fmt"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

var (
	ErrClockUnavailable  = errors.New("audio clock unavailable")
	ErrDeviceUnavailable = errors.New("audio output device unavailable")
	ErrAssetDecode       = errors.New("audio asset decode failed")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrAlreadyRunning    = errors.New("scheduler already running")

	ErrUnknownVoice     = errors.New("unknown voice")
	ErrStageIndex       = errors.New("effect stage index out of range")
	ErrUnknownParameter = errors.New("unknown effect parameter")
	ErrUnknownTrack     = errors.New("unknown ambience track")
)

// KindInitialization tags errors that keep the engine from starting: no
// output device, no clock, undecodable assets or a broken configuration.
const KindInitialization ftag.Kind = "INITIALIZATION"

// InitializationError wraps err as fatal for engine start-up. msg is the
// internal context; users see a generic description (fmsg.GetIssue).
func InitializationError(err error, msg string) error {
	return fault.Wrap(err,
		fmsg.WithDesc(msg, "The audio engine could not be started."),
		ftag.With(KindInitialization))
}

// NotFoundError reports a reference to a voice, stage parameter or track that
// does not exist. It is a caller defect; in darkmixdebug builds it panics.
func NotFoundError(err error, format string, args ...any) error {
	return failLoudly(fault.Wrap(err, fmsg.With(fmt.Sprintf(format, args...)), ftag.With(ftag.NotFound)))
}

// ProgrammingError reports an invalid argument such as a stage index out of
// range. In darkmixdebug builds it panics.
func ProgrammingError(err error, format string, args ...any) error {
	return failLoudly(fault.Wrap(err, fmsg.With(fmt.Sprintf(format, args...)), ftag.With(ftag.InvalidArgument)))
}

func IsInitializationError(err error) bool {
	return err != nil && ftag.Get(err) == KindInitialization
}

func IsProgrammingError(err error) bool {
	if err == nil {
		return false
	}
	k := ftag.Get(err)
	return k == ftag.NotFound || k == ftag.InvalidArgument
}

// DegradedPlaybackWarning builds the alert sent when the engine had to skip
// or delay audio to recover from a stall.
func DegradedPlaybackWarning(format string, args ...any) Alert {
	return Alert{Name: AlertDegradedPlayback, Priority: Warning, Message: fmt.Sprintf(format, args...)}
}

func failLoudly(err error) error {
	if panicOnProgrammingError {
		panic(err)
	}
	return err
}
