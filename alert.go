package darkmix

import "fmt"

type (
	// Alert is a message from the engine to whoever drives it: degraded
	// playback, render failures or informational notices. Alerts with the
	// same Name replace each other.
	Alert struct {
		Name     string
		Priority AlertPriority
		Message  string
	}

	AlertPriority int
)

const (
	Info AlertPriority = iota
	Warning
	Error
)

// Alert names used by the engine.
const (
	AlertDegradedPlayback = "DegradedPlayback"
	AlertQueueFull        = "QueueFull"
	AlertRenderCrash      = "RenderCrash"
	AlertInvalidSample    = "InvalidSample"
	AlertLateEvent        = "LateEvent" // a voice started after its scheduled frame
)

func (p AlertPriority) String() string {
	switch p {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

func (a Alert) String() string {
	return fmt.Sprintf("%s [%s]: %s", a.Name, a.Priority, a.Message)
}
