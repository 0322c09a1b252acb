package viewport

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/zonemap/internal/projection"
)

// ErrUnknownEvent is returned by Handle for an unrecognised event type.
var ErrUnknownEvent = eris.New("viewport: unknown event")

// EventType names an input event.
type EventType string

// Input event types, in surface-local pixel coordinates.
const (
	EventPointerDown  EventType = "pointerdown"
	EventPointerMove  EventType = "pointermove"
	EventPointerUp    EventType = "pointerup"
	EventPointerLeave EventType = "pointerleave"
	EventWheel        EventType = "wheel"
	EventResize       EventType = "resize"
	EventYear         EventType = "year"
)

// Event is a single input event. Only the fields relevant to Type are read.
type Event struct {
	Type   EventType `json:"type"`
	X      float64   `json:"x,omitempty"`
	Y      float64   `json:"y,omitempty"`
	DeltaY float64   `json:"delta_y,omitempty"`
	Width  float64   `json:"width,omitempty"`
	Height float64   `json:"height,omitempty"`
	Year   int       `json:"year,omitempty"`
}

// Handle dispatches an event to the matching operation.
func (v *Viewport) Handle(e Event) error {
	switch e.Type {
	case EventPointerDown:
		return v.PointerDown(e.X, e.Y)
	case EventPointerMove:
		return v.PointerMove(e.X, e.Y)
	case EventPointerUp:
		v.PointerUp()
	case EventPointerLeave:
		v.PointerLeave()
	case EventWheel:
		return v.Wheel(e.DeltaY)
	case EventResize:
		return v.Resize(projection.Size{Width: e.Width, Height: e.Height})
	case EventYear:
		return v.SetYear(e.Year)
	default:
		return eris.Wrapf(ErrUnknownEvent, "%q", e.Type)
	}
	return nil
}
