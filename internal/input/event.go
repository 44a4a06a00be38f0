// Package input decodes remote-input events that viewers send over their
// control channel.
package input

import (
	"encoding/json"
	"log/slog"

	"github.com/pkg/errors"

	"screencast/internal/logging"
)

// Kind identifies an input gesture.
type Kind string

const (
	KindTap   Kind = "tap"
	KindSwipe Kind = "swipe"
	KindKey   Kind = "key"
	KindText  Kind = "text"
)

// Event is one gesture. Coordinates are normalized to [0,1] of the streamed
// picture so they survive any scaling on the viewer side.
type Event struct {
	Type Kind    `json:"type"`
	X    float64 `json:"x,omitempty"`
	Y    float64 `json:"y,omitempty"`
	// X2/Y2 end a swipe that starts at X/Y.
	X2         float64 `json:"x2,omitempty"`
	Y2         float64 `json:"y2,omitempty"`
	DurationMs int     `json:"duration,omitempty"`
	Key        string  `json:"key,omitempty"`
	Text       string  `json:"text,omitempty"`
}

var ErrInvalidEvent = errors.New("invalid input event")

// Decode parses and validates a control message.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, errors.Wrap(ErrInvalidEvent, err.Error())
	}
	return ev, ev.Validate()
}

// Validate checks the fields required by the event kind.
func (e Event) Validate() error {
	switch e.Type {
	case KindTap:
		if !inUnit(e.X) || !inUnit(e.Y) {
			return errors.Wrapf(ErrInvalidEvent, "tap at (%g,%g) outside the picture", e.X, e.Y)
		}
	case KindSwipe:
		if !inUnit(e.X) || !inUnit(e.Y) || !inUnit(e.X2) || !inUnit(e.Y2) {
			return errors.Wrap(ErrInvalidEvent, "swipe outside the picture")
		}
		if e.DurationMs < 0 {
			return errors.Wrapf(ErrInvalidEvent, "negative swipe duration %d", e.DurationMs)
		}
	case KindKey:
		if e.Key == "" {
			return errors.Wrap(ErrInvalidEvent, "key event without key")
		}
	case KindText:
		if e.Text == "" {
			return errors.Wrap(ErrInvalidEvent, "empty text event")
		}
	default:
		return errors.Wrapf(ErrInvalidEvent, "unknown type %q", e.Type)
	}
	return nil
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }

// Handler acts on decoded events.
type Handler interface {
	HandleInput(viewerID string, ev Event) error
}

// LogHandler records events without injecting them anywhere.
type LogHandler struct {
	Logger *slog.Logger
}

func (h LogHandler) HandleInput(viewerID string, ev Event) error {
	if h.Logger != nil {
		h.Logger.Info("remote input", "viewer", viewerID, "type", string(ev.Type), "x", ev.X, "y", ev.Y)
	}
	return nil
}

// Dispatcher turns raw control messages into handler calls. Its Dispatch
// method fits stream.Options.OnMessage.
type Dispatcher struct {
	handler Handler
	log     *slog.Logger
}

func NewDispatcher(h Handler, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dispatcher{handler: h, log: logger}
}

// Dispatch decodes data and hands it to the handler. Bad messages are logged
// and dropped.
func (d *Dispatcher) Dispatch(viewerID string, data []byte) {
	ev, err := Decode(data)
	if err != nil {
		d.log.Warn("input rejected", "viewer", viewerID, "size", len(data), "err", err)
		return
	}
	if err := d.handler.HandleInput(viewerID, ev); err != nil {
		d.log.Warn("input handler", "viewer", viewerID, "type", string(ev.Type), "err", err)
	}
}
