package eventhandler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/arqut/janus-plugin-go/pkg/jansson"
)

// Event is the envelope every gateway event shares. Body holds the
// type-specific "event" member.
type Event struct {
	Emitter   string          `json:"emitter,omitempty"`
	Type      Mask            `json:"type"`
	Subtype   int             `json:"subtype,omitempty"`
	Timestamp int64           `json:"timestamp"`
	SessionID uint64          `json:"session_id,omitempty"`
	HandleID  uint64          `json:"handle_id,omitempty"`
	OpaqueID  string          `json:"opaque_id,omitempty"`
	Body      json.RawMessage `json:"event,omitempty"`
}

// DecodeEvent reads the envelope of a gateway event.
func DecodeEvent(v *jansson.Value) (*Event, error) {
	if v.Type() != jansson.TypeObject {
		return nil, fmt.Errorf("event is a %s, not an object", v.Type())
	}
	ev := &Event{}
	if err := v.Decode(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Time converts the microsecond timestamp.
func (e *Event) Time() time.Time {
	return time.UnixMicro(e.Timestamp)
}

// TypeName returns the configuration name of the event type.
func (e *Event) TypeName() string {
	return e.Type.String()
}
