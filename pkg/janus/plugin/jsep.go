package plugin

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/arqut/janus-plugin-go/pkg/jansson"
	"github.com/arqut/janus-plugin-go/pkg/janus"
)

var (
	// ErrJSEPType is returned for a JSEP whose type is missing or unknown.
	ErrJSEPType = &janus.APIError{Code: janus.ErrorJSEPUnknownType, Message: "Unsupported JSEP type"}
	// ErrJSEPSDP is returned for a JSEP without an SDP.
	ErrJSEPSDP = &janus.APIError{Code: janus.ErrorJSEPInvalidSDP, Message: "Invalid SDP"}
	// ErrNoJSEP is returned when a message carries no JSEP at all.
	ErrNoJSEP = errors.New("message has no jsep")
)

// ParseJSEP reads the type and SDP of a JSEP object.
func ParseJSEP(v *jansson.Value) (*webrtc.SessionDescription, error) {
	if v == nil {
		return nil, ErrNoJSEP
	}
	typ, err := stringMember(v, "type")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJSEPType, err)
	}
	sdpType := webrtc.NewSDPType(typ)
	if sdpType == webrtc.SDPTypeUnknown {
		return nil, fmt.Errorf("%w: %q", ErrJSEPType, typ)
	}
	sdp, err := stringMember(v, "sdp")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJSEPSDP, err)
	}
	return &webrtc.SessionDescription{Type: sdpType, SDP: sdp}, nil
}

// JSEP builds the {"type", "sdp"} object sent with PushEvent.
func JSEP(desc webrtc.SessionDescription) (*jansson.Value, error) {
	if desc.Type == webrtc.SDPTypeUnknown {
		return nil, ErrJSEPType
	}
	return jansson.NewBuilder().
		Str("type", desc.Type.String()).
		Str("sdp", desc.SDP).
		Build()
}

func stringMember(v *jansson.Value, key string) (string, error) {
	m, ok := v.Get(key)
	if !ok {
		return "", fmt.Errorf("missing %q", key)
	}
	defer m.Release()
	s, ok := m.StringValue()
	if !ok {
		return "", fmt.Errorf("%q is a %s, not a string", key, m.Type())
	}
	return s, nil
}
