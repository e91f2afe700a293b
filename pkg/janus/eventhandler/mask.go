package eventhandler

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// Mask selects the event types delivered to a handler. The same bits appear
// as the "type" of each event.
type Mask uint32

const (
	Session   Mask = 1 << 0
	Handle    Mask = 1 << 1
	External  Mask = 1 << 2
	JSEP      Mask = 1 << 3
	WebRTC    Mask = 1 << 4
	Media     Mask = 1 << 5
	Plugin    Mask = 1 << 6
	Transport Mask = 1 << 7
	Core      Mask = 1 << 8

	None Mask = 0
	All  Mask = 0xffffffff
)

var maskNames = []struct {
	name string
	bit  Mask
}{
	{"sessions", Session},
	{"handles", Handle},
	{"externals", External},
	{"jsep", JSEP},
	{"webrtc", WebRTC},
	{"media", Media},
	{"plugins", Plugin},
	{"transports", Transport},
	{"core", Core},
}

// Has reports whether every bit of other is set in m.
func (m Mask) Has(other Mask) bool {
	return m&other == other
}

func (m Mask) String() string {
	switch m {
	case None:
		return "none"
	case All:
		return "all"
	}
	var names []string
	rest := m
	for _, n := range maskNames {
		if m&n.bit != 0 {
			names = append(names, n.name)
			rest &^= n.bit
		}
	}
	if rest != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(names, ",")
}

// ParseMask reads a comma separated list of event type names in the format of
// the gateway's event handler configuration, such as "sessions,handles,media".
// "all" and "none" are accepted on their own.
func ParseMask(s string) (Mask, error) {
	var m Mask
	for _, field := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(field))
		switch name {
		case "":
			continue
		case "all":
			m = All
			continue
		case "none":
			continue
		}
		bit, ok := maskByName(name)
		if !ok {
			return None, fmt.Errorf("unknown event type %q", name)
		}
		m |= bit
	}
	return m, nil
}

// ParseType reads a single event type, by name or by its numeric value.
func ParseType(s string) (Mask, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	m, ok := maskByName(s)
	if !ok {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return None, fmt.Errorf("unknown event type %q", s)
		}
		m = Mask(n)
	}
	if bits.OnesCount32(uint32(m)) != 1 {
		return None, fmt.Errorf("%q is not a single event type", s)
	}
	return m, nil
}

func maskByName(name string) (Mask, bool) {
	for _, n := range maskNames {
		// singular forms are accepted too
		if name == n.name || name+"s" == n.name {
			return n.bit, true
		}
	}
	return None, false
}
