package jansson

import (
	"encoding/json"
	"fmt"
)

// FromGo converts any value encoding/json can marshal.
func FromGo(x any) (*Value, error) {
	b, err := json.Marshal(x)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", x, err)
	}
	return LoadBytes(b, DecodeAny)
}

// Decode unmarshals v into out.
func (v *Value) Decode(out any) error {
	text, err := v.Dumps(Compact | EncodeAny)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("decode %s into %T: %w", v.Type(), out, err)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (v *Value) MarshalJSON() ([]byte, error) {
	text, err := v.Dumps(Compact | EncodeAny)
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}
