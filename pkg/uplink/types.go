package uplink

import (
	"context"
	"encoding/json"
)

// Message is one frame exchanged with the collector
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Hello is the first frame sent on every connection
type Hello struct {
	Instance string   `json:"instance"`
	Hosts    []string `json:"hosts,omitempty"`
	OS       string   `json:"os"`
	Version  string   `json:"version,omitempty"`
}

// MessageHandler handles a frame received from the collector
type MessageHandler func(ctx context.Context, msg *Message) error

// OnConnectHandler is called after every successful connection
type OnConnectHandler func(ctx context.Context) error

// Message types
const (
	TypeHello = "hello"
	TypeEvent = "event"
	TypeMask  = "mask"
)
