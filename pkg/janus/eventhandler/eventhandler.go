// Package eventhandler exposes a Go value as a Janus event handler.
//
// The gateway calls IncomingEvent on its own threads for every event matching
// the handler's mask, so handlers queue work instead of blocking.
package eventhandler

/*
#cgo CFLAGS: -I${SRCDIR}/../include
#cgo pkg-config: glib-2.0 jansson
#include "shim.h"
*/
import "C"

import (
	"errors"
	"sync/atomic"

	"github.com/arqut/janus-plugin-go/pkg/jansson"
	"github.com/arqut/janus-plugin-go/pkg/janus"
	"github.com/arqut/janus-plugin-go/pkg/logger"
)

// Handler receives the gateway's event handler callbacks.
type Handler interface {
	Init(configPath string) error
	Destroy()
	// IncomingEvent is handed a borrowed event; clone it to keep it.
	IncomingEvent(event *jansson.Value)
	// HandleRequest answers an Admin API request. The reply is handed to the gateway.
	HandleRequest(request *jansson.Value) *jansson.Value
}

// Base implements Handler with no-ops.
type Base struct{}

func (Base) Init(string) error { return nil }
func (Base) Destroy() {}
func (Base) IncomingEvent(*jansson.Value) {}
func (Base) HandleRequest(*jansson.Value) *jansson.Value { return nil }

// Metadata describes the handler to the gateway.
type Metadata struct {
	Version       int
	VersionString string
	Description   string
	Name          string
	Author        string
	Package       string
}

type registration struct {
	handler Handler
	md      Metadata
	strs    [5]*C.char
	log     *logger.Logger
}

var (
	current atomic.Pointer[registration]
	mask    atomic.Uint32
)

// ErrNotRegistered is reported when the gateway calls in before Register.
var ErrNotRegistered = errors.New("no event handler registered")

// Register installs h and the initial mask of event types it subscribes to.
func Register(h Handler, md Metadata, events Mask) {
	if h == nil {
		panic("eventhandler: Register with a nil handler")
	}
	reg := &registration{handler: h, md: md, log: janus.NewLogger("[" + md.Package + "]")}
	for i, s := range []string{md.VersionString, md.Description, md.Name, md.Author, md.Package} {
		reg.strs[i] = C.CString(s)
	}
	current.Store(reg)
	SetMask(events)
}

// SetMask changes the event types the gateway delivers.
func SetMask(events Mask) {
	mask.Store(uint32(events))
	C.go_eh_set_mask(C.gsize(events))
}

// CurrentMask returns the mask last set.
func CurrentMask() Mask {
	return Mask(mask.Load())
}

func (r *registration) guard(callback string, onPanic func()) {
	if v := recover(); v != nil {
		r.log.Err("panic in %s: %v", callback, v)
		if onPanic != nil {
			onPanic()
		}
	}
}
