// Package plugin exposes a Go value as a Janus media plugin.
//
// A shared object built from a main package that calls Register in an init
// function exports create(), which hands the gateway a janus_plugin vtable
// whose entries dispatch to the registered Plugin. One plugin per shared object.
package plugin

/*
#cgo CFLAGS: -I${SRCDIR}/../include
#cgo pkg-config: glib-2.0 jansson
#include <stdlib.h>
#include "shim.h"
*/
import "C"

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/arqut/janus-plugin-go/pkg/jansson"
	"github.com/arqut/janus-plugin-go/pkg/janus"
	"github.com/arqut/janus-plugin-go/pkg/logger"
)

// Plugin receives the gateway's plugin callbacks. Values passed in are only
// valid for the duration of the call unless they are cloned.
type Plugin interface {
	Init(gw *Gateway, configPath string) error
	Destroy()
	CreateSession(s *Session) error
	HandleMessage(s *Session, transaction string, message, jsep *jansson.Value) *Result
	HandleAdminMessage(message *jansson.Value) *jansson.Value
	SetupMedia(s *Session)
	IncomingRTP(s *Session, packet *RTPPacket)
	IncomingRTCP(s *Session, packet *RTCPPacket)
	IncomingData(s *Session, packet *DataPacket)
	DataReady(s *Session)
	SlowLink(s *Session, uplink, video bool)
	HangupMedia(s *Session)
	DestroySession(s *Session) error
	QuerySession(s *Session) *jansson.Value
}

// Base implements every Plugin method as a no-op. Embed it and override
// what the plugin needs.
type Base struct{}

func (Base) Init(*Gateway, string) error { return nil }
func (Base) Destroy() {}
func (Base) CreateSession(*Session) error { return nil }
func (Base) HandleMessage(*Session, string, *jansson.Value, *jansson.Value) *Result {
	return Error("unsupported request")
}
func (Base) HandleAdminMessage(*jansson.Value) *jansson.Value { return nil }
func (Base) SetupMedia(*Session) {}
func (Base) IncomingRTP(*Session, *RTPPacket) {}
func (Base) IncomingRTCP(*Session, *RTCPPacket) {}
func (Base) IncomingData(*Session, *DataPacket) {}
func (Base) DataReady(*Session) {}
func (Base) SlowLink(*Session, bool, bool) {}
func (Base) HangupMedia(*Session) {}
func (Base) DestroySession(*Session) error { return nil }
func (Base) QuerySession(*Session) *jansson.Value { return nil }

// Metadata describes the plugin to the gateway.
type Metadata struct {
	Version       int
	VersionString string
	Description   string
	Name          string
	Author        string
	Package       string
}

type registration struct {
	plugin Plugin
	md     Metadata
	// version string, description, name, author, package; never freed
	strs [5]*C.char
	log  *logger.Logger
}

var current atomic.Pointer[registration]

// ErrNotRegistered is returned by gateway entry points when Register was never called.
var ErrNotRegistered = errors.New("no plugin registered")

// Register installs p as the plugin served by this shared object. A later
// call replaces the earlier registration.
func Register(p Plugin, md Metadata) {
	if p == nil {
		panic("plugin: Register with a nil plugin")
	}
	reg := &registration{plugin: p, md: md, log: janus.NewLogger("[" + md.Package + "]")}
	for i, s := range []string{md.VersionString, md.Description, md.Name, md.Author, md.Package} {
		reg.strs[i] = C.CString(s)
	}
	current.Store(reg)
}

// Registered returns the registered metadata.
func Registered() (Metadata, bool) {
	reg := current.Load()
	if reg == nil {
		return Metadata{}, false
	}
	return reg.md, true
}

// guard logs a panic raised by the plugin and runs onPanic so the callback
// can return its error value.
func (r *registration) guard(callback string, onPanic func()) {
	if v := recover(); v != nil {
		r.log.Err("panic in %s: %v", callback, v)
		if onPanic != nil {
			onPanic()
		}
	}
}

// ErrorCode extracts a gateway error code from err, or -1.
func ErrorCode(err error) int {
	var coded interface{ ErrorCode() int }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return -1
}

// ResultType tells the gateway how a message was handled.
type ResultType int

const (
	ResultError  ResultType = -1
	ResultOK     ResultType = 0
	ResultOKWait ResultType = 1
)

func (t ResultType) String() string {
	switch t {
	case ResultError:
		return "error"
	case ResultOK:
		return "ok"
	case ResultOKWait:
		return "ok_wait"
	}
	return fmt.Sprintf("ResultType(%d)", int(t))
}

// Result is the synchronous reply to a message.
type Result struct {
	Type    ResultType
	Text    string
	Content *jansson.Value
}

// OK replies synchronously with content. The result takes ownership of content.
func OK(content *jansson.Value) *Result {
	return &Result{Type: ResultOK, Content: content}
}

// OKWait acknowledges a message that will be answered later with PushEvent.
func OKWait(hint string) *Result {
	return &Result{Type: ResultOKWait, Text: hint}
}

// Error replies with an error text.
func Error(text string) *Result {
	return &Result{Type: ResultError, Text: text}
}

// native converts r with janus_plugin_result_new, which copies the text and
// keeps the content reference handed to it.
func (r *Result) native() *C.janus_plugin_result {
	var text *C.char
	if r.Text != "" {
		text = C.CString(r.Text)
		defer C.free(unsafe.Pointer(text))
	}
	var content *C.json_t
	if r.Content != nil {
		content = (*C.json_t)(r.Content.IntoRaw())
		r.Content.Release()
	}
	return C.janus_plugin_result_new(C.janus_plugin_result_type(r.Type), text, content)
}
