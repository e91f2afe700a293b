// Package janus binds the parts of the Janus gateway core shared by plugins
// and event handlers: the log sink, the API error table and refcount tracing.
//
// Builds leave every gateway symbol undefined, to be resolved when the gateway
// loads the shared object. The janus_testgateway build tag links a small
// in-process gateway instead, so the bindings can be tested:
//
//	go test -tags janus_testgateway ./...
package janus

/*
#cgo CFLAGS: -I${SRCDIR}/include
#cgo pkg-config: glib-2.0 jansson
#include <stdlib.h>
#include "janus_abi.h"

static void go_janus_log(const char *line) { janus_vprintf("%s", line); }
static int go_janus_log_level(void) { return janus_log_level; }
static int go_janus_log_timestamps(void) { return janus_log_timestamps; }
static int go_janus_log_colors(void) { return janus_log_colors; }
static int go_refcount_debug(void) { return refcount_debug; }
*/
import "C"

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/arqut/janus-plugin-go/pkg/logger"
	"github.com/arqut/janus-plugin-go/pkg/refcount"
)

const (
	// PluginAPIVersion is the plugin API the vtable layout matches.
	PluginAPIVersion = C.JANUS_PLUGIN_API_VERSION
	// EventHandlerAPIVersion is the event handler API the vtable layout matches.
	EventHandlerAPIVersion = C.JANUS_EVENTHANDLER_API_VERSION
)

// Gateway API error codes.
const (
	ErrorUnauthorized         = 403
	ErrorUnauthorizedPlugin   = 405
	ErrorUnknown              = 490
	ErrorTransportSpecific    = 450
	ErrorMissingRequest       = 452
	ErrorUnknownRequest       = 453
	ErrorInvalidJSON          = 454
	ErrorInvalidJSONObject    = 455
	ErrorMissingMandatory     = 456
	ErrorInvalidRequestPath   = 457
	ErrorSessionNotFound      = 458
	ErrorHandleNotFound       = 459
	ErrorPluginNotFound       = 460
	ErrorPluginAttach         = 461
	ErrorPluginMessage        = 462
	ErrorPluginDetach         = 463
	ErrorJSEPUnknownType      = 464
	ErrorJSEPInvalidSDP       = 465
	ErrorTrickleInvalidStream = 466
	ErrorInvalidElementType   = 467
	ErrorSessionConflict      = 468
	ErrorUnexpectedAnswer     = 469
	ErrorTokenNotFound        = 470
	ErrorWebRTCState          = 471
	ErrorNotAcceptingSessions = 472
)

// APIError is a non-zero result code reported by the gateway.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (code: %d)", e.Message, e.Code)
}

// ErrorCode returns the gateway code.
func (e *APIError) ErrorCode() int {
	return e.Code
}

// Is matches any *APIError with the same code.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

// Result converts a gateway result code. Zero is success.
func Result(code int) error {
	if code == 0 {
		return nil
	}
	return &APIError{Code: code, Message: C.GoString(C.janus_get_api_error(C.int(code)))}
}

// Sink writes text to the gateway log. janus_vprintf is variadic, so every
// line goes through a fixed "%s" format.
type Sink struct{}

func (Sink) Write(p []byte) (int, error) {
	cs := C.CString(string(p))
	defer C.free(unsafe.Pointer(cs))
	C.go_janus_log(cs)
	return len(p), nil
}

// LogLevel returns the gateway's current log level.
func LogLevel() logger.Level {
	return logger.Level(C.go_janus_log_level())
}

// LogParams returns the gateway's current formatting settings.
func LogParams() logger.Params {
	return logger.Params{
		Timestamps: C.go_janus_log_timestamps() == 1,
		Colors:     C.go_janus_log_colors() == 1,
		Clock:      time.Now,
	}
}

// NewLogger returns a logger that follows the gateway's level and formatting.
func NewLogger(prefix string) *logger.Logger {
	return logger.NewDynamic(Sink{}, prefix, LogLevel, LogParams)
}

// Log writes one line at level if the gateway's level allows it.
func Log(level logger.Level, format string, v ...any) {
	if level > LogLevel() {
		return
	}
	_, _ = Sink{}.Write([]byte(logger.Format(level, fmt.Sprintf(format, v...), LogParams())))
}

// TraceRefcounts routes native count changes to the gateway log.
func TraceRefcounts(enabled bool) {
	if !enabled {
		refcount.SetTrace(nil)
		return
	}
	refcount.SetTrace(func(line string) {
		_, _ = Sink{}.Write([]byte(line))
	})
}

func init() {
	if C.go_refcount_debug() == 1 {
		TraceRefcounts(true)
	}
}
