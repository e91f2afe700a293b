//go:build janus_testgateway

package eventhandler

/*
#include <stdlib.h>
#include "stub.h"
*/
import "C"

import (
	"unsafe"

	"github.com/arqut/janus-plugin-go/pkg/jansson"
)

// Harness drives the registered handler through its C vtable the way the
// gateway does.
type Harness struct{}

// Init calls init.
func (Harness) Init(configPath string) int {
	cp := C.CString(configPath)
	defer C.free(unsafe.Pointer(cp))
	return int(C.go_stub_call_init(cp))
}

// Destroy calls destroy.
func (Harness) Destroy() {
	C.go_stub_call_destroy()
}

// Describe reads the capability getters and the events mask.
func (Harness) Describe() (api int, md Metadata, events Mask) {
	md.Version = int(C.go_stub_call_version())
	strs := make([]string, 5)
	for i := range strs {
		if p := C.go_stub_call_string(C.int(i)); p != nil {
			strs[i] = C.GoString(p)
		}
	}
	md.VersionString, md.Description, md.Name, md.Author, md.Package = strs[0], strs[1], strs[2], strs[3], strs[4]
	return int(C.go_stub_call_api()), md, Mask(C.go_stub_events_mask())
}

// IncomingEvent calls incoming_event. The caller keeps its reference.
func (Harness) IncomingEvent(event *jansson.Value) {
	C.go_stub_call_incoming_event((*C.json_t)(event.Pointer()))
}

// HandleRequest calls handle_request. The reply belongs to the caller.
func (Harness) HandleRequest(request *jansson.Value) *jansson.Value {
	reply, _ := jansson.Adopt(unsafe.Pointer(C.go_stub_call_handle_request((*C.json_t)(request.Pointer()))))
	return reply
}
