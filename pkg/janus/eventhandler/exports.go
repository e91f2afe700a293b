package eventhandler

/*
#include "shim.h"
*/
import "C"

import (
	"unsafe"

	"github.com/arqut/janus-plugin-go/pkg/jansson"
	"github.com/arqut/janus-plugin-go/pkg/janus"
	"github.com/arqut/janus-plugin-go/pkg/logger"
)

func loaded(callback string) *registration {
	reg := current.Load()
	if reg == nil {
		janus.Log(logger.Fatal, "%s: %v", callback, ErrNotRegistered)
	}
	return reg
}

//export goHandlerInit
func goHandlerInit(configPath *C.char) (ret C.int) {
	reg := loaded("init")
	if reg == nil {
		return -1
	}
	defer reg.guard("init", func() { ret = -1 })

	if err := reg.handler.Init(C.GoString(configPath)); err != nil {
		reg.log.Err("init failed: %v", err)
		return -1
	}
	reg.log.Info("%s initialized, events: %s", reg.md.Name, CurrentMask())
	return 0
}

//export goHandlerDestroy
func goHandlerDestroy() {
	reg := loaded("destroy")
	if reg == nil {
		return
	}
	defer reg.guard("destroy", nil)
	reg.handler.Destroy()
	reg.log.Info("%s destroyed", reg.md.Name)
}

//export goHandlerVersion
func goHandlerVersion() C.int {
	if reg := current.Load(); reg != nil {
		return C.int(reg.md.Version)
	}
	return 0
}

//export goHandlerString
func goHandlerString(i C.int) *C.char {
	if reg := current.Load(); reg != nil && i >= 0 && int(i) < len(reg.strs) {
		return reg.strs[i]
	}
	return nil
}

//export goHandlerIncomingEvent
func goHandlerIncomingEvent(event *C.json_t) {
	reg := loaded("incoming_event")
	if reg == nil {
		return
	}
	// the gateway keeps its reference
	ev, err := jansson.Retain(unsafe.Pointer(event))
	if err != nil {
		reg.log.Err("incoming_event: %v", err)
		return
	}
	defer ev.Release()
	defer reg.guard("incoming_event", nil)
	reg.handler.IncomingEvent(ev)
}

//export goHandlerHandleRequest
func goHandlerHandleRequest(request *C.json_t) (ret *C.json_t) {
	reg := loaded("handle_request")
	if reg == nil {
		return nil
	}
	req, err := jansson.Retain(unsafe.Pointer(request))
	if err != nil {
		reg.log.Err("handle_request: %v", err)
		return nil
	}
	defer req.Release()
	defer reg.guard("handle_request", func() { ret = nil })

	reply := reg.handler.HandleRequest(req)
	if reply == nil {
		return nil
	}
	defer reply.Release()
	return (*C.json_t)(reply.IntoRaw())
}
