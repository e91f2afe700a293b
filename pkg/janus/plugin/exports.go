package plugin

/*
#include "shim.h"
*/
import "C"

import (
	"errors"
	"unsafe"

	"github.com/arqut/janus-plugin-go/pkg/cstr"
	"github.com/arqut/janus-plugin-go/pkg/jansson"
	"github.com/arqut/janus-plugin-go/pkg/janus"
	"github.com/arqut/janus-plugin-go/pkg/logger"
	"github.com/arqut/janus-plugin-go/pkg/session"
)

func loaded(callback string) *registration {
	reg := current.Load()
	if reg == nil {
		janus.Log(logger.Fatal, "%s: %v", callback, ErrNotRegistered)
	}
	return reg
}

// loadedSession resolves the registration and the session for a per-session callback.
func loadedSession(callback string, handle *C.janus_plugin_session) (*registration, *Session) {
	reg := loaded(callback)
	if reg == nil {
		return nil, nil
	}
	s := sessionFrom(handle)
	if s == nil {
		reg.log.Err("%s: %v", callback, ErrNullSession)
		return nil, nil
	}
	return reg, s
}

//export goPluginInit
func goPluginInit(cb *C.janus_callbacks, configPath *C.char) (ret C.int) {
	reg := loaded("init")
	if reg == nil {
		return -1
	}
	defer reg.guard("init", func() { ret = -1 })

	if err := reg.plugin.Init(&Gateway{cb: cb}, C.GoString(configPath)); err != nil {
		reg.log.Err("init failed: %v", err)
		return -1
	}
	reg.log.Info("%s initialized", reg.md.Name)
	return 0
}

//export goPluginDestroy
func goPluginDestroy() {
	reg := loaded("destroy")
	if reg == nil {
		return
	}
	defer reg.guard("destroy", nil)
	reg.plugin.Destroy()
	reg.log.Info("%s destroyed", reg.md.Name)
}

//export goPluginVersion
func goPluginVersion() C.int {
	if reg := current.Load(); reg != nil {
		return C.int(reg.md.Version)
	}
	return 0
}

//export goPluginString
func goPluginString(i C.int) *C.char {
	if reg := current.Load(); reg != nil && i >= 0 && int(i) < len(reg.strs) {
		return reg.strs[i]
	}
	return nil
}

//export goPluginCreateSession
func goPluginCreateSession(handle *C.janus_plugin_session, errOut *C.int) {
	setErr := func(code int) {
		if errOut != nil {
			*errOut = C.int(code)
		}
	}
	reg, s := loadedSession("create_session", handle)
	if s == nil {
		setErr(-1)
		return
	}
	defer reg.guard("create_session", func() { setErr(-1) })

	if err := reg.plugin.CreateSession(s); err != nil {
		reg.log.Err("create_session failed: %v", err)
		setErr(ErrorCode(err))
		return
	}
	setErr(0)
}

//export goPluginHandleMessage
func goPluginHandleMessage(handle *C.janus_plugin_session, transaction *C.char, message, jsep *C.json_t) (ret *C.janus_plugin_result) {
	// the plugin owns every argument from here on
	txn := cstr.FromPtr[cstr.GLib](unsafe.Pointer(transaction))
	var transactionID string
	if txn != nil {
		transactionID = txn.Lossy()
		txn.Free()
	}
	msg, _ := jansson.Adopt(unsafe.Pointer(message))
	defer msg.Release()
	js, _ := jansson.Adopt(unsafe.Pointer(jsep))
	defer js.Release()

	reg, s := loadedSession("handle_message", handle)
	if s == nil {
		return Error(ErrNullSession.Error()).native()
	}
	defer reg.guard("handle_message", func() { ret = Error("internal plugin error").native() })

	res := reg.plugin.HandleMessage(s, transactionID, msg, js)
	if res == nil {
		res = Error("no result")
	}
	return res.native()
}

//export goPluginHandleAdminMessage
func goPluginHandleAdminMessage(message *C.json_t) (ret *C.json_t) {
	reg := loaded("handle_admin_message")
	if reg == nil {
		return nil
	}
	msg, _ := jansson.Retain(unsafe.Pointer(message))
	defer msg.Release()
	defer reg.guard("handle_admin_message", func() { ret = nil })

	return handOver(reg.plugin.HandleAdminMessage(msg))
}

//export goPluginSetupMedia
func goPluginSetupMedia(handle *C.janus_plugin_session) {
	if reg, s := loadedSession("setup_media", handle); s != nil {
		defer reg.guard("setup_media", nil)
		reg.plugin.SetupMedia(s)
	}
}

//export goPluginIncomingRTP
func goPluginIncomingRTP(handle *C.janus_plugin_session, packet *C.janus_plugin_rtp) {
	if reg, s := loadedSession("incoming_rtp", handle); s != nil && packet != nil {
		defer reg.guard("incoming_rtp", nil)
		reg.plugin.IncomingRTP(s, rtpFrom(packet))
	}
}

//export goPluginIncomingRTCP
func goPluginIncomingRTCP(handle *C.janus_plugin_session, packet *C.janus_plugin_rtcp) {
	if reg, s := loadedSession("incoming_rtcp", handle); s != nil && packet != nil {
		defer reg.guard("incoming_rtcp", nil)
		reg.plugin.IncomingRTCP(s, rtcpFrom(packet))
	}
}

//export goPluginIncomingData
func goPluginIncomingData(handle *C.janus_plugin_session, packet *C.janus_plugin_data) {
	if reg, s := loadedSession("incoming_data", handle); s != nil && packet != nil {
		defer reg.guard("incoming_data", nil)
		reg.plugin.IncomingData(s, dataFrom(packet))
	}
}

//export goPluginDataReady
func goPluginDataReady(handle *C.janus_plugin_session) {
	if reg, s := loadedSession("data_ready", handle); s != nil {
		defer reg.guard("data_ready", nil)
		reg.plugin.DataReady(s)
	}
}

//export goPluginSlowLink
func goPluginSlowLink(handle *C.janus_plugin_session, uplink, video C.int) {
	if reg, s := loadedSession("slow_link", handle); s != nil {
		defer reg.guard("slow_link", nil)
		reg.plugin.SlowLink(s, uplink != 0, video != 0)
	}
}

//export goPluginHangupMedia
func goPluginHangupMedia(handle *C.janus_plugin_session) {
	if reg, s := loadedSession("hangup_media", handle); s != nil {
		defer reg.guard("hangup_media", nil)
		reg.plugin.HangupMedia(s)
	}
}

//export goPluginDestroySession
func goPluginDestroySession(handle *C.janus_plugin_session, errOut *C.int) {
	setErr := func(code int) {
		if errOut != nil {
			*errOut = C.int(code)
		}
	}
	reg, s := loadedSession("destroy_session", handle)
	if s == nil {
		setErr(-1)
		return
	}
	// the slot reference goes even if the plugin fails or panics
	defer func() {
		if err := session.Detach(s); err != nil && !errors.Is(err, session.ErrNotAssociated) {
			reg.log.Err("destroy_session: %v", err)
		}
	}()
	defer reg.guard("destroy_session", func() { setErr(-1) })

	if err := reg.plugin.DestroySession(s); err != nil {
		reg.log.Err("destroy_session failed: %v", err)
		setErr(ErrorCode(err))
		return
	}
	setErr(0)
}

//export goPluginQuerySession
func goPluginQuerySession(handle *C.janus_plugin_session) (ret *C.json_t) {
	reg, s := loadedSession("query_session", handle)
	if s == nil {
		return nil
	}
	defer reg.guard("query_session", func() { ret = nil })
	return handOver(reg.plugin.QuerySession(s))
}

// handOver gives the gateway the caller's reference to v.
func handOver(v *jansson.Value) *C.json_t {
	if v == nil {
		return nil
	}
	defer v.Release()
	return (*C.json_t)(v.IntoRaw())
}
