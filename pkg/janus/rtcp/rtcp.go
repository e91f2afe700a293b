// Package rtcp wraps the gateway's RTCP helpers. Packets are raw compound
// RTCP buffers as handed to IncomingRTCP.
package rtcp

/*
#cgo CFLAGS: -I${SRCDIR}/../include
#cgo pkg-config: glib-2.0
#include "janus_rtcp.h"
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"
)

// Sizes of the generated feedback packets.
const (
	FIRSize  = 20
	PLISize  = 12
	REMBSize = 24
)

// ErrCapREMB is returned when a REMB in the packet cannot be capped.
var ErrCapREMB = errors.New("rtcp: cannot cap REMB")

func buf(packet []byte) (*C.char, C.int) {
	if len(packet) == 0 {
		return nil, 0
	}
	return (*C.char)(unsafe.Pointer(&packet[0])), C.int(len(packet))
}

// HasFIR reports whether packet contains a full intra request.
func HasFIR(packet []byte) bool {
	p, n := buf(packet)
	return C.janus_rtcp_has_fir(p, n) != 0
}

// HasPLI reports whether packet contains a picture loss indication.
func HasPLI(packet []byte) bool {
	p, n := buf(packet)
	return C.janus_rtcp_has_pli(p, n) != 0
}

// HasBYE reports whether packet contains a goodbye.
func HasBYE(packet []byte) bool {
	p, n := buf(packet)
	return C.janus_rtcp_has_bye(p, n) != 0
}

// REMB returns the bitrate of the estimate in packet, if there is one.
func REMB(packet []byte) (uint32, bool) {
	p, n := buf(packet)
	bitrate := uint32(C.janus_rtcp_get_remb(p, n))
	return bitrate, bitrate != 0
}

// SenderSSRC returns the SSRC of the packet's sender.
func SenderSSRC(packet []byte) uint32 {
	p, n := buf(packet)
	return uint32(C.janus_rtcp_get_sender_ssrc(p, n))
}

// ReceiverSSRC returns the media SSRC the packet reports on.
func ReceiverSSRC(packet []byte) uint32 {
	p, n := buf(packet)
	return uint32(C.janus_rtcp_get_receiver_ssrc(p, n))
}

// NACKs returns the sequence numbers requested by the packet's generic NACKs.
func NACKs(packet []byte) []uint16 {
	p, n := buf(packet)
	list := C.janus_rtcp_get_nacks(p, n)
	if list == nil {
		return nil
	}
	defer C.g_slist_free(list)
	var out []uint16
	for l := list; l != nil; l = l.next {
		out = append(out, uint16(uintptr(l.data)))
	}
	return out
}

// CapREMB lowers the bitrate of any estimate in packet to at most bitrate, in place.
func CapREMB(packet []byte, bitrate uint32) error {
	p, n := buf(packet)
	if C.janus_rtcp_cap_remb(p, n, C.uint32_t(bitrate)) < 0 {
		return ErrCapREMB
	}
	return nil
}

// RemoveNACKs strips generic NACKs from packet in place and returns the
// shortened packet.
func RemoveNACKs(packet []byte) []byte {
	p, n := buf(packet)
	size := int(C.janus_rtcp_remove_nacks(p, n))
	if size < 0 || size > len(packet) {
		return packet
	}
	return packet[:size]
}

func generated(kind string, packet []byte, size C.int) []byte {
	// the buffers are always large enough, so a failure is a bug
	if size < 0 {
		panic(fmt.Sprintf("rtcp: generating %s failed with %d", kind, int(size)))
	}
	return packet[:size]
}

// FIR increments *seq and returns a full intra request carrying it.
func FIR(seq *int32) []byte {
	packet := make([]byte, FIRSize)
	p, n := buf(packet)
	return generated("FIR", packet, C.janus_rtcp_fir(p, n, (*C.int)(unsafe.Pointer(seq))))
}

// PLI returns a picture loss indication.
func PLI() []byte {
	packet := make([]byte, PLISize)
	p, n := buf(packet)
	return generated("PLI", packet, C.janus_rtcp_pli(p, n))
}

// REMBPacket returns an estimate announcing bitrate.
func REMBPacket(bitrate uint32) []byte {
	packet := make([]byte, REMBSize)
	p, n := buf(packet)
	return generated("REMB", packet, C.janus_rtcp_remb(p, n, C.uint32_t(bitrate)))
}
