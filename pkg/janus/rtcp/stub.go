//go:build janus_testgateway

package rtcp

/*
#include "stub.h"
*/
import "C"

import (
	"unsafe"

	prtcp "github.com/pion/rtcp"
)

func view(packet *C.char, n C.int) []byte {
	if packet == nil || n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(packet)), int(n))
}

func packets(packet *C.char, n C.int) []prtcp.Packet {
	pkts, err := prtcp.Unmarshal(view(packet, n))
	if err != nil {
		return nil
	}
	return pkts
}

// write copies a generated packet into the caller's buffer.
func write(packet *C.char, n C.int, p prtcp.Packet, size int) C.int {
	if int(n) < size {
		return -1
	}
	b, err := p.Marshal()
	if err != nil || len(b) != size {
		return -2
	}
	copy(view(packet, n), b)
	return C.int(size)
}

func ssrcs(p prtcp.Packet) (sender, media uint32) {
	switch p := p.(type) {
	case *prtcp.SenderReport:
		sender = p.SSRC
		if len(p.Reports) > 0 {
			media = p.Reports[0].SSRC
		}
	case *prtcp.ReceiverReport:
		sender = p.SSRC
		if len(p.Reports) > 0 {
			media = p.Reports[0].SSRC
		}
	case *prtcp.PictureLossIndication:
		sender, media = p.SenderSSRC, p.MediaSSRC
	case *prtcp.FullIntraRequest:
		sender, media = p.SenderSSRC, p.MediaSSRC
	case *prtcp.TransportLayerNack:
		sender, media = p.SenderSSRC, p.MediaSSRC
	case *prtcp.ReceiverEstimatedMaximumBitrate:
		sender = p.SenderSSRC
		if len(p.SSRCs) > 0 {
			media = p.SSRCs[0]
		}
	}
	return sender, media
}

//export goStubSSRC
func goStubSSRC(packet *C.char, n C.int, receiver C.int) C.guint32 {
	for _, p := range packets(packet, n) {
		sender, media := ssrcs(p)
		if receiver != 0 && media != 0 {
			return C.guint32(media)
		}
		if receiver == 0 && sender != 0 {
			return C.guint32(sender)
		}
	}
	return 0
}

//export goStubHas
func goStubHas(packet *C.char, n C.int, kind C.int) C.gboolean {
	for _, p := range packets(packet, n) {
		var ok bool
		switch p.(type) {
		case *prtcp.Goodbye:
			ok = kind == 0
		case *prtcp.FullIntraRequest:
			ok = kind == 1
		case *prtcp.PictureLossIndication:
			ok = kind == 2
		}
		if ok {
			return 1
		}
	}
	return 0
}

//export goStubNACKs
func goStubNACKs(packet *C.char, n C.int) *C.GSList {
	var list *C.GSList
	for _, p := range packets(packet, n) {
		nack, ok := p.(*prtcp.TransportLayerNack)
		if !ok {
			continue
		}
		for _, pair := range nack.Nacks {
			for _, seq := range pair.PacketList() {
				list = C.go_stub_nack_append(list, C.guint(seq))
			}
		}
	}
	return list
}

//export goStubRemoveNACKs
func goStubRemoveNACKs(packet *C.char, n C.int) C.int {
	pkts := packets(packet, n)
	if pkts == nil {
		return n
	}
	kept := pkts[:0]
	for _, p := range pkts {
		if _, ok := p.(*prtcp.TransportLayerNack); !ok {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return 0
	}
	b, err := prtcp.Marshal(kept)
	if err != nil || len(b) > int(n) {
		return -1
	}
	copy(view(packet, n), b)
	return C.int(len(b))
}

//export goStubGetREMB
func goStubGetREMB(packet *C.char, n C.int) C.uint32_t {
	for _, p := range packets(packet, n) {
		if remb, ok := p.(*prtcp.ReceiverEstimatedMaximumBitrate); ok {
			return C.uint32_t(remb.Bitrate)
		}
	}
	return 0
}

//export goStubCapREMB
func goStubCapREMB(packet *C.char, n C.int, bitrate C.uint32_t) C.int {
	pkts := packets(packet, n)
	if pkts == nil {
		return -1
	}
	changed := false
	for _, p := range pkts {
		if remb, ok := p.(*prtcp.ReceiverEstimatedMaximumBitrate); ok && remb.Bitrate > float32(bitrate) {
			remb.Bitrate = float32(bitrate)
			changed = true
		}
	}
	if !changed {
		return 0
	}
	b, err := prtcp.Marshal(pkts)
	if err != nil || len(b) != int(n) {
		return -1
	}
	copy(view(packet, n), b)
	return 0
}

//export goStubREMB
func goStubREMB(packet *C.char, n C.int, bitrate C.uint32_t) C.int {
	return write(packet, n, &prtcp.ReceiverEstimatedMaximumBitrate{Bitrate: float32(bitrate), SSRCs: []uint32{0}}, REMBSize)
}

//export goStubFIR
func goStubFIR(packet *C.char, n C.int, seq C.int) C.int {
	return write(packet, n, &prtcp.FullIntraRequest{FIR: []prtcp.FIREntry{{SequenceNumber: uint8(seq)}}}, FIRSize)
}

//export goStubPLI
func goStubPLI(packet *C.char, n C.int) C.int {
	return write(packet, n, &prtcp.PictureLossIndication{}, PLISize)
}
