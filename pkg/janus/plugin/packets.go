package plugin

/*
#include "shim.h"
*/
import "C"

import "unsafe"

// RTPExtensions are the header extension values the gateway parsed.
// AudioLevel and VideoRotation are -1 when absent.
type RTPExtensions struct {
	AudioLevel      int8
	AudioLevelVAD   bool
	VideoRotation   int16
	VideoBackCamera bool
	VideoFlipped    bool
}

// NoExtensions is the value for a packet that carries none of the extensions.
var NoExtensions = RTPExtensions{AudioLevel: -1, VideoRotation: -1}

// RTPPacket is a media packet. Buffer points into gateway memory and is only
// valid during the callback.
type RTPPacket struct {
	Video      bool
	Buffer     []byte
	Extensions RTPExtensions
}

// RTCPPacket is a control packet. Buffer is only valid during the callback.
type RTCPPacket struct {
	Video  bool
	Buffer []byte
}

// DataPacket is a data channel message. Buffer is only valid during the callback.
type DataPacket struct {
	Label    string
	Protocol string
	Binary   bool
	Buffer   []byte
}

func view(buf *C.char, n C.uint16_t) []byte {
	if buf == nil || n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(n))
}

func rtpFrom(p *C.janus_plugin_rtp) *RTPPacket {
	return &RTPPacket{
		Video:  p.video != 0,
		Buffer: view(p.buffer, p.length),
		Extensions: RTPExtensions{
			AudioLevel:      int8(p.extensions.audio_level),
			AudioLevelVAD:   p.extensions.audio_level_vad != 0,
			VideoRotation:   int16(p.extensions.video_rotation),
			VideoBackCamera: p.extensions.video_back_camera != 0,
			VideoFlipped:    p.extensions.video_flipped != 0,
		},
	}
}

func rtcpFrom(p *C.janus_plugin_rtcp) *RTCPPacket {
	return &RTCPPacket{Video: p.video != 0, Buffer: view(p.buffer, p.length)}
}

func dataFrom(p *C.janus_plugin_data) *DataPacket {
	d := &DataPacket{Binary: p.binary != 0, Buffer: view(p.buffer, p.length)}
	if p.label != nil {
		d.Label = C.GoString(p.label)
	}
	if p.protocol != nil {
		d.Protocol = C.GoString(p.protocol)
	}
	return d
}

func (e RTPExtensions) native() C.janus_plugin_rtp_extensions {
	return C.janus_plugin_rtp_extensions{
		audio_level:       C.int8_t(e.AudioLevel),
		audio_level_vad:   gbool(e.AudioLevelVAD),
		video_rotation:    C.int16_t(e.VideoRotation),
		video_back_camera: gbool(e.VideoBackCamera),
		video_flipped:     gbool(e.VideoFlipped),
	}
}

func gbool(b bool) C.gboolean {
	if b {
		return 1
	}
	return 0
}

func cbytes(b []byte) (*C.char, C.int) {
	if len(b) == 0 {
		return nil, 0
	}
	return (*C.char)(unsafe.Pointer(&b[0])), C.int(len(b))
}
