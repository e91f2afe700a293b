package sdp

/*
#include <stdlib.h>
#include "shim.h"
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// oaKey is a janus_sdp_oa_type key.
type oaKey int

const (
	oaDone oaKey = iota
	oaAudio
	oaVideo
	oaData
	oaAudioDirection
	oaVideoDirection
	oaAudioCodec
	oaVideoCodec
	oaVP9Profile
	oaH264Profile
	oaAudioPT
	oaVideoPT
	oaAudioDTMF
	oaAudioFmtp
	oaVideoFmtp
	oaVideoRTCPFBDefaults
	oaDataLegacy
	oaAudioExtension
	oaVideoExtension
	oaAcceptExtmap
)

// Param is one key of an offer or answer parameter list with its values.
type Param struct {
	key    oaKey
	values []any
}

func param(key oaKey, values ...any) Param { return Param{key: key, values: values} }

// Audio accepts or rejects audio.
func Audio(enabled bool) Param { return param(oaAudio, enabled) }

// Video accepts or rejects video.
func Video(enabled bool) Param { return param(oaVideo, enabled) }

// Data accepts or rejects data channels.
func Data(enabled bool) Param { return param(oaData, enabled) }

// AudioDirection sets the audio direction.
func AudioDirection(d Direction) Param { return param(oaAudioDirection, int(d)) }

// VideoDirection sets the video direction.
func VideoDirection(d Direction) Param { return param(oaVideoDirection, int(d)) }

// WithAudioCodec selects the audio codec.
func WithAudioCodec(c AudioCodec) Param { return param(oaAudioCodec, string(c)) }

// WithVideoCodec selects the video codec.
func WithVideoCodec(c VideoCodec) Param { return param(oaVideoCodec, string(c)) }

// VP9Profile selects a VP9 profile.
func VP9Profile(profile string) Param { return param(oaVP9Profile, profile) }

// H264Profile selects an H.264 profile-level-id.
func H264Profile(profile string) Param { return param(oaH264Profile, profile) }

// AudioPayloadType sets the audio payload type of an offer.
func AudioPayloadType(pt int) Param { return param(oaAudioPT, pt) }

// VideoPayloadType sets the video payload type of an offer.
func VideoPayloadType(pt int) Param { return param(oaVideoPT, pt) }

// AudioDTMF negotiates telephone events.
func AudioDTMF(enabled bool) Param { return param(oaAudioDTMF, enabled) }

// AudioFmtp adds a custom audio fmtp line.
func AudioFmtp(fmtp string) Param { return param(oaAudioFmtp, fmtp) }

// VideoFmtp adds a custom video fmtp line. Ignored when a profile applies.
func VideoFmtp(fmtp string) Param { return param(oaVideoFmtp, fmtp) }

// VideoRTCPFBDefaults adds the default rtcp-fb attributes.
func VideoRTCPFBDefaults(enabled bool) Param { return param(oaVideoRTCPFBDefaults, enabled) }

// DataLegacy uses the legacy DTLS/SCTP m-line format for data channels.
func DataLegacy(enabled bool) Param { return param(oaDataLegacy, enabled) }

// AudioExtension offers an audio RTP header extension with the given id.
func AudioExtension(uri string, id int) Param { return param(oaAudioExtension, uri, id) }

// VideoExtension offers a video RTP header extension with the given id.
func VideoExtension(uri string, id int) Param { return param(oaVideoExtension, uri, id) }

// AcceptExtmap accepts an offered RTP header extension in an answer.
func AcceptExtmap(uri string) Param { return param(oaAcceptExtmap, uri) }

// maxSlots is GO_SDP_MAX_PARAMS in shim.h.
const maxSlots = 64

// paramList is a Done-terminated key/value array for the variadic generators.
type paramList struct {
	slots [maxSlots]C.intptr_t
	strs  []*C.char
}

func flatten(params []Param) (*paramList, error) {
	l := &paramList{}
	n := 0
	push := func(v C.intptr_t) error {
		// the last slot stays Done
		if n >= len(l.slots)-1 {
			return fmt.Errorf("sdp: more than %d parameter slots", len(l.slots)-1)
		}
		l.slots[n] = v
		n++
		return nil
	}
	for _, p := range params {
		if err := push(C.intptr_t(p.key)); err != nil {
			l.free()
			return nil, err
		}
		for _, v := range p.values {
			var slot C.intptr_t
			switch v := v.(type) {
			case bool:
				if v {
					slot = 1
				}
			case int:
				slot = C.intptr_t(v)
			case string:
				cs := C.CString(v)
				l.strs = append(l.strs, cs)
				slot = C.intptr_t(uintptr(unsafe.Pointer(cs)))
			default:
				panic(fmt.Sprintf("sdp: unsupported parameter value %T", v))
			}
			if err := push(slot); err != nil {
				l.free()
				return nil, err
			}
		}
	}
	return l, nil
}

func (l *paramList) free() {
	for _, s := range l.strs {
		C.free(unsafe.Pointer(s))
	}
	l.strs = nil
}

// Offer generates an offer.
func Offer(name, address string, params ...Param) (*Sdp, error) {
	l, err := flatten(params)
	if err != nil {
		return nil, err
	}
	defer l.free()
	cn := C.CString(name)
	defer C.free(unsafe.Pointer(cn))
	ca := C.CString(address)
	defer C.free(unsafe.Pointer(ca))

	out := wrap(C.go_sdp_generate_offer(cn, ca, &l.slots[0]))
	if out == nil {
		return nil, ErrGenerate
	}
	return out, nil
}

// Answer generates an answer to offer.
func Answer(offer *Sdp, params ...Param) (*Sdp, error) {
	l, err := flatten(params)
	if err != nil {
		return nil, err
	}
	defer l.free()

	out := wrap(C.go_sdp_generate_answer(offer.ptr(), &l.slots[0]))
	if out == nil {
		return nil, ErrGenerate
	}
	return out, nil
}
