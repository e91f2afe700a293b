//go:build janus_testgateway

package sdp

/*
#include <stdlib.h>
#include "stub.h"
*/
import "C"

import (
	"strconv"
	"strings"
	"sync"
	"time"
	"unsafe"

	psdp "github.com/pion/sdp/v3"
)

// rtpmaps maps the gateway's codec names to their rtpmap encodings.
var rtpmaps = map[string]string{
	"opus":   "opus/48000/2",
	"pcmu":   "PCMU/8000",
	"pcma":   "PCMA/8000",
	"g722":   "G722/8000",
	"isac16": "ISAC/16000",
	"isac32": "ISAC/32000",
	"vp8":    "VP8/90000",
	"vp9":    "VP9/90000",
	"h264":   "H264/90000",
	"av1":    "AV1/90000",
	"h265":   "H265/90000",
}

var defaultAudioPT = map[string]int{"opus": 111, "pcmu": 0, "pcma": 8, "g722": 9, "isac16": 103, "isac32": 104}

const (
	stubDTMFPT   = 126
	stubSCTPPort = "5000"
)

var rtcpFeedback = []string{"ccm fir", "nack", "nack pli", "goog-remb"}

var codecNames = struct {
	sync.Mutex
	m map[string]*C.char
}{m: map[string]*C.char{}}

// codecMatches reports whether an rtpmap encoding is the gateway codec.
func codecMatches(codec, encoding string) bool {
	want, ok := rtpmaps[strings.ToLower(codec)]
	if !ok {
		return false
	}
	name, clock, _ := strings.Cut(strings.ToLower(want), "/")
	gotName, rest, _ := strings.Cut(strings.ToLower(encoding), "/")
	if gotName != name {
		return false
	}
	// iSAC is told apart by its clock rate
	if name == "isac" {
		gotClock, _, _ := strings.Cut(rest, "/")
		wantClock, _, _ := strings.Cut(clock, "/")
		return gotClock == wantClock
	}
	return true
}

func cstring(s string) *C.char {
	cs := C.CString(s)
	defer C.free(unsafe.Pointer(cs))
	return C.go_stub_strdup(cs)
}

func gbool(b bool) C.gboolean {
	if b {
		return 1
	}
	return 0
}

func addressType(ipv4 C.gboolean) string {
	if ipv4 != 0 {
		return "IP4"
	}
	return "IP6"
}

// firstToken splits "96 opus/48000/2" into 96 and the rest.
func firstToken(value string) (int, string, bool) {
	pt, rest, _ := strings.Cut(value, " ")
	n, err := strconv.Atoi(pt)
	if err != nil {
		return 0, "", false
	}
	return n, rest, true
}

type stubBuilder struct {
	raw *C.janus_sdp
}

func (b stubBuilder) attr(name, value string) {
	cn := C.CString(name)
	defer C.free(unsafe.Pointer(cn))
	var cv *C.char
	if value != "" {
		cv = C.CString(value)
		defer C.free(unsafe.Pointer(cv))
	}
	C.go_stub_sdp_add_attribute(b.raw, cn, cv)
}

func (b stubBuilder) mline(t MediaType, typeStr string, port int, proto string, dir Direction) *MLine {
	ct := C.CString(typeStr)
	defer C.free(unsafe.Pointer(ct))
	cp := C.CString(proto)
	defer C.free(unsafe.Pointer(cp))
	return &MLine{raw: C.go_stub_mline_append(b.raw, C.int(t), ct, C.int(port), cp, C.int(dir))}
}

func (m *MLine) stubFormat(format string, pt int) {
	cf := C.CString(format)
	defer C.free(unsafe.Pointer(cf))
	C.go_stub_mline_add_format(m.raw, cf, C.int(pt))
}

func (m *MLine) stubAttr(name, value string) {
	cn := C.CString(name)
	defer C.free(unsafe.Pointer(cn))
	var cv *C.char
	if value != "" {
		cv = C.CString(value)
		defer C.free(unsafe.Pointer(cv))
	}
	C.janus_sdp_attribute_add_to_mline(m.raw, C.go_sdp_attribute_new(cn, cv))
}

func mediaTypeOf(media string) MediaType {
	switch strings.ToLower(media) {
	case "audio":
		return Audio
	case "video":
		return Video
	case "application":
		return Application
	}
	return Other
}

//export goStubParse
func goStubParse(text, errbuf *C.char, errlen C.size_t) *C.janus_sdp {
	var desc psdp.SessionDescription
	if err := desc.Unmarshal([]byte(C.GoString(text))); err != nil {
		if errbuf != nil && errlen > 0 {
			buf := unsafe.Slice((*byte)(unsafe.Pointer(errbuf)), int(errlen))
			n := copy(buf[:len(buf)-1], err.Error())
			buf[n] = 0
		}
		return nil
	}

	b := stubBuilder{raw: C.go_stub_sdp_new()}
	b.raw.version = C.int(desc.Version)
	b.raw.o_name = cstring(desc.Origin.Username)
	b.raw.o_sessid = C.guint64(desc.Origin.SessionID)
	b.raw.o_version = C.guint64(desc.Origin.SessionVersion)
	b.raw.o_ipv4 = gbool(desc.Origin.AddressType != "IP6")
	b.raw.o_addr = cstring(desc.Origin.UnicastAddress)
	b.raw.s_name = cstring(string(desc.SessionName))
	if len(desc.TimeDescriptions) > 0 {
		b.raw.t_start = C.guint64(desc.TimeDescriptions[0].Timing.StartTime)
		b.raw.t_stop = C.guint64(desc.TimeDescriptions[0].Timing.StopTime)
	}
	if ci := desc.ConnectionInformation; ci != nil && ci.Address != nil {
		b.raw.c_ipv4 = gbool(ci.AddressType != "IP6")
		b.raw.c_addr = cstring(ci.Address.Address)
	}
	for _, a := range desc.Attributes {
		b.attr(a.Key, a.Value)
	}

	for _, md := range desc.MediaDescriptions {
		t := mediaTypeOf(md.MediaName.Media)
		dir := DirectionDefault
		for _, a := range md.Attributes {
			if d := ParseDirection(a.Key); d != DirectionInvalid && a.Value == "" {
				dir = d
			}
		}
		m := b.mline(t, md.MediaName.Media, md.MediaName.Port.Value, strings.Join(md.MediaName.Protos, "/"), dir)
		for _, f := range md.MediaName.Formats {
			pt := -1
			if t != Application {
				if n, err := strconv.Atoi(f); err == nil {
					pt = n
				}
			}
			m.stubFormat(f, pt)
		}
		if ci := md.ConnectionInformation; ci != nil && ci.Address != nil {
			m.raw.c_ipv4 = gbool(ci.AddressType != "IP6")
			m.raw.c_addr = cstring(ci.Address.Address)
		}
		if len(md.Bandwidth) > 0 {
			m.raw.b_name = cstring(md.Bandwidth[0].Type)
			m.raw.b_value = C.int(md.Bandwidth[0].Bandwidth)
		}
		for _, a := range md.Attributes {
			if ParseDirection(a.Key) != DirectionInvalid && a.Value == "" {
				continue
			}
			m.stubAttr(a.Key, a.Value)
		}
	}
	return b.raw
}

//export goStubWrite
func goStubWrite(raw *C.janus_sdp) *C.char {
	s := wrap(raw)
	desc := psdp.SessionDescription{
		Version: psdp.Version(raw.version),
		Origin: psdp.Origin{
			Username:       orDash(goString(raw.o_name)),
			SessionID:      uint64(raw.o_sessid),
			SessionVersion: uint64(raw.o_version),
			NetworkType:    "IN",
			AddressType:    addressType(raw.o_ipv4),
			UnicastAddress: orDash(goString(raw.o_addr)),
		},
		SessionName: psdp.SessionName(orDash(goString(raw.s_name))),
		TimeDescriptions: []psdp.TimeDescription{
			{Timing: psdp.Timing{StartTime: uint64(raw.t_start), StopTime: uint64(raw.t_stop)}},
		},
	}
	if raw.c_addr != nil {
		desc.ConnectionInformation = &psdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: addressType(raw.c_ipv4),
			Address:     &psdp.Address{Address: goString(raw.c_addr)},
		}
	}
	for _, a := range s.Attributes() {
		desc.Attributes = append(desc.Attributes, psdp.Attribute{Key: a.Name, Value: a.Value})
	}

	for _, m := range s.mlines() {
		media := goString(m.raw.type_str)
		if media == "" {
			media = m.Type().String()
		}
		md := &psdp.MediaDescription{
			MediaName: psdp.MediaName{
				Media:  media,
				Port:   psdp.RangedPort{Value: m.Port()},
				Protos: strings.Split(m.Proto(), "/"),
			},
		}
		if strings.Contains(m.Proto(), "RTP") {
			for _, pt := range m.PayloadTypes() {
				md.MediaName.Formats = append(md.MediaName.Formats, strconv.Itoa(pt))
			}
		} else {
			md.MediaName.Formats = m.Formats()
		}
		if len(md.MediaName.Formats) == 0 {
			md.MediaName.Formats = []string{"0"}
		}
		if m.raw.c_addr != nil {
			md.ConnectionInformation = &psdp.ConnectionInformation{
				NetworkType: "IN",
				AddressType: addressType(m.raw.c_ipv4),
				Address:     &psdp.Address{Address: goString(m.raw.c_addr)},
			}
		}
		if m.raw.b_name != nil {
			md.Bandwidth = []psdp.Bandwidth{{Type: goString(m.raw.b_name), Bandwidth: uint64(m.raw.b_value)}}
		}
		if d := m.Direction(); d != DirectionDefault && d != DirectionInvalid {
			md.Attributes = append(md.Attributes, psdp.Attribute{Key: d.String()})
		}
		for _, a := range m.Attributes() {
			md.Attributes = append(md.Attributes, psdp.Attribute{Key: a.Name, Value: a.Value})
		}
		desc.MediaDescriptions = append(desc.MediaDescriptions, md)
	}

	text, err := desc.Marshal()
	if err != nil {
		return nil
	}
	return cstring(string(text))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

//export goStubRemovePayloadType
func goStubRemovePayloadType(raw *C.janus_sdp, pt C.int) C.int {
	format := strconv.Itoa(int(pt))
	cf := C.CString(format)
	defer C.free(unsafe.Pointer(cf))
	for _, m := range wrap(raw).mlines() {
		if C.go_sdp_list_has_int(m.raw.ptypes, pt) == 0 {
			continue
		}
		C.go_stub_mline_remove_format(m.raw, cf, pt)
		for link := m.raw.attributes; link != nil; {
			next := link.next
			a := (*C.janus_sdp_attribute)(link.data)
			if rewritesPayload(goString(a.name)) {
				if n, _, ok := firstToken(goString(a.value)); ok && n == int(pt) {
					C.go_stub_mline_delete_attribute(m.raw, link)
				}
			}
			link = next
		}
	}
	return 0
}

// rtpmapPT finds the payload type of codec in an m-line.
func rtpmapPT(m *MLine, codec string) int {
	for _, a := range m.Attributes() {
		if a.Name != "rtpmap" {
			continue
		}
		if pt, encoding, ok := firstToken(a.Value); ok && codecMatches(codec, encoding) {
			return pt
		}
	}
	return -1
}

//export goStubCodecPT
func goStubCodecPT(raw *C.janus_sdp, codec *C.char) C.int {
	name := C.GoString(codec)
	for _, m := range wrap(raw).mlines() {
		if pt := rtpmapPT(m, name); pt >= 0 {
			return C.int(pt)
		}
	}
	return -1
}

//export goStubCodecName
func goStubCodecName(raw *C.janus_sdp, pt C.int) *C.char {
	for _, m := range wrap(raw).mlines() {
		for _, a := range m.Attributes() {
			if a.Name != "rtpmap" {
				continue
			}
			n, encoding, ok := firstToken(a.Value)
			if !ok || n != int(pt) {
				continue
			}
			for codec := range rtpmaps {
				if codecMatches(codec, encoding) {
					return codecName(codec)
				}
			}
		}
	}
	return nil
}

// codecName returns a C string that lives for the rest of the process.
func codecName(codec string) *C.char {
	codecNames.Lock()
	defer codecNames.Unlock()
	if p, ok := codecNames.m[codec]; ok {
		return p
	}
	p := C.CString(codec)
	codecNames.m[codec] = p
	return p
}

type stubOptions struct {
	audio, video, data bool
	audioDir, videoDir Direction
	audioCodec         string
	videoCodec         string
	vp9Profile         string
	h264Profile        string
	audioPT, videoPT   int
	dtmf               bool
	audioFmtp          string
	videoFmtp          string
	rtcpfb             bool
	dataLegacy         bool
	audioExt, videoExt []extension
	acceptExtmap       []string
}

type extension struct {
	uri string
	id  int
}

func decodeParams(kv *C.intptr_t, n C.int) stubOptions {
	o := stubOptions{
		audio: true, video: true, data: true,
		audioDir: SendRecv, videoDir: SendRecv,
		audioCodec: string(Opus), videoCodec: string(VP8),
		audioPT: -1, videoPT: -1,
		rtcpfb: true,
	}
	if n == 0 {
		return o
	}
	slots := unsafe.Slice(kv, int(n))
	str := func(i int) string {
		return C.GoString((*C.char)(unsafe.Pointer(uintptr(slots[i]))))
	}
	for i := 0; i+1 < len(slots); i += 2 {
		val := int(slots[i+1])
		switch oaKey(slots[i]) {
		case oaAudio:
			o.audio = val != 0
		case oaVideo:
			o.video = val != 0
		case oaData:
			o.data = val != 0
		case oaAudioDirection:
			o.audioDir = Direction(val)
		case oaVideoDirection:
			o.videoDir = Direction(val)
		case oaAudioCodec:
			o.audioCodec = str(i + 1)
		case oaVideoCodec:
			o.videoCodec = str(i + 1)
		case oaVP9Profile:
			o.vp9Profile = str(i + 1)
		case oaH264Profile:
			o.h264Profile = str(i + 1)
		case oaAudioPT:
			o.audioPT = val
		case oaVideoPT:
			o.videoPT = val
		case oaAudioDTMF:
			o.dtmf = val != 0
		case oaAudioFmtp:
			o.audioFmtp = str(i + 1)
		case oaVideoFmtp:
			o.videoFmtp = str(i + 1)
		case oaVideoRTCPFBDefaults:
			o.rtcpfb = val != 0
		case oaDataLegacy:
			o.dataLegacy = val != 0
		case oaAudioExtension, oaVideoExtension:
			ext := extension{uri: str(i + 1), id: int(slots[i+2])}
			if oaKey(slots[i]) == oaAudioExtension {
				o.audioExt = append(o.audioExt, ext)
			} else {
				o.videoExt = append(o.videoExt, ext)
			}
			i++
		case oaAcceptExtmap:
			o.acceptExtmap = append(o.acceptExtmap, str(i+1))
		}
	}
	return o
}

func (o stubOptions) videoProfileFmtp() string {
	switch {
	case o.videoCodec == string(VP9) && o.vp9Profile != "":
		return "profile-id=" + o.vp9Profile
	case o.videoCodec == string(H264) && o.h264Profile != "":
		return "profile-level-id=" + o.h264Profile + ";packetization-mode=1"
	}
	return o.videoFmtp
}

const rtpProfile = "UDP/TLS/RTP/SAVPF"

//export goStubGenerateOffer
func goStubGenerateOffer(name, address *C.char, kv *C.intptr_t, n C.int) *C.janus_sdp {
	o := decodeParams(kv, n)
	sessionName, addr := "Janus session", "127.0.0.1"
	if name != nil {
		sessionName = C.GoString(name)
	}
	if address != nil {
		addr = C.GoString(address)
	}

	b := stubBuilder{raw: C.go_stub_sdp_new()}
	b.raw.o_name = cstring("-")
	b.raw.o_sessid = C.guint64(time.Now().UnixMicro())
	b.raw.o_version = 1
	b.raw.o_ipv4 = 1
	b.raw.o_addr = cstring(addr)
	b.raw.s_name = cstring(sessionName)
	b.raw.c_ipv4 = 1
	b.raw.c_addr = cstring(addr)

	if o.audio {
		pt := o.audioPT
		if pt < 0 {
			pt = defaultAudioPT[o.audioCodec]
		}
		m := b.mline(Audio, "audio", 9, rtpProfile, o.audioDir)
		m.stubFormat(strconv.Itoa(pt), pt)
		m.stubAttr("rtpmap", strconv.Itoa(pt)+" "+rtpmaps[o.audioCodec])
		if o.audioFmtp != "" {
			m.stubAttr("fmtp", strconv.Itoa(pt)+" "+o.audioFmtp)
		}
		if o.dtmf {
			m.stubFormat(strconv.Itoa(stubDTMFPT), stubDTMFPT)
			m.stubAttr("rtpmap", strconv.Itoa(stubDTMFPT)+" telephone-event/8000")
		}
		for _, ext := range o.audioExt {
			m.stubAttr("extmap", strconv.Itoa(ext.id)+" "+ext.uri)
		}
	}
	if o.video {
		pt := o.videoPT
		if pt < 0 {
			pt = 96
		}
		m := b.mline(Video, "video", 9, rtpProfile, o.videoDir)
		m.stubFormat(strconv.Itoa(pt), pt)
		m.stubAttr("rtpmap", strconv.Itoa(pt)+" "+rtpmaps[o.videoCodec])
		if fmtp := o.videoProfileFmtp(); fmtp != "" {
			m.stubAttr("fmtp", strconv.Itoa(pt)+" "+fmtp)
		}
		if o.rtcpfb {
			for _, fb := range rtcpFeedback {
				m.stubAttr("rtcp-fb", strconv.Itoa(pt)+" "+fb)
			}
		}
		for _, ext := range o.videoExt {
			m.stubAttr("extmap", strconv.Itoa(ext.id)+" "+ext.uri)
		}
	}
	if o.data {
		addDataMLine(b, o.dataLegacy)
	}
	return b.raw
}

func addDataMLine(b stubBuilder, legacy bool) {
	if legacy {
		m := b.mline(Application, "application", 9, "DTLS/SCTP", DirectionDefault)
		m.stubFormat(stubSCTPPort, -1)
		m.stubAttr("sctpmap", stubSCTPPort+" webrtc-datachannel 16")
		return
	}
	m := b.mline(Application, "application", 9, "UDP/DTLS/SCTP", DirectionDefault)
	m.stubFormat("webrtc-datachannel", -1)
	m.stubAttr("sctp-port", stubSCTPPort)
}

// answerDirection narrows the wanted direction to what the offer allows.
func answerDirection(offered, wanted Direction) Direction {
	switch offered {
	case SendOnly:
		if wanted == SendRecv || wanted == RecvOnly {
			return RecvOnly
		}
		return Inactive
	case RecvOnly:
		if wanted == SendRecv || wanted == SendOnly {
			return SendOnly
		}
		return Inactive
	case Inactive:
		return Inactive
	}
	return wanted
}

func reject(b stubBuilder, m *MLine) {
	out := b.mline(m.Type(), goString(m.raw.type_str), 0, m.Proto(), Inactive)
	formats := m.Formats()
	if len(formats) == 0 {
		formats = []string{"0"}
	}
	pt := -1
	if n, err := strconv.Atoi(formats[0]); err == nil {
		pt = n
	}
	out.stubFormat(formats[0], pt)
	if mid, ok := m.Attribute("mid"); ok {
		out.stubAttr("mid", mid)
	}
}

func payloadAttrs(m *MLine, name string, pt int) []string {
	var out []string
	for _, a := range m.Attributes() {
		if a.Name != name {
			continue
		}
		if n, _, ok := firstToken(a.Value); ok && n == pt {
			out = append(out, a.Value)
		}
	}
	return out
}

//export goStubGenerateAnswer
func goStubGenerateAnswer(offer *C.janus_sdp, kv *C.intptr_t, n C.int) *C.janus_sdp {
	o := decodeParams(kv, n)
	b := stubBuilder{raw: C.go_stub_sdp_new()}
	b.raw.o_name = cstring("-")
	b.raw.o_sessid = offer.o_sessid
	b.raw.o_version = offer.o_version
	b.raw.o_ipv4 = offer.o_ipv4
	b.raw.o_addr = cstring(goString(offer.o_addr))
	b.raw.s_name = cstring(goString(offer.s_name))
	b.raw.t_start = offer.t_start
	b.raw.t_stop = offer.t_stop
	if offer.c_addr != nil {
		b.raw.c_ipv4 = offer.c_ipv4
		b.raw.c_addr = cstring(goString(offer.c_addr))
	}

	for _, m := range wrap(offer).mlines() {
		switch t := m.Type(); t {
		case Audio, Video:
			enabled, codec, wanted, fmtp := o.audio, o.audioCodec, o.audioDir, o.audioFmtp
			if t == Video {
				enabled, codec, wanted, fmtp = o.video, o.videoCodec, o.videoDir, o.videoProfileFmtp()
			}
			pt := rtpmapPT(m, codec)
			if !enabled || m.Port() == 0 || pt < 0 {
				reject(b, m)
				continue
			}
			out := b.mline(t, goString(m.raw.type_str), 9, m.Proto(), answerDirection(m.Direction(), wanted))
			out.stubFormat(strconv.Itoa(pt), pt)
			if mid, ok := m.Attribute("mid"); ok {
				out.stubAttr("mid", mid)
			}
			for _, v := range payloadAttrs(m, "rtpmap", pt) {
				out.stubAttr("rtpmap", v)
			}
			if fmtp != "" {
				out.stubAttr("fmtp", strconv.Itoa(pt)+" "+fmtp)
			} else {
				for _, v := range payloadAttrs(m, "fmtp", pt) {
					out.stubAttr("fmtp", v)
				}
			}
			if t == Video && o.rtcpfb {
				for _, fb := range rtcpFeedback {
					out.stubAttr("rtcp-fb", strconv.Itoa(pt)+" "+fb)
				}
			}
			if t == Audio && o.dtmf {
				if dtmf := rtpmapPTByEncoding(m, "telephone-event"); dtmf >= 0 {
					out.stubFormat(strconv.Itoa(dtmf), dtmf)
					for _, v := range payloadAttrs(m, "rtpmap", dtmf) {
						out.stubAttr("rtpmap", v)
					}
				}
			}
			for _, a := range m.Attributes() {
				if a.Name != "extmap" {
					continue
				}
				_, uri, _ := strings.Cut(a.Value, " ")
				for _, accepted := range o.acceptExtmap {
					if uri == accepted {
						out.stubAttr("extmap", a.Value)
					}
				}
			}
		case Application:
			if !o.data || m.Port() == 0 {
				reject(b, m)
				continue
			}
			out := b.mline(t, goString(m.raw.type_str), 9, m.Proto(), DirectionDefault)
			for _, f := range m.Formats() {
				out.stubFormat(f, -1)
			}
			for _, a := range m.Attributes() {
				switch a.Name {
				case "mid", "sctp-port", "sctpmap", "max-message-size":
					out.stubAttr(a.Name, a.Value)
				}
			}
		default:
			reject(b, m)
		}
	}
	return b.raw
}

func rtpmapPTByEncoding(m *MLine, encoding string) int {
	for _, a := range m.Attributes() {
		if a.Name != "rtpmap" {
			continue
		}
		if pt, enc, ok := firstToken(a.Value); ok && strings.HasPrefix(strings.ToLower(enc), encoding+"/") {
			return pt
		}
	}
	return -1
}
