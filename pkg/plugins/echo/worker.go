package echo

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/arqut/janus-plugin-go/pkg/jansson"
	"github.com/arqut/janus-plugin-go/pkg/janus/plugin"
	"github.com/arqut/janus-plugin-go/pkg/janus/rtcp"
	"github.com/arqut/janus-plugin-go/pkg/janus/sdp"
	"github.com/arqut/janus-plugin-go/pkg/session"
)

// job is a message waiting for the worker. It holds its own references to
// the session state and the JSON values.
type job struct {
	ref         *session.Ref[*echoSession]
	transaction string
	message     *jansson.Value
	jsep        *jansson.Value
}

func (j *job) release() {
	j.ref.Release()
	j.message.Release()
	if j.jsep != nil {
		j.jsep.Release()
	}
}

type request struct {
	Audio      *bool   `json:"audio"`
	Video      *bool   `json:"video"`
	Data       *bool   `json:"data"`
	Bitrate    *uint32 `json:"bitrate"`
	Keyframe   string  `json:"keyframe"`
	AudioCodec string  `json:"audiocodec"`
	VideoCodec string  `json:"videocodec"`
}

type event struct {
	EchoTest  string  `json:"echotest"`
	Result    string  `json:"result,omitempty"`
	Event     string  `json:"event,omitempty"`
	Bitrate   *uint32 `json:"current-bitrate,omitempty"`
	ErrorCode int     `json:"error_code,omitempty"`
	Error     string  `json:"error,omitempty"`
}

type codedError struct {
	code int
	msg  string
}

func (e *codedError) Error() string  { return e.msg }
func (e *codedError) ErrorCode() int { return e.code }

func errorf(code int, format string, v ...any) error {
	return &codedError{code: code, msg: fmt.Sprintf(format, v...)}
}

// HandleMessage queues the message for the worker and acknowledges it; the
// reply arrives later as an event.
func (p *Plugin) HandleMessage(s *plugin.Session, transaction string, message, jsep *jansson.Value) *plugin.Result {
	p.lifecycle.RLock()
	defer p.lifecycle.RUnlock()
	if !p.running.Load() {
		return plugin.Error(errNotRunning.Error())
	}
	if message == nil {
		return plugin.Error("No message")
	}
	ref, err := session.Retrieve[*echoSession](s)
	if err != nil {
		return plugin.Error("No session associated with this handle")
	}

	j := &job{ref: ref, transaction: transaction, message: message.Clone()}
	if jsep != nil {
		j.jsep = jsep.Clone()
	}
	select {
	case p.queue <- j:
		return plugin.OKWait("")
	default:
		j.release()
		return plugin.Error("Message queue is full")
	}
}

func (p *Plugin) run() {
	defer close(p.done)
	for {
		select {
		case <-p.quit:
			for {
				select {
				case j := <-p.queue:
					j.release()
				default:
					return
				}
			}
		case j := <-p.queue:
			p.process(j)
		}
	}
}

func (p *Plugin) process(j *job) {
	defer j.release()
	defer func() {
		if v := recover(); v != nil {
			p.log.Err("panic handling message: %v", v)
		}
	}()

	s := j.ref.Handle().(*plugin.Session)
	st := *j.ref.State()
	if st.destroyed.Load() || s.Stopped() {
		return
	}

	answer, err := p.apply(s, st, j)
	if err != nil {
		p.log.Err("%v", err)
		p.push(s, j.transaction, event{EchoTest: "event", ErrorCode: plugin.ErrorCode(err), Error: err.Error()}, nil)
		return
	}
	if answer != nil {
		defer answer.Release()
	}
	p.push(s, j.transaction, event{EchoTest: "event", Result: "ok"}, answer)
}

// apply updates the session from the request and answers its JSEP offer.
func (p *Plugin) apply(s *plugin.Session, st *echoSession, j *job) (*jansson.Value, error) {
	var req request
	if err := j.message.Decode(&req); err != nil {
		return nil, errorf(ErrorInvalidJSON, "Invalid request: %v", err)
	}
	switch req.Keyframe {
	case "", "pli", "fir":
	default:
		return nil, errorf(ErrorInvalidElement, "Invalid keyframe request %q (pli or fir)", req.Keyframe)
	}

	st.mu.Lock()
	if req.Audio != nil {
		st.audio = *req.Audio
	}
	if req.Video != nil {
		st.video = *req.Video
	}
	if req.Data != nil {
		st.data = *req.Data
	}
	if req.Bitrate != nil {
		st.bitrate = *req.Bitrate
	}
	bitrate := st.bitrate
	var fir []byte
	if req.Keyframe == "fir" {
		fir = rtcp.FIR(&st.firSeq)
	}
	st.mu.Unlock()

	if req.Bitrate != nil && bitrate > 0 {
		p.gw.SendREMB(s, bitrate)
	}
	switch req.Keyframe {
	case "pli":
		p.gw.SendPLI(s)
	case "fir":
		p.gw.RelayRTCP(s, &plugin.RTCPPacket{Video: true, Buffer: fir})
	}

	snap := st.snapshot()
	p.notify(s, map[string]any{
		"event":        "configured",
		"id":           snap.ID,
		"audio_active": snap.AudioActive,
		"video_active": snap.VideoActive,
		"data_active":  snap.DataActive,
		"bitrate":      snap.Bitrate,
	})

	if j.jsep == nil {
		return nil, nil
	}
	return p.answer(j.jsep, req)
}

func (p *Plugin) answer(jsep *jansson.Value, req request) (*jansson.Value, error) {
	desc, err := plugin.ParseJSEP(jsep)
	if err != nil {
		return nil, err
	}
	if desc.Type != webrtc.SDPTypeOffer {
		return nil, errorf(ErrorInvalidSDP, "Unsupported JSEP type %s, only offers are answered", desc.Type)
	}
	offer, err := sdp.Parse(desc.SDP)
	if err != nil {
		return nil, errorf(ErrorInvalidSDP, "Error parsing offer: %v", err)
	}
	defer offer.Destroy()

	params := []sdp.Param{sdp.AudioDTMF(true), sdp.VideoRTCPFBDefaults(true)}
	if req.AudioCodec != "" {
		params = append(params, sdp.WithAudioCodec(sdp.AudioCodec(req.AudioCodec)))
	}
	if req.VideoCodec != "" {
		params = append(params, sdp.WithVideoCodec(sdp.VideoCodec(req.VideoCodec)))
	}
	answer, err := sdp.Answer(offer, params...)
	if err != nil {
		return nil, errorf(ErrorUnknown, "Error generating answer: %v", err)
	}
	defer answer.Destroy()

	text, err := answer.Write()
	if err != nil {
		return nil, errorf(ErrorUnknown, "Error writing answer: %v", err)
	}
	defer text.Free()
	p.log.Verb("Answering offer:\n%s", text.Lossy())

	return plugin.JSEP(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: text.Lossy()})
}

func (p *Plugin) push(s *plugin.Session, transaction string, ev event, jsep *jansson.Value) {
	msg, err := jansson.FromGo(ev)
	if err != nil {
		p.log.Err("push_event: %v", err)
		return
	}
	defer msg.Release()
	if err := p.gw.PushEvent(s, transaction, msg, jsep); err != nil {
		p.log.Warn("push_event: %v", err)
	}
}
