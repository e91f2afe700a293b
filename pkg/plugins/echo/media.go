package echo

import (
	"github.com/arqut/janus-plugin-go/pkg/janus/plugin"
	"github.com/arqut/janus-plugin-go/pkg/janus/rtcp"
)

const dataPrefix = "Go EchoTest here! You wrote: "

func (p *Plugin) SetupMedia(s *plugin.Session) {
	st, done := p.state(s)
	if st == nil {
		return
	}
	defer done()
	st.hangingUp.Store(false)

	st.mu.Lock()
	bitrate := st.bitrate
	st.mu.Unlock()
	if bitrate > 0 {
		p.gw.SendREMB(s, bitrate)
	}
	p.log.Verb("WebRTC media is now available for %s", st.id)
	p.notify(s, map[string]any{"event": "media", "id": st.id, "status": "up"})
}

func (p *Plugin) IncomingRTP(s *plugin.Session, packet *plugin.RTPPacket) {
	st, done := p.state(s)
	if st == nil {
		return
	}
	defer done()
	if st.hangingUp.Load() {
		return
	}

	st.mu.Lock()
	active, stats := st.audio, &st.audioRTP
	if packet.Video {
		active, stats = st.video, &st.videoRTP
	}
	err := stats.add(packet.Buffer)
	st.mu.Unlock()
	if err != nil {
		p.log.Huge("Dropping malformed RTP packet: %v", err)
		return
	}
	if active {
		p.gw.RelayRTP(s, packet)
	}
}

// IncomingRTCP sends feedback back to the peer, lowering any REMB above the
// session's cap first.
func (p *Plugin) IncomingRTCP(s *plugin.Session, packet *plugin.RTCPPacket) {
	st, done := p.state(s)
	if st == nil {
		return
	}
	defer done()
	if st.hangingUp.Load() {
		return
	}

	if remb, ok := rtcp.REMB(packet.Buffer); ok {
		st.mu.Lock()
		st.lastREMB = remb
		limit := st.bitrate
		st.mu.Unlock()
		if limit > 0 && remb > limit {
			if err := rtcp.CapREMB(packet.Buffer, limit); err != nil {
				p.log.Warn("Could not cap REMB for %s: %v", st.id, err)
			}
		}
	}
	p.gw.RelayRTCP(s, packet)
}

func (p *Plugin) IncomingData(s *plugin.Session, packet *plugin.DataPacket) {
	st, done := p.state(s)
	if st == nil {
		return
	}
	defer done()

	st.mu.Lock()
	active := st.data
	st.mu.Unlock()
	if !active || st.hangingUp.Load() || len(packet.Buffer) == 0 {
		return
	}

	if packet.Binary {
		p.gw.RelayData(s, packet)
		return
	}
	p.log.Verb("Got a DataChannel message (%d bytes) on %q", len(packet.Buffer), packet.Label)
	reply := *packet
	reply.Buffer = append([]byte(dataPrefix), packet.Buffer...)
	p.gw.RelayData(s, &reply)
}

func (p *Plugin) DataReady(s *plugin.Session) {
	if st, done := p.state(s); st != nil {
		defer done()
		p.log.Verb("Data channel ready for %s", st.id)
	}
}

// SlowLink halves the video cap when the peer has trouble sending to us.
func (p *Plugin) SlowLink(s *plugin.Session, uplink, video bool) {
	st, done := p.state(s)
	if st == nil {
		return
	}
	defer done()

	st.mu.Lock()
	st.slowLinks++
	changed := video && !uplink
	if changed {
		if st.bitrate == 0 {
			st.bitrate = 512 * 1024
		}
		st.bitrate /= 2
		if st.bitrate < minBitrate {
			st.bitrate = minBitrate
		}
	}
	bitrate := st.bitrate
	st.mu.Unlock()

	if !changed {
		return
	}
	p.log.Warn("Slow link on %s, capping video at %d", st.id, bitrate)
	p.gw.SendREMB(s, bitrate)
	p.push(s, "", event{EchoTest: "event", Event: "slow_link", Bitrate: &bitrate}, nil)
}

func (p *Plugin) HangupMedia(s *plugin.Session) {
	st, done := p.state(s)
	if st == nil {
		return
	}
	defer done()
	if st.destroyed.Load() || st.hangingUp.Swap(true) {
		return
	}

	st.reset(p.cfg.MaxBitrate)
	p.log.Verb("Media hung up for %s", st.id)
	p.push(s, "", event{EchoTest: "event", Result: "done"}, nil)
	p.notify(s, map[string]any{"event": "hangup", "id": st.id})
}
