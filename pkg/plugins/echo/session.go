package echo

import (
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
)

// streamStats counts the RTP packets seen on one medium.
type streamStats struct {
	Packets uint64 `json:"packets"`
	Bytes   uint64 `json:"bytes"`
	Lost    uint64 `json:"lost"`
	SSRC    uint32 `json:"ssrc"`

	lastSeq uint16
	started bool
}

// add accounts for one packet. Lost counts the sequence numbers skipped by
// forward jumps; reordered and duplicate packets leave it alone.
func (st *streamStats) add(buf []byte) error {
	var h rtp.Header
	n, err := h.Unmarshal(buf)
	if err != nil {
		return err
	}
	if !st.started || h.SSRC != st.SSRC {
		st.started = true
		st.SSRC = h.SSRC
		st.lastSeq = h.SequenceNumber
	} else if gap := h.SequenceNumber - st.lastSeq; gap > 0 && gap < 0x8000 {
		st.Lost += uint64(gap - 1)
		st.lastSeq = h.SequenceNumber
	}
	st.Packets++
	st.Bytes += uint64(len(buf) - n)
	return nil
}

type echoSession struct {
	id string

	mu        sync.Mutex
	audio     bool
	video     bool
	data      bool
	bitrate   uint32
	lastREMB  uint32
	slowLinks int
	firSeq    int32
	audioRTP  streamStats
	videoRTP  streamStats

	hangingUp atomic.Bool
	destroyed atomic.Bool
}

func newEchoSession(id string, bitrate uint32) *echoSession {
	st := &echoSession{id: id}
	st.reset(bitrate)
	return st
}

// reset restores the settings a fresh peer connection starts with.
func (st *echoSession) reset(bitrate uint32) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.audio, st.video, st.data = true, true, true
	st.bitrate = bitrate
	st.lastREMB = 0
	st.slowLinks = 0
	st.audioRTP = streamStats{}
	st.videoRTP = streamStats{}
}

type snapshot struct {
	ID          string      `json:"id"`
	AudioActive bool        `json:"audio_active"`
	VideoActive bool        `json:"video_active"`
	DataActive  bool        `json:"data_active"`
	Bitrate     uint32      `json:"bitrate"`
	PeerREMB    uint32      `json:"peer_remb"`
	SlowLinks   int         `json:"slowlink_count"`
	HangingUp   bool        `json:"hangingup"`
	Audio       streamStats `json:"audio"`
	Video       streamStats `json:"video"`
}

func (st *echoSession) snapshot() snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return snapshot{
		ID:          st.id,
		AudioActive: st.audio,
		VideoActive: st.video,
		DataActive:  st.data,
		Bitrate:     st.bitrate,
		PeerREMB:    st.lastREMB,
		SlowLinks:   st.slowLinks,
		HangingUp:   st.hangingUp.Load(),
		Audio:       st.audioRTP,
		Video:       st.videoRTP,
	}
}
