//go:build janus_testgateway

package rtcp

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	prtcp "github.com/pion/rtcp"
)

func marshal(t *testing.T, pkts ...prtcp.Packet) []byte {
	t.Helper()
	b, err := prtcp.Marshal(pkts)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	return b
}

func TestInspect(t *testing.T) {
	pli := marshal(t, &prtcp.PictureLossIndication{SenderSSRC: 11, MediaSSRC: 22})
	if !HasPLI(pli) || HasFIR(pli) || HasBYE(pli) {
		t.Error("Expected only a PLI")
	}
	if SenderSSRC(pli) != 11 || ReceiverSSRC(pli) != 22 {
		t.Errorf("Unexpected SSRCs %d %d", SenderSSRC(pli), ReceiverSSRC(pli))
	}

	bye := marshal(t, &prtcp.ReceiverReport{SSRC: 5}, &prtcp.Goodbye{Sources: []uint32{5}})
	if !HasBYE(bye) || HasPLI(bye) {
		t.Error("Expected a BYE")
	}
	if SenderSSRC(bye) != 5 {
		t.Errorf("Expected sender 5, got %d", SenderSSRC(bye))
	}

	if HasPLI(nil) || SenderSSRC([]byte{1, 2}) != 0 {
		t.Error("Expected nothing found in an invalid packet")
	}
}

func TestREMB(t *testing.T) {
	pkt := marshal(t, &prtcp.ReceiverEstimatedMaximumBitrate{SenderSSRC: 1, Bitrate: 500000, SSRCs: []uint32{9}})
	if bitrate, ok := REMB(pkt); !ok || bitrate != 500000 {
		t.Errorf("Expected 500000, got %d %v", bitrate, ok)
	}
	if ReceiverSSRC(pkt) != 9 {
		t.Errorf("Expected media SSRC 9, got %d", ReceiverSSRC(pkt))
	}

	if err := CapREMB(pkt, 128000); err != nil {
		t.Fatalf("CapREMB failed: %v", err)
	}
	if bitrate, _ := REMB(pkt); bitrate != 128000 {
		t.Errorf("Expected the cap applied, got %d", bitrate)
	}
	if err := CapREMB(pkt, 256000); err != nil {
		t.Fatalf("CapREMB failed: %v", err)
	}
	if bitrate, _ := REMB(pkt); bitrate != 128000 {
		t.Errorf("A higher cap must not raise the estimate, got %d", bitrate)
	}

	if _, ok := REMB(marshal(t, &prtcp.PictureLossIndication{})); ok {
		t.Error("Expected no REMB")
	}
}

func TestNACKs(t *testing.T) {
	nack := &prtcp.TransportLayerNack{SenderSSRC: 1, MediaSSRC: 2, Nacks: []prtcp.NackPair{{PacketID: 100, LostPackets: 0b101}}}
	pkt := marshal(t, &prtcp.ReceiverReport{SSRC: 1}, nack)

	if diff := cmp.Diff([]uint16{100, 101, 103}, NACKs(pkt)); diff != "" {
		t.Errorf("NACKs mismatch (-want +got):\n%s", diff)
	}

	stripped := RemoveNACKs(pkt)
	if len(stripped) >= len(pkt) {
		t.Fatalf("Expected a shorter packet, got %d of %d bytes", len(stripped), len(pkt))
	}
	if NACKs(stripped) != nil {
		t.Error("Expected the NACKs removed")
	}
	if SenderSSRC(stripped) != 1 {
		t.Error("Expected the receiver report kept")
	}
}

func TestGenerate(t *testing.T) {
	var seq int32 = 7
	fir := FIR(&seq)
	if seq != 8 || len(fir) != FIRSize || !HasFIR(fir) {
		t.Fatalf("Unexpected FIR %x with seq %d", fir, seq)
	}
	pkts, err := prtcp.Unmarshal(fir)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got := pkts[0].(*prtcp.FullIntraRequest).FIR[0].SequenceNumber; got != 8 {
		t.Errorf("Expected sequence 8 on the wire, got %d", got)
	}

	if pli := PLI(); len(pli) != PLISize || !HasPLI(pli) {
		t.Errorf("Unexpected PLI %x", pli)
	}

	remb := REMBPacket(256000)
	if len(remb) != REMBSize {
		t.Fatalf("Expected %d bytes, got %d", REMBSize, len(remb))
	}
	if bitrate, ok := REMB(remb); !ok || bitrate != 256000 {
		t.Errorf("Expected 256000, got %d", bitrate)
	}
}
