package rtc

import (
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"

	"screencast/internal/stream"
)

const rtpHeaderSize = 12

// packetizer splits one Annex-B access unit into RTP packets that share the
// frame's media-clock timestamp. The marker bit is set on the last packet of
// the frame.
type packetizer struct {
	mtu       uint16
	payloader codecs.H264Payloader
	sequencer rtp.Sequencer
}

func newPacketizer(mtu int) *packetizer {
	switch {
	case mtu <= rtpHeaderSize:
		mtu = DefaultMTU
	case mtu > MaxMTU:
		mtu = MaxMTU
	}
	return &packetizer{mtu: uint16(mtu), sequencer: rtp.NewRandomSequencer()}
}

func (p *packetizer) packetize(payload []byte, meta stream.FrameMeta) []*rtp.Packet {
	chunks := p.payloader.Payload(p.mtu-rtpHeaderSize, payload)
	packets := make([]*rtp.Packet, len(chunks))
	for i, chunk := range chunks {
		packets[i] = &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         i == len(chunks)-1,
				PayloadType:    meta.PayloadType,
				SequenceNumber: p.sequencer.NextSequenceNumber(),
				Timestamp:      meta.Timestamp,
			},
			Payload: chunk,
		}
	}
	return packets
}
