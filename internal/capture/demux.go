// Package capture produces H.264 access units and hands them to a Sink.
package capture

import (
	"bytes"
	"io"

	"github.com/pion/webrtc/v3/pkg/media/h264reader"
	"github.com/pkg/errors"
)

var annexBStartCode = []byte{0x00, 0x00, 0x00, 0x01}

// maxAccessUnit bounds a pending access unit when the stream never signals a
// picture boundary.
const maxAccessUnit = 4 << 20

// Unit is one demuxed piece of the elementary stream. Config units carry
// SPS+PPS, everything else is a full access unit. Both are Annex B framed.
type Unit struct {
	Config   bool
	KeyFrame bool
	Data     []byte
}

// Demuxer splits an Annex B byte stream into codec config and access units.
// SEI units never reach it: the h264 reader discards them.
type Demuxer struct {
	r *h264reader.H264Reader

	sps, pps    []byte
	configDirty bool

	pending    []byte
	pendingKey bool
	pendingVCL bool

	ready []Unit
	eof   bool
}

func NewDemuxer(r io.Reader) (*Demuxer, error) {
	hr, err := h264reader.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "h264 reader")
	}
	return &Demuxer{r: hr}, nil
}

// Next returns the next unit, or io.EOF once the stream is exhausted.
func (d *Demuxer) Next() (Unit, error) {
	for len(d.ready) == 0 {
		if d.eof {
			return Unit{}, io.EOF
		}
		nal, err := d.r.NextNAL()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return Unit{}, errors.Wrap(err, "read nal")
			}
			d.eof = true
			d.flush()
			continue
		}
		d.push(nal)
	}
	u := d.ready[0]
	d.ready = d.ready[1:]
	return u, nil
}

func (d *Demuxer) push(nal *h264reader.NAL) {
	if len(nal.Data) == 0 {
		return
	}
	switch nal.UnitType {
	case h264reader.NalUnitTypeSPS:
		d.flush()
		if !bytes.Equal(d.sps, nal.Data) {
			d.sps = append([]byte(nil), nal.Data...)
			d.configDirty = true
		}
		return
	case h264reader.NalUnitTypePPS:
		d.flush()
		if !bytes.Equal(d.pps, nal.Data) {
			d.pps = append([]byte(nil), nal.Data...)
			d.configDirty = true
		}
		return
	case h264reader.NalUnitTypeAUD:
		d.flush()
		return
	case h264reader.NalUnitTypeCodedSliceIdr, h264reader.NalUnitTypeCodedSliceNonIdr:
		// first_mb_in_slice == 0 is coded as a single 1 bit.
		if d.pendingVCL && len(nal.Data) > 1 && nal.Data[1]&0x80 != 0 {
			d.flush()
		}
		d.emitConfig()
		d.pendingVCL = true
		if nal.UnitType == h264reader.NalUnitTypeCodedSliceIdr {
			d.pendingKey = true
		}
	}
	d.pending = append(d.pending, annexBStartCode...)
	d.pending = append(d.pending, nal.Data...)
	if len(d.pending) > maxAccessUnit {
		d.flush()
	}
}

func (d *Demuxer) emitConfig() {
	if !d.configDirty || d.sps == nil || d.pps == nil {
		return
	}
	buf := make([]byte, 0, len(d.sps)+len(d.pps)+2*len(annexBStartCode))
	buf = append(buf, annexBStartCode...)
	buf = append(buf, d.sps...)
	buf = append(buf, annexBStartCode...)
	buf = append(buf, d.pps...)
	d.ready = append(d.ready, Unit{Config: true, Data: buf})
	d.configDirty = false
}

func (d *Demuxer) flush() {
	if d.pendingVCL {
		d.ready = append(d.ready, Unit{KeyFrame: d.pendingKey, Data: d.pending})
	}
	d.pending = nil
	d.pendingKey = false
	d.pendingVCL = false
}
