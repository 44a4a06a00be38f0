package capture

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sps      = []byte{0x67, 0x42, 0xc0, 0x1f, 0xda, 0x01}
	pps      = []byte{0x68, 0xce, 0x3c, 0x80}
	idr      = []byte{0x65, 0x88, 0x84, 0x21, 0xa0}
	idrTail  = []byte{0x65, 0x12, 0x34, 0x56}
	slice1   = []byte{0x41, 0x9a, 0x02, 0x03}
	slice2   = []byte{0x41, 0x9b, 0x04, 0x05}
	aud      = []byte{0x09, 0xf0}
	sei      = []byte{0x06, 0x05, 0x11, 0x22}
	otherSPS = []byte{0x67, 0x42, 0xc0, 0x28, 0xda, 0x02}
)

func annexB(nals ...[]byte) []byte {
	var b []byte
	for _, n := range nals {
		b = append(b, annexBStartCode...)
		b = append(b, n...)
	}
	return b
}

func demuxAll(t *testing.T, stream []byte) []Unit {
	t.Helper()
	d, err := NewDemuxer(bytes.NewReader(stream))
	require.NoError(t, err)
	var out []Unit
	for {
		u, err := d.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, u)
	}
}

func TestDemuxerSplitsConfigAndFrames(t *testing.T) {
	units := demuxAll(t, annexB(sps, pps, idr, slice1, slice2))
	require.Len(t, units, 4)

	assert.True(t, units[0].Config)
	assert.Equal(t, annexB(sps, pps), units[0].Data)

	assert.True(t, units[1].KeyFrame)
	assert.Equal(t, annexB(idr), units[1].Data)

	assert.False(t, units[2].KeyFrame)
	assert.Equal(t, annexB(slice1), units[2].Data)
	assert.Equal(t, annexB(slice2), units[3].Data)
}

func TestDemuxerKeepsSlicesOfOnePicture(t *testing.T) {
	units := demuxAll(t, annexB(sps, pps, idr, idrTail, slice1))
	require.Len(t, units, 3)
	assert.Equal(t, annexB(idr, idrTail), units[1].Data)
	assert.True(t, units[1].KeyFrame)
	assert.Equal(t, annexB(slice1), units[2].Data)
}

func TestDemuxerUsesDelimiters(t *testing.T) {
	units := demuxAll(t, annexB(aud, sps, pps, sei, idr, aud, slice1))
	require.Len(t, units, 3)
	assert.True(t, units[0].Config)
	assert.Equal(t, annexB(idr), units[1].Data, "sei is stripped")
	assert.Equal(t, annexB(slice1), units[2].Data)
}

func TestDemuxerReportsConfigChangesOnly(t *testing.T) {
	units := demuxAll(t, annexB(
		sps, pps, idr, slice1,
		sps, pps, idr, // repeated, unchanged
		otherSPS, pps, idr,
	))
	var configs [][]byte
	frames := 0
	for _, u := range units {
		if u.Config {
			configs = append(configs, u.Data)
		} else {
			frames++
		}
	}
	assert.Equal(t, 4, frames)
	require.Len(t, configs, 2)
	assert.Equal(t, annexB(sps, pps), configs[0])
	assert.Equal(t, annexB(otherSPS, pps), configs[1])
}

func TestDemuxerWaitsForCompleteConfig(t *testing.T) {
	units := demuxAll(t, annexB(sps, idr, pps, slice1))
	require.Len(t, units, 3)
	assert.False(t, units[0].Config)
	assert.True(t, units[1].Config)
	assert.Equal(t, annexB(slice1), units[2].Data)
}

func TestDemuxerEmptyInput(t *testing.T) {
	d, err := NewDemuxer(bytes.NewReader(nil))
	require.NoError(t, err)
	_, err = d.Next()
	assert.Error(t, err)
}
