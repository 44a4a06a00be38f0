package rtc

import (
	"context"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screencast/internal/stream"
)

func TestSessionCreateOffer(t *testing.T) {
	tr, err := NewTransport(Config{})
	require.NoError(t, err)

	sess, err := tr.NewSession("v1", stream.SessionEvents{})
	require.NoError(t, err)
	defer sess.Close()

	offer, err := sess.CreateOffer(context.Background())
	require.NoError(t, err)
	assert.Contains(t, offer, "m=video")
	assert.Contains(t, offer, "H264")
	assert.Contains(t, offer, "m=application")

	assert.ErrorIs(t, sess.Send([]byte{0, 0, 0, 1, 0x41}, stream.FrameMeta{}), stream.ErrChannelNotReady)
}

func TestSessionAcceptOffer(t *testing.T) {
	tr, err := NewTransport(Config{})
	require.NoError(t, err)
	sess, err := tr.NewSession("v1", stream.SessionEvents{})
	require.NoError(t, err)
	defer sess.Close()

	viewer, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer viewer.Close()
	_, err = viewer.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	require.NoError(t, err)
	offer, err := viewer.CreateOffer(nil)
	require.NoError(t, err)
	require.NoError(t, viewer.SetLocalDescription(offer))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	answer, err := sess.AcceptOffer(ctx, offer.SDP)
	require.NoError(t, err)
	assert.Contains(t, answer, "H264")
	require.NoError(t, viewer.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}))
}

func TestSessionRejectsGarbage(t *testing.T) {
	tr, err := NewTransport(Config{})
	require.NoError(t, err)
	sess, err := tr.NewSession("v1", stream.SessionEvents{})
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.AcceptOffer(context.Background(), "not sdp")
	assert.Error(t, err)
	assert.Error(t, sess.SetAnswer("not sdp"))
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	tr, err := NewTransport(Config{MTU: 1000})
	require.NoError(t, err)
	sess, err := tr.NewSession("v1", stream.SessionEvents{})
	require.NoError(t, err)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
	assert.ErrorIs(t, sess.Send([]byte{0, 0, 0, 1, 0x41}, stream.FrameMeta{}), stream.ErrChannelClosed)
}
