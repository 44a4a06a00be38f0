// Package rtc implements the per-viewer transport on top of pion/webrtc: one
// PeerConnection per viewer carrying a send-only H.264 track and a control
// data channel for remote input.
package rtc

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"github.com/pkg/errors"

	"screencast/internal/logging"
	"screencast/internal/stream"
)

const (
	// DefaultMTU keeps RTP packets below typical path MTUs once SRTP and
	// UDP/IP overhead are added.
	DefaultMTU = 1200
	// MaxMTU is the Ethernet MTU; larger RTP packets fragment at the IP layer.
	MaxMTU = 1500

	// ControlLabel names the data channel that carries remote input.
	ControlLabel = "control"

	h264Fmtp = "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f"
)

// Config configures the transport.
type Config struct {
	ICEServers []string
	MTU        int
	StreamID   string
	Logger     *slog.Logger
}

// Transport creates pion-backed viewer sessions. It implements
// stream.Transport.
type Transport struct {
	cfg Config
	api *webrtc.API
	log *slog.Logger
}

// NewTransport builds the shared media engine and interceptor chain (NACK
// responder, RTCP sender reports).
func NewTransport(cfg Config) (*Transport, error) {
	if cfg.MTU <= 0 {
		cfg.MTU = DefaultMTU
	}
	if cfg.StreamID == "" {
		cfg.StreamID = "screencast"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, errors.Wrap(err, "register codecs")
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, ir); err != nil {
		return nil, errors.Wrap(err, "register interceptors")
	}
	se := webrtc.SettingEngine{LoggerFactory: logging.PionFactory{Logger: logging.WithComponent(logger, "pion")}}
	return &Transport{
		cfg: cfg,
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(me),
			webrtc.WithInterceptorRegistry(ir),
			webrtc.WithSettingEngine(se),
		),
		log: logger,
	}, nil
}

// NewSession opens a PeerConnection for viewerID with its video track
// attached. Negotiation starts with CreateOffer or AcceptOffer.
func (t *Transport) NewSession(viewerID string, events stream.SessionEvents) (stream.Session, error) {
	var cfg webrtc.Configuration
	if len(t.cfg.ICEServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: t.cfg.ICEServers}}
	}
	pc, err := t.api.NewPeerConnection(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "new peer connection")
	}
	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{
		MimeType:    webrtc.MimeTypeH264,
		ClockRate:   stream.VideoClockRate,
		SDPFmtpLine: h264Fmtp,
	}, "video", t.cfg.StreamID)
	if err != nil {
		_ = pc.Close()
		return nil, errors.Wrap(err, "new video track")
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		_ = pc.Close()
		return nil, errors.Wrap(err, "add video track")
	}

	s := &session{
		id:         viewerID,
		pc:         pc,
		track:      track,
		sender:     sender,
		events:     events,
		packetizer: newPacketizer(t.cfg.MTU),
		log:        t.log.With("viewer", viewerID),
	}
	pc.OnConnectionStateChange(s.onConnectionState)
	pc.OnICECandidate(s.onICECandidate)
	pc.OnDataChannel(s.bindControl)
	go s.readRTCP()
	return s, nil
}

type session struct {
	id     string
	pc     *webrtc.PeerConnection
	track  *webrtc.TrackLocalStaticRTP
	sender *webrtc.RTPSender
	events stream.SessionEvents
	log    *slog.Logger

	// mu guards packetizer state (payloader and sequence numbers).
	mu         sync.Mutex
	packetizer *packetizer

	open   atomic.Bool
	closed atomic.Bool
}

// Send packetizes payload and writes the packets to the video track.
func (s *session) Send(payload []byte, meta stream.FrameMeta) error {
	if s.closed.Load() {
		return stream.ErrChannelClosed
	}
	if !s.open.Load() {
		return stream.ErrChannelNotReady
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pkt := range s.packetizer.packetize(payload, meta) {
		if err := s.track.WriteRTP(pkt); err != nil {
			return errors.Wrap(err, "write rtp")
		}
	}
	return nil
}

// CreateOffer opens the control data channel and returns a local offer.
// Local candidates trickle through OnCandidate.
func (s *session) CreateOffer(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dc, err := s.pc.CreateDataChannel(ControlLabel, nil)
	if err != nil {
		return "", errors.Wrap(err, "create control channel")
	}
	s.bindControl(dc)
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return "", errors.Wrap(err, "create offer")
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return "", errors.Wrap(err, "set local description")
	}
	return offer.SDP, nil
}

// AcceptOffer answers a viewer-created offer and waits for ICE gathering so
// the answer carries every local candidate.
func (s *session) AcceptOffer(ctx context.Context, sdp string) (string, error) {
	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return "", errors.Wrap(err, "set remote offer")
	}
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return "", errors.Wrap(err, "create answer")
	}
	gatherComplete := webrtc.GatheringCompletePromise(s.pc)
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return "", errors.Wrap(err, "set local description")
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), "ice gathering")
	}
	return s.pc.LocalDescription().SDP, nil
}

func (s *session) SetAnswer(sdp string) error {
	return errors.Wrap(
		s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}),
		"set remote answer")
}

func (s *session) AddICECandidate(c stream.ICECandidate) error {
	mid, index := c.SDPMid, c.SDPMLineIndex
	ci := webrtc.ICECandidateInit{Candidate: c.Candidate, SDPMLineIndex: &index}
	if mid != "" {
		ci.SDPMid = &mid
	}
	return errors.Wrap(s.pc.AddICECandidate(ci), "add ice candidate")
}

// Close tears down the PeerConnection. Repeated calls return nil.
func (s *session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.open.Store(false)
	return s.pc.Close()
}

func (s *session) onConnectionState(st webrtc.PeerConnectionState) {
	state := connState(st)
	s.log.Debug("peer connection state", "state", st.String())
	switch {
	case state == stream.ConnStateConnected:
		if !s.open.Swap(true) && s.events.OnOpen != nil {
			s.events.OnOpen()
		}
	case state.Terminal():
		if s.open.Swap(false) && s.events.OnClosed != nil {
			s.events.OnClosed()
		}
	}
	if s.events.OnStateChange != nil {
		s.events.OnStateChange(state)
	}
}

func (s *session) onICECandidate(c *webrtc.ICECandidate) {
	if c == nil || s.events.OnCandidate == nil {
		return
	}
	ci := c.ToJSON()
	out := stream.ICECandidate{Candidate: ci.Candidate}
	if ci.SDPMid != nil {
		out.SDPMid = *ci.SDPMid
	}
	if ci.SDPMLineIndex != nil {
		out.SDPMLineIndex = *ci.SDPMLineIndex
	}
	s.events.OnCandidate(out)
}

// bindControl forwards messages of the control channel, whichever side
// created it.
func (s *session) bindControl(dc *webrtc.DataChannel) {
	if dc.Label() != ControlLabel {
		s.log.Debug("ignoring data channel", "label", dc.Label())
		return
	}
	dc.OnOpen(func() {
		s.log.Debug("control channel open")
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if s.events.OnMessage != nil {
			s.events.OnMessage(msg.Data)
		}
	})
}

// readRTCP drains sender feedback so the interceptors keep running and
// surfaces key frame requests.
func (s *session) readRTCP() {
	for {
		pkts, _, err := s.sender.ReadRTCP()
		if err != nil {
			return
		}
		if wantsKeyFrame(pkts) && s.events.OnKeyFrameRequest != nil {
			s.events.OnKeyFrameRequest()
		}
	}
}

func connState(st webrtc.PeerConnectionState) stream.ConnState {
	switch st {
	case webrtc.PeerConnectionStateConnecting:
		return stream.ConnStateConnecting
	case webrtc.PeerConnectionStateConnected:
		return stream.ConnStateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return stream.ConnStateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return stream.ConnStateFailed
	case webrtc.PeerConnectionStateClosed:
		return stream.ConnStateClosed
	default:
		return stream.ConnStateNew
	}
}
