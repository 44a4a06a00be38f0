package stream

import "context"

// ConnState mirrors the connection states reported by the transport layer.
type ConnState int

const (
	ConnStateNew ConnState = iota
	ConnStateConnecting
	ConnStateConnected
	ConnStateDisconnected
	ConnStateFailed
	ConnStateClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnStateNew:
		return "new"
	case ConnStateConnecting:
		return "connecting"
	case ConnStateConnected:
		return "connected"
	case ConnStateDisconnected:
		return "disconnected"
	case ConnStateFailed:
		return "failed"
	case ConnStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether a viewer in this state must leave the registry.
func (s ConnState) Terminal() bool {
	return s == ConnStateDisconnected || s == ConnStateFailed || s == ConnStateClosed
}

// FrameMeta travels with every payload handed to Session.Send.
type FrameMeta struct {
	// Timestamp is in the 90 kHz media clock.
	Timestamp   uint32
	PayloadType uint8
	KeyFrame    bool
}

// ICECandidate is the signaling form of a trickled candidate.
type ICECandidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}

// SessionEvents are invoked by the transport, possibly from its own
// goroutines. Any field may be nil.
type SessionEvents struct {
	OnOpen            func()
	OnClosed          func()
	OnMessage         func(data []byte)
	OnStateChange     func(state ConnState)
	OnCandidate       func(c ICECandidate)
	OnKeyFrameRequest func()
}

// Session is the per-viewer outbound channel owned by a registry entry.
// Send must not retain or modify payload after it returns; the same slice is
// handed to every viewer.
type Session interface {
	Send(payload []byte, meta FrameMeta) error
	CreateOffer(ctx context.Context) (string, error)
	AcceptOffer(ctx context.Context, sdp string) (string, error)
	SetAnswer(sdp string) error
	AddICECandidate(c ICECandidate) error
	Close() error
}

// Transport creates sessions for new viewers.
type Transport interface {
	NewSession(viewerID string, events SessionEvents) (Session, error)
}
