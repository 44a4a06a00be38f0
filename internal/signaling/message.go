package signaling

import "screencast/internal/stream"

// Message types exchanged with viewers.
const (
	TypeWelcome   = "welcome"
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"
	TypeError     = "error"
)

// Message is the JSON envelope of every signaling frame. An answer carries
// SDP; a candidate carries Candidate (nil or empty marks end of candidates).
type Message struct {
	Type      string               `json:"type"`
	ClientID  string               `json:"clientId,omitempty"`
	SDP       string               `json:"sdp,omitempty"`
	Candidate *stream.ICECandidate `json:"candidate,omitempty"`
	Message   string               `json:"message,omitempty"`
}
