package stream

import "sync/atomic"

// Metrics counts what happened to submitted frames. Diagnostics only; no
// decision in the pipeline reads them.
type Metrics struct {
	framesSubmitted  atomic.Uint64 // accepted into the queue
	framesDropped    atomic.Uint64 // rejected because the queue was full
	framesInvalid    atomic.Uint64 // empty payloads
	framesSent       atomic.Uint64 // per-viewer successful sends
	sendErrors       atomic.Uint64 // per-viewer failed sends
	keyFrameRequests atomic.Uint64 // PLI/FIR received from viewers
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"frames_submitted":  m.framesSubmitted.Load(),
		"frames_dropped":    m.framesDropped.Load(),
		"frames_invalid":    m.framesInvalid.Load(),
		"frames_sent":       m.framesSent.Load(),
		"send_errors":       m.sendErrors.Load(),
		"keyframe_requests": m.keyFrameRequests.Load(),
	}
}
