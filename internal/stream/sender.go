package stream

// LoopState is the state of the sender loop.
type LoopState int32

const (
	LoopIdle LoopState = iota
	LoopRunning
	LoopDraining
	LoopStopped
)

func (s LoopState) String() string {
	switch s {
	case LoopIdle:
		return "idle"
	case LoopRunning:
		return "running"
	case LoopDraining:
		return "draining"
	case LoopStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// run is the sender loop. It exits once stop was requested and every frame
// queued before that has been delivered.
func (s *Streamer) run(done chan struct{}) {
	defer close(done)
	for {
		f, ok := s.queue.next()
		if !ok {
			s.state.Store(int32(LoopStopped))
			return
		}
		s.broadcast(f)
	}
}

// broadcast hands f to every viewer that is ready at this moment. A failing
// viewer is logged and skipped.
func (s *Streamer) broadcast(f QueuedFrame) {
	meta := FrameMeta{
		Timestamp:   f.Timestamp,
		PayloadType: s.opts.PayloadType,
		KeyFrame:    f.KeyFrame,
	}
	for _, v := range s.viewers.ready() {
		if err := v.send(f.Payload, meta); err != nil {
			s.metrics.sendErrors.Add(1)
			s.log.Warn("send failed", "viewer", v.id, "size", len(f.Payload), "keyframe", f.KeyFrame, "err", err)
			continue
		}
		s.metrics.framesSent.Add(1)
	}
}
