package stream

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// DefaultPayloadType is the dynamic RTP payload type announced for H.264.
const DefaultPayloadType = 96

// Options configures a Streamer.
type Options struct {
	// QueueCapacity bounds the frame queue; DefaultQueueCapacity when <= 0.
	QueueCapacity int
	PayloadType   uint8
	Transport     Transport
	Logger        *slog.Logger

	// OnMessage receives inbound control messages (remote input) per viewer.
	OnMessage func(viewerID string, data []byte)
	// OnKeyFrameRequest is called when a viewer asks for a key frame.
	OnKeyFrameRequest func(viewerID string)
}

// Streamer fans encoded H.264 frames out to every ready viewer. A producer
// calls SubmitCodecConfig and SubmitFrame from any goroutine; one sender
// goroutine drains the queue between Start and Stop.
type Streamer struct {
	opts    Options
	log     *slog.Logger
	config  codecConfig
	queue   *frameQueue
	viewers *registry
	metrics Metrics

	// ctl serializes Start, Stop and Close.
	ctl   sync.Mutex
	state atomic.Int32
	done  chan struct{}
}

// NewStreamer returns an idle streamer.
func NewStreamer(opts Options) *Streamer {
	if opts.PayloadType == 0 {
		opts.PayloadType = DefaultPayloadType
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Streamer{
		opts:    opts,
		log:     logger,
		queue:   newFrameQueue(opts.QueueCapacity),
		viewers: newRegistry(),
	}
}

// State returns the sender loop state.
func (s *Streamer) State() LoopState {
	return LoopState(s.state.Load())
}

// Streaming reports whether submitted frames are currently accepted.
func (s *Streamer) Streaming() bool {
	return s.State() == LoopRunning
}

// Start launches the sender loop. Calling Start while running does nothing.
func (s *Streamer) Start() {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	if s.done != nil {
		s.log.Debug("start ignored, sender already running")
		return
	}
	s.queue.reset()
	done := make(chan struct{})
	s.done = done
	s.state.Store(int32(LoopRunning))
	go s.run(done)
	s.log.Info("streaming started", "queue_capacity", s.queue.capacity())
}

// Stop signals the sender loop, waits for it to finish the frames already
// queued and clears the queue. Safe to call repeatedly.
func (s *Streamer) Stop() {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.stopLocked()
}

func (s *Streamer) stopLocked() {
	if done := s.done; done != nil {
		s.state.Store(int32(LoopDraining))
		s.queue.stop()
		<-done
		s.done = nil
		s.log.Info("streaming stopped")
	}
	s.state.Store(int32(LoopStopped))
	s.queue.clear()
}

// Close stops streaming, tears down every viewer and forgets the cached
// codec configuration.
func (s *Streamer) Close() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.stopLocked()
	var first error
	for _, v := range s.viewers.removeAll() {
		if err := v.release(); err != nil {
			s.log.Warn("close viewer", "viewer", v.id, "err", err)
			if first == nil {
				first = err
			}
		}
	}
	s.config.reset()
	return first
}

// SubmitCodecConfig replaces the cached decoder configuration that is
// prepended to every following key frame.
func (s *Streamer) SubmitCodecConfig(data []byte) error {
	if len(data) == 0 {
		s.log.Error("codec config rejected", "err", ErrEmptyPayload)
		return ErrEmptyPayload
	}
	s.config.store(data)
	s.log.Info("codec config stored", "size", len(data))
	return nil
}

// SubmitFrame queues one encoded access unit. It never blocks: when the queue
// is full the frame is dropped and nil is returned.
func (s *Streamer) SubmitFrame(data []byte, keyFrame bool, ptsMicros int64) error {
	if len(data) == 0 {
		s.metrics.framesInvalid.Add(1)
		s.log.Error("frame rejected", "err", ErrEmptyPayload, "keyframe", keyFrame)
		return ErrEmptyPayload
	}
	if !s.Streaming() {
		s.log.Debug("frame ignored, not streaming", "size", len(data))
		return ErrNotStreaming
	}
	payload, prefixed := s.config.assemble(data, keyFrame)
	f := QueuedFrame{
		Payload:   payload,
		Timestamp: MediaTimestamp(ptsMicros),
		PTS:       ptsMicros,
		KeyFrame:  keyFrame,
		Size:      len(data),
	}
	switch err := s.queue.push(f); {
	case errors.Is(err, ErrNotStreaming):
		s.log.Debug("frame ignored, stopping", "size", len(data))
		return ErrNotStreaming
	case err != nil:
		s.metrics.framesDropped.Add(1)
		s.log.Debug("queue full, frame dropped", "size", len(data), "keyframe", keyFrame, "pts", ptsMicros)
		return nil
	}
	s.metrics.framesSubmitted.Add(1)
	if keyFrame {
		s.log.Debug("key frame queued", "size", len(data), "config_prepended", prefixed)
	}
	return nil
}

// Stats is a diagnostic snapshot.
type Stats struct {
	State         string            `json:"state"`
	Queued        int               `json:"queued"`
	QueueCapacity int               `json:"queue_capacity"`
	Viewers       []ViewerInfo      `json:"viewers"`
	Counters      map[string]uint64 `json:"counters"`
}

func (s *Streamer) Stats() Stats {
	viewers := s.viewers.infos()
	counters := s.metrics.Snapshot()
	counters["viewers"] = uint64(len(viewers))
	return Stats{
		State:         s.State().String(),
		Queued:        s.queue.len(),
		QueueCapacity: s.queue.capacity(),
		Viewers:       viewers,
		Counters:      counters,
	}
}

// Metrics exposes the streamer counters.
func (s *Streamer) Metrics() *Metrics {
	return &s.metrics
}
