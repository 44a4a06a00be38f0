package stream

// VideoClockRate is the RTP clock rate for video.
const VideoClockRate = 90000

// MediaTimestamp converts an encoder presentation time in microseconds to the
// 90 kHz media clock. The division truncates and the result wraps like any
// RTP timestamp.
func MediaTimestamp(ptsMicros int64) uint32 {
	return uint32(ptsMicros * VideoClockRate / 1_000_000)
}

// QueuedFrame is one encoded access unit waiting for the sender loop.
type QueuedFrame struct {
	Payload   []byte
	Timestamp uint32
	PTS       int64
	KeyFrame  bool
	// Size is the length of the frame as submitted, before any codec
	// configuration was prepended.
	Size int
}
