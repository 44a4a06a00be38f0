package stream

import "sync"

// codecConfig caches the latest out-of-band decoder configuration (SPS/PPS).
// The stored slice is replaced wholesale and never mutated, so readers may
// keep the slice they loaded.
type codecConfig struct {
	mu   sync.RWMutex
	data []byte
}

func (c *codecConfig) store(b []byte) {
	cp := make([]byte, len(b))
	copy(cp, b)
	c.mu.Lock()
	c.data = cp
	c.mu.Unlock()
}

func (c *codecConfig) load() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data
}

func (c *codecConfig) reset() {
	c.mu.Lock()
	c.data = nil
	c.mu.Unlock()
}

// assemble returns a private copy of frame, prefixed with the cached
// configuration when frame is a key frame and a configuration is known.
func (c *codecConfig) assemble(frame []byte, keyFrame bool) (payload []byte, prefixed bool) {
	var cfg []byte
	if keyFrame {
		cfg = c.load()
	}
	payload = make([]byte, len(cfg)+len(frame))
	n := copy(payload, cfg)
	copy(payload[n:], frame)
	return payload, len(cfg) > 0
}
