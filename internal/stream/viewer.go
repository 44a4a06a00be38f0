package stream

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ViewerState is the lifecycle of a registered viewer.
type ViewerState int32

const (
	ViewerConnecting ViewerState = iota
	ViewerReady
	ViewerClosed
)

func (s ViewerState) String() string {
	switch s {
	case ViewerConnecting:
		return "connecting"
	case ViewerReady:
		return "ready"
	case ViewerClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ViewerInfo is a point-in-time view of a registry entry.
type ViewerInfo struct {
	ID        string      `json:"id"`
	State     ViewerState `json:"-"`
	StateName string      `json:"state"`
	Since     time.Time   `json:"since"`
}

type viewer struct {
	id      string
	created time.Time
	state   atomic.Int32

	// mu guards session and released. Transport callbacks, the sender loop
	// and the lifecycle controller all reach the session through it.
	mu       sync.Mutex
	session  Session
	released bool
}

func newViewer(id string) *viewer {
	return &viewer{id: id, created: time.Now()}
}

func (v *viewer) State() ViewerState {
	return ViewerState(v.state.Load())
}

// markReady moves a connecting viewer to Ready. A closed viewer stays closed.
func (v *viewer) markReady() bool {
	return v.state.CompareAndSwap(int32(ViewerConnecting), int32(ViewerReady))
}

func (v *viewer) markClosed() {
	v.state.Store(int32(ViewerClosed))
}

// attach binds the session created for this viewer. It fails when the viewer
// was released while the session was being created.
func (v *viewer) attach(s Session) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.released {
		return false
	}
	v.session = s
	return true
}

func (v *viewer) sessionRef() Session {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.released {
		return nil
	}
	return v.session
}

func (v *viewer) send(payload []byte, meta FrameMeta) error {
	if v.State() != ViewerReady {
		return ErrChannelNotReady
	}
	s := v.sessionRef()
	if s == nil {
		return ErrChannelClosed
	}
	return s.Send(payload, meta)
}

// release closes the session exactly once.
func (v *viewer) release() error {
	v.mu.Lock()
	if v.released {
		v.mu.Unlock()
		return nil
	}
	v.released = true
	s := v.session
	v.mu.Unlock()

	v.markClosed()
	if s == nil {
		return nil
	}
	return s.Close()
}

func (v *viewer) info() ViewerInfo {
	st := v.State()
	return ViewerInfo{ID: v.id, State: st, StateName: st.String(), Since: v.created}
}

// registry maps viewer ids to their entries.
type registry struct {
	mu      sync.RWMutex
	viewers map[string]*viewer
}

func newRegistry() *registry {
	return &registry{viewers: make(map[string]*viewer)}
}

// insert adds v unless its id is taken.
func (r *registry) insert(v *viewer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.viewers[v.id]; ok {
		return false
	}
	r.viewers[v.id] = v
	return true
}

func (r *registry) get(id string) (*viewer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.viewers[id]
	return v, ok
}

// remove deletes the entry for id if it still belongs to v. A nil v removes
// whatever is registered under id.
func (r *registry) remove(id string, v *viewer) (*viewer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.viewers[id]
	if !ok || (v != nil && cur != v) {
		return nil, false
	}
	delete(r.viewers, id)
	return cur, true
}

// removeAll empties the registry and returns what it held.
func (r *registry) removeAll() []*viewer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*viewer, 0, len(r.viewers))
	for id, v := range r.viewers {
		out = append(out, v)
		delete(r.viewers, id)
	}
	return out
}

// ready snapshots the viewers that may receive frames right now.
func (r *registry) ready() []*viewer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*viewer, 0, len(r.viewers))
	for _, v := range r.viewers {
		if v.State() == ViewerReady {
			out = append(out, v)
		}
	}
	return out
}

func (r *registry) infos() []ViewerInfo {
	r.mu.RLock()
	out := make([]ViewerInfo, 0, len(r.viewers))
	for _, v := range r.viewers {
		out = append(out, v.info())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.viewers)
}
