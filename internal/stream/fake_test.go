package stream

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

type sentFrame struct {
	payload []byte
	meta    FrameMeta
	err     error
}

type fakeSession struct {
	id     string
	events SessionEvents

	// sendHook, when set, runs before a send is recorded; a non-nil error
	// fails that send.
	sendHook func(n int, payload []byte) error

	mu         sync.Mutex
	attempts   []sentFrame
	closed     int
	answer     string
	offer      string
	candidates []ICECandidate
}

func (f *fakeSession) Send(payload []byte, meta FrameMeta) error {
	f.mu.Lock()
	n := len(f.attempts)
	hook := f.sendHook
	f.mu.Unlock()

	var err error
	if hook != nil {
		err = hook(n, payload)
	}
	cp := append([]byte(nil), payload...)
	f.mu.Lock()
	f.attempts = append(f.attempts, sentFrame{payload: cp, meta: meta, err: err})
	f.mu.Unlock()
	return err
}

func (f *fakeSession) CreateOffer(ctx context.Context) (string, error) {
	return "offer-" + f.id, nil
}

func (f *fakeSession) AcceptOffer(ctx context.Context, sdp string) (string, error) {
	f.mu.Lock()
	f.offer = sdp
	f.mu.Unlock()
	return "answer-" + f.id, nil
}

func (f *fakeSession) SetAnswer(sdp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answer = sdp
	return nil
}

func (f *fakeSession) AddICECandidate(c ICECandidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// delivered returns the payloads of successful sends, in order.
func (f *fakeSession) delivered() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for _, a := range f.attempts {
		if a.err == nil {
			out = append(out, a.payload)
		}
	}
	return out
}

func (f *fakeSession) sent() []sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentFrame(nil), f.attempts...)
}

func (f *fakeSession) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeTransport struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
	newErr   error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sessions: make(map[string]*fakeSession)}
}

func (t *fakeTransport) NewSession(viewerID string, events SessionEvents) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.newErr != nil {
		return nil, t.newErr
	}
	s := &fakeSession{id: viewerID, events: events}
	t.sessions[viewerID] = s
	return s, nil
}

func (t *fakeTransport) session(id string) *fakeSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[id]
}

var errSendBroken = errors.New("send broken")
