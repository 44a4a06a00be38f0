package stream

import (
	"context"

	"github.com/pkg/errors"
)

// NewConnection registers viewerID and creates its session. onCandidate, when
// not nil, receives local ICE candidates to trickle to the viewer.
//
// Transport callbacks run on transport goroutines and touch the registry
// directly: open and close flip the viewer state atomically, a terminal
// connection state removes the entry under the registry lock and releases
// the session. A send already in flight for a removed viewer fails and is
// counted as a send error.
func (s *Streamer) NewConnection(viewerID string, onCandidate func(ICECandidate)) error {
	if viewerID == "" {
		s.log.Warn("new connection rejected", "err", ErrInvalidViewerID)
		return ErrInvalidViewerID
	}
	if s.opts.Transport == nil {
		s.log.Error("new connection rejected", "viewer", viewerID, "err", ErrNoTransport)
		return ErrNoTransport
	}
	v := newViewer(viewerID)
	if !s.viewers.insert(v) {
		s.log.Warn("new connection rejected", "viewer", viewerID, "err", ErrViewerExists)
		return errors.Wrapf(ErrViewerExists, "viewer %s", viewerID)
	}

	sess, err := s.opts.Transport.NewSession(viewerID, s.sessionEvents(v, onCandidate))
	if err != nil {
		s.viewers.remove(viewerID, v)
		s.log.Error("create session", "viewer", viewerID, "err", err)
		return errors.Wrapf(err, "create session for viewer %s", viewerID)
	}
	if !v.attach(sess) {
		// A terminal state arrived before the session was handed back.
		_ = sess.Close()
		return errors.Wrapf(ErrViewerNotFound, "viewer %s closed during setup", viewerID)
	}
	s.log.Info("viewer registered", "viewer", viewerID, "viewers", s.viewers.len())
	return nil
}

func (s *Streamer) sessionEvents(v *viewer, onCandidate func(ICECandidate)) SessionEvents {
	return SessionEvents{
		OnOpen: func() {
			if v.markReady() {
				s.log.Info("viewer ready", "viewer", v.id)
			}
		},
		OnClosed: func() {
			v.markClosed()
			s.log.Info("viewer channel closed", "viewer", v.id)
		},
		OnStateChange: func(state ConnState) {
			s.log.Debug("viewer connection state", "viewer", v.id, "state", state.String())
			if state.Terminal() {
				s.dropViewer(v, state.String())
			}
		},
		OnMessage: func(data []byte) {
			if s.opts.OnMessage != nil {
				s.opts.OnMessage(v.id, data)
			}
		},
		OnCandidate: func(c ICECandidate) {
			if onCandidate != nil {
				onCandidate(c)
			}
		},
		OnKeyFrameRequest: func() {
			s.metrics.keyFrameRequests.Add(1)
			s.log.Debug("key frame requested", "viewer", v.id)
			if s.opts.OnKeyFrameRequest != nil {
				s.opts.OnKeyFrameRequest(v.id)
			}
		},
	}
}

// dropViewer removes v from the registry (if it is still the entry for its
// id) and closes its session. Repeated calls are harmless.
func (s *Streamer) dropViewer(v *viewer, reason string) {
	if _, ok := s.viewers.remove(v.id, v); ok {
		s.log.Info("viewer removed", "viewer", v.id, "reason", reason, "viewers", s.viewers.len())
	}
	if err := v.release(); err != nil {
		s.log.Warn("close viewer session", "viewer", v.id, "err", err)
	}
}

// lookup resolves viewerID to a live session or logs why it cannot.
func (s *Streamer) lookup(op, viewerID string) (Session, error) {
	v, ok := s.viewers.get(viewerID)
	if !ok {
		s.log.Warn(op+" rejected", "viewer", viewerID, "err", ErrViewerNotFound)
		return nil, errors.Wrapf(ErrViewerNotFound, "%s: viewer %s", op, viewerID)
	}
	sess := v.sessionRef()
	if sess == nil {
		s.log.Warn(op+" rejected", "viewer", viewerID, "err", ErrChannelNotReady)
		return nil, errors.Wrapf(ErrChannelNotReady, "%s: viewer %s", op, viewerID)
	}
	return sess, nil
}

// CreateOffer asks the viewer's session for a local offer.
func (s *Streamer) CreateOffer(ctx context.Context, viewerID string) (string, error) {
	sess, err := s.lookup("create offer", viewerID)
	if err != nil {
		return "", err
	}
	offer, err := sess.CreateOffer(ctx)
	if err != nil {
		return "", errors.Wrapf(err, "create offer for viewer %s", viewerID)
	}
	return offer, nil
}

// HandleOffer applies a viewer-created offer and returns the answer.
func (s *Streamer) HandleOffer(ctx context.Context, viewerID, sdp string) (string, error) {
	sess, err := s.lookup("handle offer", viewerID)
	if err != nil {
		return "", err
	}
	answer, err := sess.AcceptOffer(ctx, sdp)
	if err != nil {
		return "", errors.Wrapf(err, "accept offer from viewer %s", viewerID)
	}
	return answer, nil
}

// HandleAnswer routes a remote answer to the viewer's session.
func (s *Streamer) HandleAnswer(viewerID, sdp string) error {
	sess, err := s.lookup("handle answer", viewerID)
	if err != nil {
		return err
	}
	return errors.Wrapf(sess.SetAnswer(sdp), "set answer for viewer %s", viewerID)
}

// HandleICECandidate routes a remote candidate to the viewer's session.
func (s *Streamer) HandleICECandidate(viewerID string, c ICECandidate) error {
	sess, err := s.lookup("handle candidate", viewerID)
	if err != nil {
		return err
	}
	return errors.Wrapf(sess.AddICECandidate(c), "add candidate for viewer %s", viewerID)
}

// CloseConnection removes viewerID and closes its session.
func (s *Streamer) CloseConnection(viewerID string) error {
	v, ok := s.viewers.remove(viewerID, nil)
	if !ok {
		s.log.Debug("close connection: unknown viewer", "viewer", viewerID)
		return errors.Wrapf(ErrViewerNotFound, "close: viewer %s", viewerID)
	}
	s.log.Info("viewer removed", "viewer", viewerID, "reason", "closed by request", "viewers", s.viewers.len())
	return errors.Wrapf(v.release(), "close viewer %s", viewerID)
}

// Viewers lists the registered viewers ordered by id.
func (s *Streamer) Viewers() []ViewerInfo {
	return s.viewers.infos()
}
