package input

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeValidEvents(t *testing.T) {
	cases := map[string]Event{
		`{"type":"tap","x":0.5,"y":0.25}`: {Type: KindTap, X: 0.5, Y: 0.25},
		`{"type":"swipe","x":0,"y":0,"x2":1,"y2":1,"duration":300}`: {
			Type: KindSwipe, X2: 1, Y2: 1, DurationMs: 300,
		},
		`{"type":"key","key":"BACK"}`:   {Type: KindKey, Key: "BACK"},
		`{"type":"text","text":"hello"}`: {Type: KindText, Text: "hello"},
	}
	for raw, want := range cases {
		got, err := Decode([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestDecodeRejects(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"type":"wave"}`,
		`{"type":"tap","x":1.5,"y":0}`,
		`{"type":"swipe","x":0,"y":0,"x2":2,"y2":0}`,
		`{"type":"swipe","x":0,"y":0,"x2":1,"y2":1,"duration":-1}`,
		`{"type":"key"}`,
		`{"type":"text"}`,
	} {
		_, err := Decode([]byte(raw))
		assert.True(t, errors.Is(err, ErrInvalidEvent), raw)
	}
}

type recordingHandler struct {
	got []string
}

func (h *recordingHandler) HandleInput(viewerID string, ev Event) error {
	h.got = append(h.got, viewerID+":"+string(ev.Type))
	if ev.Type == KindKey {
		return errors.New("no keyboard")
	}
	return nil
}

func TestDispatcher(t *testing.T) {
	var buf bytes.Buffer
	h := &recordingHandler{}
	d := NewDispatcher(h, slog.New(slog.NewTextHandler(&buf, nil)))

	d.Dispatch("a", []byte(`{"type":"tap","x":0.1,"y":0.2}`))
	d.Dispatch("a", []byte(`garbage`))
	d.Dispatch("b", []byte(`{"type":"key","key":"HOME"}`))

	assert.Equal(t, []string{"a:tap", "b:key"}, h.got)
	assert.Contains(t, buf.String(), "input rejected")
	assert.Contains(t, buf.String(), "no keyboard")
}

func TestLogHandler(t *testing.T) {
	var buf bytes.Buffer
	h := LogHandler{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	require.NoError(t, h.HandleInput("a", Event{Type: KindTap, X: 0.5, Y: 0.5}))
	assert.Contains(t, buf.String(), "remote input")
	assert.NoError(t, LogHandler{}.HandleInput("a", Event{Type: KindTap}))
}
