package capture

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"screencast/internal/stream"
)

// SourceTestPattern selects ffmpeg's synthetic test source instead of a file.
const SourceTestPattern = "testsrc"

// Sink receives demuxed H.264. *stream.Streamer satisfies it.
type Sink interface {
	SubmitCodecConfig(data []byte) error
	SubmitFrame(data []byte, keyFrame bool, ptsMicros int64) error
}

// Config defines how ffmpeg produces the H.264 elementary stream.
type Config struct {
	FFmpeg  string
	Input   string
	Width   int
	Height  int
	FPS     int
	Bitrate string
	Logger  *slog.Logger
}

// Producer runs an ffmpeg encoder and feeds its output into a Sink.
type Producer struct {
	cfg  Config
	sink Sink
	log  *slog.Logger
}

func NewProducer(cfg Config, sink Sink) *Producer {
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = "ffmpeg"
	}
	if cfg.Input == "" {
		cfg.Input = SourceTestPattern
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if cfg.Width <= 0 {
		cfg.Width = 1280
	}
	if cfg.Height <= 0 {
		cfg.Height = 720
	}
	if cfg.Bitrate == "" {
		cfg.Bitrate = "2M"
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Producer{cfg: cfg, sink: sink, log: log}
}

// Args returns the ffmpeg command line, without the binary.
func (p *Producer) Args() []string {
	var args []string
	if p.cfg.Input == SourceTestPattern {
		args = append(args,
			"-re",
			"-f", "lavfi",
			"-i", "testsrc=size="+strconv.Itoa(p.cfg.Width)+"x"+strconv.Itoa(p.cfg.Height)+":rate="+strconv.Itoa(p.cfg.FPS),
		)
	} else {
		args = append(args,
			"-re",
			"-stream_loop", "-1",
			"-i", p.cfg.Input,
			"-vf", "scale="+strconv.Itoa(p.cfg.Width)+":"+strconv.Itoa(p.cfg.Height)+",fps="+strconv.Itoa(p.cfg.FPS),
		)
	}
	return append(args,
		"-an",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-tune", "zerolatency",
		"-profile:v", "baseline",
		"-pix_fmt", "yuv420p",
		"-g", strconv.Itoa(p.cfg.FPS*2),
		"-bf", "0",
		"-b:v", p.cfg.Bitrate,
		"-f", "h264",
		"-",
	)
}

// Run starts ffmpeg and feeds the sink until the stream ends or ctx is done.
// Cancellation is not an error.
func (p *Producer) Run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, p.cfg.FFmpeg, p.Args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "ffmpeg stdout")
	}
	stderr := &tailBuffer{limit: 4 << 10}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "start %s", p.cfg.FFmpeg)
	}
	p.log.Info("capture started", "input", p.cfg.Input, "size", strconv.Itoa(p.cfg.Width)+"x"+strconv.Itoa(p.cfg.Height), "fps", p.cfg.FPS)

	feedErr := p.Feed(ctx, stdout)
	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		p.log.Info("capture stopped")
		return nil
	}
	if feedErr != nil {
		return feedErr
	}
	if waitErr != nil {
		return errors.Wrapf(waitErr, "ffmpeg exited: %s", stderr.String())
	}
	p.log.Info("capture finished")
	return nil
}

// Feed demuxes r and submits every unit to the sink. Sink rejections are
// logged and skipped; only read errors end the feed early.
func (p *Producer) Feed(ctx context.Context, r io.Reader) error {
	d, err := NewDemuxer(r)
	if err != nil {
		return err
	}
	var n int64
	for {
		if ctx.Err() != nil {
			return nil
		}
		u, err := d.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if u.Config {
			if err := p.sink.SubmitCodecConfig(u.Data); err != nil {
				p.log.Warn("codec config rejected", "size", len(u.Data), "err", err)
			}
			continue
		}
		pts := n * 1_000_000 / int64(p.cfg.FPS)
		n++
		if err := p.sink.SubmitFrame(u.Data, u.KeyFrame, pts); err != nil {
			if errors.Is(err, stream.ErrNotStreaming) {
				p.log.Debug("frame skipped", "pts", pts, "err", err)
				continue
			}
			p.log.Warn("frame rejected", "pts", pts, "size", len(u.Data), "err", err)
		}
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   bytes.Buffer
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(b)
	if extra := t.buf.Len() - t.limit; extra > 0 {
		t.buf.Next(extra)
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
