// Package config loads runtime settings from flags, falling back to
// environment variables and then built-in defaults.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"screencast/internal/capture"
	"screencast/internal/rtc"
	"screencast/internal/stream"
)

// SourceNone disables the built-in capture producer.
const SourceNone = "none"

const minMTU = 200

type Config struct {
	Host string
	Port int

	QueueCapacity int
	ICEServers    []string
	MTU           int

	Source  string
	FFmpeg  string
	Width   int
	Height  int
	FPS     int
	Bitrate string

	LogLevel  string
	LogFormat string
}

// Load parses args (without the program name). pflag.ErrHelp is returned
// unwrapped when -h is given.
func Load(args []string, output io.Writer) (Config, error) {
	var cfg Config
	fs := pflag.NewFlagSet("screencast", pflag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}
	fs.StringVar(&cfg.Host, "host", getEnv("HOST", "0.0.0.0"), "bind host")
	fs.IntVarP(&cfg.Port, "port", "p", getEnvInt("PORT", 8000), "bind port")
	fs.IntVar(&cfg.QueueCapacity, "queue", getEnvInt("QUEUE_CAPACITY", stream.DefaultQueueCapacity), "frames buffered between producer and sender")
	fs.StringSliceVar(&cfg.ICEServers, "ice", getEnvList("ICE_SERVERS", []string{"stun:stun.l.google.com:19302"}), "ICE server URLs (comma separated)")
	fs.IntVar(&cfg.MTU, "mtu", getEnvInt("RTP_MTU", rtc.DefaultMTU), "maximum RTP packet size")
	fs.StringVarP(&cfg.Source, "source", "s", getEnv("SOURCE", capture.SourceTestPattern), `video source: "testsrc", a media file path, or "none"`)
	fs.StringVar(&cfg.FFmpeg, "ffmpeg", getEnv("FFMPEG", "ffmpeg"), "ffmpeg binary")
	fs.IntVar(&cfg.Width, "width", getEnvInt("VIDEO_WIDTH", 1280), "encoded width")
	fs.IntVar(&cfg.Height, "height", getEnvInt("VIDEO_HEIGHT", 720), "encoded height")
	fs.IntVar(&cfg.FPS, "fps", getEnvInt("FPS", 30), "encoded frame rate")
	fs.StringVar(&cfg.Bitrate, "bitrate", getEnv("VIDEO_BITRATE", "2M"), "encoder target bitrate")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "text or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return Config{}, pflag.ErrHelp
		}
		return Config{}, errors.Wrap(err, "parse flags")
	}
	if fs.NArg() > 0 {
		return Config{}, errors.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return errors.Errorf("port %d out of range", c.Port)
	case c.QueueCapacity <= 0:
		return errors.Errorf("queue capacity must be positive, got %d", c.QueueCapacity)
	case c.MTU < minMTU || c.MTU > rtc.MaxMTU:
		return errors.Errorf("mtu %d outside %d..%d", c.MTU, minMTU, rtc.MaxMTU)
	case c.Source == "":
		return errors.New("source must not be empty")
	}
	if c.Capture() {
		if c.Width <= 0 || c.Height <= 0 {
			return errors.Errorf("invalid video size %dx%d", c.Width, c.Height)
		}
		if c.FPS <= 0 {
			return errors.Errorf("fps must be positive, got %d", c.FPS)
		}
	}
	return nil
}

// Capture reports whether the built-in producer should run.
func (c Config) Capture() bool {
	return c.Source != SourceNone
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if x, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return x
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
