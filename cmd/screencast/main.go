package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"screencast/internal/capture"
	"screencast/internal/config"
	"screencast/internal/input"
	"screencast/internal/logging"
	"screencast/internal/rtc"
	"screencast/internal/server"
	"screencast/internal/signaling"
	"screencast/internal/stream"
	"screencast/internal/version"
)

func main() {
	cfg, err := config.Load(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log.Info("starting", "version", version.String())

	transport, err := rtc.NewTransport(rtc.Config{
		ICEServers: cfg.ICEServers,
		MTU:        cfg.MTU,
		Logger:     logging.WithComponent(log, "rtc"),
	})
	if err != nil {
		return err
	}
	inputs := input.NewDispatcher(input.LogHandler{Logger: logging.WithComponent(log, "input")}, log)
	streamer := stream.NewStreamer(stream.Options{
		QueueCapacity: cfg.QueueCapacity,
		Transport:     transport,
		Logger:        logging.WithComponent(log, "stream"),
		OnMessage:     inputs.Dispatch,
		OnKeyFrameRequest: func(viewerID string) {
			log.Debug("key frame requested", "viewer", viewerID)
		},
	})
	streamer.Start()
	defer streamer.Close()

	hub := signaling.NewHub(streamer, logging.WithComponent(log, "signaling"))
	defer hub.Close()
	whep := server.NewWhepServer(streamer, server.Config{
		Signaling: hub,
		Logger:    logging.WithComponent(log, "http"),
	})
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           whep.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("listening", "addr", "http://"+srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.Capture() {
		producer := capture.NewProducer(capture.Config{
			FFmpeg:  cfg.FFmpeg,
			Input:   cfg.Source,
			Width:   cfg.Width,
			Height:  cfg.Height,
			FPS:     cfg.FPS,
			Bitrate: cfg.Bitrate,
			Logger:  logging.WithComponent(log, "capture"),
		}, streamer)
		g.Go(func() error {
			return producer.Run(ctx)
		})
	}

	err = g.Wait()
	log.Info("shutting down", "stats", streamer.Stats().Counters)
	return err
}
