// Package server exposes the HTTP surface: WHEP playback, the WebSocket
// signaling endpoint, health and a small browser test page.
package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"screencast/internal/logging"
	"screencast/internal/stream"
	"screencast/internal/version"
)

const (
	maxOfferSize = 64 << 10
	offerTimeout = 10 * time.Second
)

// Streamer is the part of *stream.Streamer the HTTP surface drives.
type Streamer interface {
	NewConnection(viewerID string, onCandidate func(stream.ICECandidate)) error
	HandleOffer(ctx context.Context, viewerID, sdp string) (string, error)
	CloseConnection(viewerID string) error
	Stats() stream.Stats
}

type Config struct {
	// Signaling serves /ws when set.
	Signaling http.Handler
	Logger    *slog.Logger
}

type WhepServer struct {
	streamer  Streamer
	signaling http.Handler
	log       *slog.Logger
	newID     func() string
}

func NewWhepServer(s Streamer, cfg Config) *WhepServer {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &WhepServer{
		streamer:  s,
		signaling: cfg.Signaling,
		log:       logger,
		newID:     func() string { return uuid.New().String() },
	}
}

func (s *WhepServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/whep", s.handleWHEPPost)
	mux.HandleFunc("/whep/", s.handleWHEPResource)
	if s.signaling != nil {
		mux.Handle("/ws", s.signaling)
	}
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, indexHTML)
	})
}

// Handler returns the routes wrapped in request logging.
func (s *WhepServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return logging.RequestLogger(s.log, mux)
}

func (s *WhepServer) handleWHEPPost(w http.ResponseWriter, r *http.Request) {
	allowCORS(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	offer, err := io.ReadAll(io.LimitReader(r.Body, maxOfferSize))
	if err != nil || len(offer) == 0 {
		http.Error(w, "empty offer", http.StatusBadRequest)
		return
	}

	id := s.newID()
	if err := s.streamer.NewConnection(id, nil); err != nil {
		s.log.Error("whep session setup failed", "viewer", id, "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), offerTimeout)
	defer cancel()
	answer, err := s.streamer.HandleOffer(ctx, id, string(offer))
	if err != nil {
		_ = s.streamer.CloseConnection(id)
		s.log.Warn("whep offer rejected", "viewer", id, "err", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.log.Info("whep session created", "viewer", id)

	w.Header().Set("Content-Type", "application/sdp")
	w.Header().Set("Location", "/whep/"+id)
	w.WriteHeader(http.StatusCreated)
	_, _ = io.WriteString(w, answer)
}

func (s *WhepServer) handleWHEPResource(w http.ResponseWriter, r *http.Request) {
	allowCORS(w, r)
	id := strings.TrimPrefix(r.URL.Path, "/whep/")
	switch r.Method {
	case http.MethodPatch, http.MethodOptions:
		// Trickle ICE is not supported; answers already carry every candidate.
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := s.streamer.CloseConnection(id); err != nil {
			if errors.Is(err, stream.ErrViewerNotFound) || errors.Is(err, stream.ErrInvalidViewerID) {
				http.Error(w, "unknown session", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		s.log.Info("whep session closed", "viewer", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *WhepServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	allowCORS(w, r)
	stats := s.streamer.Stats()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": version.Current(),
		"viewers": len(stats.Viewers),
		"stream":  stats,
	})
}

func allowCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Expose-Headers", "Location")
}

const indexHTML = `<!doctype html>
<meta charset="utf-8" />
<title>Screencast</title>
<style>body{font-family:system-ui;margin:2rem}video{width:80vw;max-width:1280px;background:#000;cursor:crosshair}</style>
<div>
  <input id="ep" value="/whep" style="width:30rem"/>
  <button id="play">Play</button>
  <button id="stop" disabled>Stop</button>
  <div id="msg"></div>
</div>
<video id="v" playsinline autoplay muted></video>
<script>
let pc=null, dc=null, res=null; const $=id=>document.getElementById(id);
$("play").onclick = async ()=>{
  const ep=$("ep").value; pc=new RTCPeerConnection();
  pc.addTransceiver('video',{direction:'recvonly'});
  dc=pc.createDataChannel('control');
  pc.ontrack = ev=>{$("v").srcObject=ev.streams[0];}
  pc.onconnectionstatechange = ()=>{$("msg").textContent=pc.connectionState;}
  const offer = await pc.createOffer();
  await pc.setLocalDescription(offer);
  const resp=await fetch(ep,{method:'POST',headers:{'Content-Type':'application/sdp'},body:offer.sdp});
  if(!resp.ok){$("msg").textContent=await resp.text(); return}
  res=resp.headers.get('Location'); const sdp=await resp.text();
  await pc.setRemoteDescription({type:'answer', sdp});
  $("stop").disabled=false;
}
$("v").onclick = ev=>{
  if(!dc||dc.readyState!=='open') return;
  const r=ev.target.getBoundingClientRect();
  dc.send(JSON.stringify({type:'tap',x:(ev.clientX-r.left)/r.width,y:(ev.clientY-r.top)/r.height}));
}
$("stop").onclick = async ()=>{
  if(res){await fetch(res,{method:'DELETE'})} if(pc){pc.close()} dc=null; $("stop").disabled=true;
}
</script>`
