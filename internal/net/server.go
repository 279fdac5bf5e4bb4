package net

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"screenspec/internal/state"
)

// Document is the shared screen as seen by the server.
type Document interface {
	ExportRenderedImage() (*image.RGBA, error)
	Size() (w, h int)
}

// Info is served at the root of a share.
type Info struct {
	ScreenID    string `json:"screenId"`
	Title       string `json:"title,omitempty"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Annotations int    `json:"annotations"`
	Viewers     int    `json:"viewers"`
	Image       string `json:"image"`
	Events      string `json:"events"`
}

// Server exposes a shared screen over HTTP.
type Server struct {
	hub    *Hub
	doc    Document
	title  string
	logger *slog.Logger

	httpServer *http.Server
	listener   net.Listener
}

func NewServer(hub *Hub, doc Document, title string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{hub: hub, doc: doc, title: title, logger: logger}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleInfo)
	mux.HandleFunc("GET /screen.png", s.handleImage)
	mux.HandleFunc("GET /annotations", s.handleAnnotations)
	mux.Handle("GET /ws", s.hub)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("share listen: %w", err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("share server error", "error", err)
		}
	}()
	s.logger.Info("Sharing screen", "addr", listener.Addr().String(), "screen", s.hub.screenID)
	return nil
}

// Port returns the bound port, or 0 before Start.
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	width, height := s.doc.Size()
	writeJSON(w, Info{
		ScreenID:    s.hub.screenID,
		Title:       s.title,
		Width:       width,
		Height:      height,
		Annotations: len(s.hub.Annotations()),
		Viewers:     s.hub.Len(),
		Image:       "/screen.png",
		Events:      "/ws",
	})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	img, err := s.doc.ExportRenderedImage()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, img); err != nil {
		s.logger.Warn("share: encode image", "error", err)
	}
}

func (s *Server) handleAnnotations(w http.ResponseWriter, r *http.Request) {
	data, err := state.MarshalAnnotations(s.hub.Annotations())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
