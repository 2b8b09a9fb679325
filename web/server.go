// Package web serves the live metrics view: a websocket stream of 1 Hz
// snapshots plus a JSON status endpoint with the latest frame.
package web

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"

	"github.com/lelanhus/ruckcore/engine"
)

type Server struct {
	Hub    *Hub
	latest atomic.Value // engine.Snapshot
}

func NewServer() *Server {
	return &Server{Hub: NewHub()}
}

// Publish pushes one snapshot to websocket clients and retains it for
// /status.
func (s *Server) Publish(snap engine.Snapshot) {
	s.latest.Store(snap)
	b, err := json.Marshal(snap)
	if err != nil {
		log.Printf("snapshot marshal: %v", err)
		return
	}
	s.Hub.Broadcast(b)
}

// Pump drains a snapshot stream into the hub until the stream closes.
func (s *Server) Pump(snaps <-chan engine.Snapshot) {
	for snap := range snaps {
		s.Publish(snap)
	}
}

func (s *Server) Start(port int) {
	go s.Hub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(s.Hub, w, r)
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		snap, ok := s.latest.Load().(engine.Snapshot)
		if !ok {
			http.Error(w, "no snapshot yet", http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snap)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf(":%d", port)
	log.Printf("HTTP server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("HTTP server error: %v", err)
	}
}
