// Package relay exposes a room store over HTTP: a websocket endpoint that
// bridges subscribe/patch to any Store backend, plus a code-minting helper
// for clients that want the server to pick a fresh room code.
package relay

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"letterduel/internal/engine"
	"letterduel/internal/store"
)

type Server struct {
	store store.Store
	log   *zap.Logger
}

func NewServer(st store.Store, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{store: st, log: log}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/rooms", s.createRoom)
	r.Get("/healthz", s.healthz)
	r.Get("/ws", s.handleWS)
	return r
}

// createRoom mints a shareable room code. The room document itself is still
// created lazily by the first subscriber that observes it absent.
func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	code, err := engine.NewRoomCode()
	if err != nil {
		http.Error(w, "failed to generate code", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(struct {
		Code string `json:"code"`
	}{Code: code})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
