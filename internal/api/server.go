// Package api serves the read-only observation surface: book depth,
// trades, ledger replay and run statistics over HTTP, plus a WebSocket
// feed of ledger events. It never writes to the matching core; all views
// come from the ledger or from snapshots pushed by the scheduler.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Rhea-Shah23/HFT-Arena/internal/book"
	"github.com/Rhea-Shah23/HFT-Arena/internal/engine"
	"github.com/Rhea-Shah23/HFT-Arena/internal/ledger"
)

// Server holds the HTTP surface. The book snapshot and stats are cached
// copies refreshed by the scheduler after each event, so handlers never
// race the dispatch loop.
type Server struct {
	led      *ledger.Ledger
	hub      *Hub
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	clock time.Duration
	snap  book.BookSnapshot
	stats engine.Stats
}

func NewServer(led *ledger.Ledger, log *zap.Logger) *Server {
	s := &Server{
		led: led,
		hub: NewHub(),
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	// Every ledger entry goes straight to the WebSocket feed.
	led.OnEntry(func(e ledger.Entry) {
		s.hub.Broadcast(wsMessage{Kind: "entry", Entry: &e})
	})
	return s
}

// Refresh installs a new cached view. The scheduler calls it from the
// dispatch goroutine after each applied event.
func (s *Server) Refresh(now time.Duration, snap book.BookSnapshot, stats engine.Stats) {
	s.mu.Lock()
	s.clock = now
	s.snap = snap
	s.stats = stats
	s.mu.Unlock()
}

// Hub exposes the WebSocket hub, mainly for tests.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/book", s.getBook)
		r.Get("/trades", s.getTrades)
		r.Get("/ledger", s.getLedger)
		r.Get("/stats", s.getStats)
	})
	r.Get("/ws", s.handleWebSocket)

	return r
}

type wsMessage struct {
	Kind  string        `json:"kind"`
	Entry *ledger.Entry `json:"entry,omitempty"`
}

type bookResponse struct {
	Clock time.Duration     `json:"clock"`
	Book  book.BookSnapshot `json:"book"`
}

func (s *Server) getBook(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	resp := bookResponse{Clock: s.clock, Book: s.snap}
	s.mu.RUnlock()
	writeJSON(w, resp)
}

func (s *Server) getTrades(w http.ResponseWriter, r *http.Request) {
	trades := s.led.Trades()
	if limit := queryInt(r, "limit"); limit > 0 && limit < len(trades) {
		trades = trades[len(trades)-limit:]
	}
	writeJSON(w, trades)
}

type ledgerResponse struct {
	Entries []ledger.Entry `json:"entries"`
	LastSeq uint64         `json:"last_seq"`
}

// getLedger replays entries after ?from= so clients can page through the
// run incrementally.
func (s *Server) getLedger(w http.ResponseWriter, r *http.Request) {
	from, _ := strconv.ParseUint(r.URL.Query().Get("from"), 10, 64)
	limit := queryInt(r, "limit")
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	it := s.led.Replay(from)
	resp := ledgerResponse{Entries: make([]ledger.Entry, 0, limit)}
	for len(resp.Entries) < limit {
		e, ok := it.Next()
		if !ok {
			break
		}
		resp.Entries = append(resp.Entries, e)
	}
	resp.LastSeq = it.LastSeq()
	if resp.LastSeq == 0 {
		resp.LastSeq = from
	}
	writeJSON(w, resp)
}

type statsResponse struct {
	Clock time.Duration `json:"clock"`
	Stats engine.Stats  `json:"stats"`
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	resp := statsResponse{Clock: s.clock, Stats: s.stats}
	s.mu.RUnlock()
	writeJSON(w, resp)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{hub: s.hub, conn: conn, send: make(chan []byte, 256)}
	s.hub.register(c)
	go c.writePump()
	go c.readPump()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}
