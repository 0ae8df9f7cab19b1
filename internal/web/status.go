// Package web serves the bridge's status API: node and topology views,
// traffic statistics, the live activity monitor, and an endpoint for
// injecting chat-side messages.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/kabili207/mesh-discord-bridge/pkg/bridge"
	"github.com/kabili207/mesh-discord-bridge/pkg/store"
	"github.com/kabili207/mesh-discord-bridge/pkg/topology"
)

const defaultWindow = 24 * time.Hour

type StatusServer struct {
	stores   *store.Stores
	bridge   *bridge.Bridge
	topology *topology.Reconstructor
	log      *slog.Logger
	server   *http.Server
}

func NewStatusServer(listenAddr string, stores *store.Stores, b *bridge.Bridge, topo *topology.Reconstructor, log *slog.Logger) *StatusServer {
	s := &StatusServer{
		stores:   stores,
		bridge:   b,
		topology: topo,
		log:      log,
	}

	r := mux.NewRouter().StrictSlash(true)
	r.HandleFunc("/healthz", s.health).Methods("GET")
	r.HandleFunc("/api/nodes", s.getNodes).Methods("GET")
	r.HandleFunc("/api/nodes/{id}/route", s.getRoute).Methods("GET")
	r.HandleFunc("/api/nodes/{id}/telemetry", s.getTelemetryHistory).Methods("GET")
	r.HandleFunc("/api/topology", s.getTopology).Methods("GET")
	r.HandleFunc("/api/stats", s.getStats).Methods("GET")
	r.HandleFunc("/api/summary", s.getSummary).Methods("GET")
	r.HandleFunc("/api/monitor", s.getMonitor).Methods("GET")
	r.HandleFunc("/api/send", s.postSend).Methods("POST")
	r.Use(handlers.ProxyHeaders)

	s.server = &http.Server{
		Addr:    listenAddr,
		Handler: handlers.RecoveryHandler()(r),
	}
	return s
}

// Start serves on its own goroutine.
func (s *StatusServer) Start() {
	go func() {
		s.log.Info("status api listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("status api stopped", "error", err)
		}
	}()
}

func (s *StatusServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *StatusServer) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *StatusServer) getNodes(w http.ResponseWriter, r *http.Request) {
	if activeParam(r) {
		nodes, err := s.stores.Nodes.GetActive(windowParam(r))
		s.respond(w, nodes, err)
		return
	}
	nodes, err := s.stores.Nodes.GetAll()
	s.respond(w, nodes, err)
}

func (s *StatusServer) getRoute(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["id"]
	hops, err := s.topology.RouteToNode(nodeID)
	s.respond(w, hops, err)
}

func (s *StatusServer) getTelemetryHistory(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["id"]
	records, err := s.stores.Telemetry.History(nodeID, windowParam(r), 500)
	s.respond(w, records, err)
}

func (s *StatusServer) getTopology(w http.ResponseWriter, r *http.Request) {
	view, err := s.topology.NetworkTopology(windowParam(r))
	s.respond(w, view, err)
}

func (s *StatusServer) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stores.Messages.Stats(windowParam(r))
	s.respond(w, stats, err)
}

func (s *StatusServer) getSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.stores.Telemetry.Summary(windowParam(r))
	s.respond(w, summary, err)
}

func (s *StatusServer) getMonitor(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.bridge.Monitor().Entries())
}

type sendRequest struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// postSend enqueues a chat-originated message toward the mesh. Returns
// 503 when the outbound queue is full.
func (s *StatusServer) postSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.bridge.EnqueueOutbound(bridge.OutboundMessage{Sender: req.Sender, Text: req.Text}); err != nil {
		http.Error(w, "outbound queue full", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *StatusServer) respond(w http.ResponseWriter, data any, err error) {
	if err != nil {
		s.log.Error("status api query failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, data)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func activeParam(r *http.Request) bool {
	active, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	return active
}

// windowParam reads the trailing window in hours, defaulting to a day.
func windowParam(r *http.Request) time.Duration {
	hours, err := strconv.Atoi(r.URL.Query().Get("hours"))
	if err != nil || hours <= 0 {
		return defaultWindow
	}
	return time.Duration(hours) * time.Hour
}
