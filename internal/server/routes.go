package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BioHazard786/Warpcall/internal/relay"
	"github.com/BioHazard786/Warpcall/internal/wire"
)

// Configure the websocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024, // 64 KB
	WriteBufferSize: 64 * 1024, // 64 KB
	Subprotocols:    wire.Subprotocols,

	// Origin checks are left to the deployment's reverse proxy.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewRouter registers the relay's HTTP routes. Each router gets its own
// metrics registry.
func NewRouter(hub *relay.Hub, logger *slog.Logger) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	hub.RegisterMetrics(registry)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthCheckHandler)
	mux.HandleFunc("/rooms", roomsHandler(hub))
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws", ServeWs(hub, logger))
	return mux
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling relay is healthy."))
}

// roomsHandler reports live rooms and their member counts. Participant ids
// are not exposed.
func roomsHandler(hub *relay.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hub.Registry().Snapshot())
	}
}

// ServeWs returns an http.HandlerFunc that upgrades to a websocket and
// hands the connection to the hub.
func ServeWs(hub *relay.Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("failed to upgrade connection", "error", err)
			return
		}

		codec := wire.ForSubprotocol(conn.Subprotocol())
		client := relay.NewClient(hub, conn, codec)

		hub.Register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}
