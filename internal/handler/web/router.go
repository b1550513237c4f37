// Package web serves the optional HTTP surface: health, stats and the
// WebSocket bridge. It writes no files and is disabled when no address
// is configured.
package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/collabsheet/sheet-service/internal/adapter/pubsub"
	"github.com/collabsheet/sheet-service/internal/domain/model"
	"github.com/collabsheet/sheet-service/internal/handler/ws"
	"github.com/collabsheet/sheet-service/internal/service"
)

type statsResponse struct {
	Hub  model.HubStats  `json:"hub"`
	Feed model.FeedStats `json:"feed"`
}

// NewRouter assembles the HTTP mux.
func NewRouter(wsHandler *ws.WSHandler, coord *service.Coordinator, counter *pubsub.EditCounter) *chi.Mux {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		res := statsResponse{
			Hub:  coord.Stats(),
			Feed: counter.Snapshot(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(res); err != nil {
			http.Error(w, "encode error", http.StatusInternalServerError)
		}
	})

	r.Get("/ws", wsHandler.ServeHTTP)

	return r
}
