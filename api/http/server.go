// Package api exposes the read-only HTTP surface: liveness, per-market
// depth snapshots, and a websocket stream of depth updates. All writes go
// through the order event topic, never through HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/GuardainDev/opinion-trade-orderbook/domain/orderbook"
	"github.com/GuardainDev/opinion-trade-orderbook/service"
)

type Server struct {
	exchange *service.Exchange
	router   *mux.Router
	hub      *Hub
	srv      *http.Server
	log      *zap.SugaredLogger
}

type depthResponse struct {
	MarketID string            `json:"marketId"`
	Asks     []orderbook.Level `json:"asks"`
	Bids     []orderbook.Level `json:"bids"`
	At       int64             `json:"at"`
}

type orderResponse struct {
	ID        string `json:"id"`
	Side      string `json:"side"`
	Size      string `json:"size"`
	Price     string `json:"price"`
	Owner     string `json:"owner,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewServer(exchange *service.Exchange, addr string, log *zap.SugaredLogger) *Server {
	s := &Server{
		exchange: exchange,
		router:   mux.NewRouter(),
		hub:      NewHub(log),
		log:      log,
	}
	s.routes()

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      c.Handler(s.router),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/event/{id}", s.handleDepth).Methods(http.MethodGet)
	s.router.HandleFunc("/event/{id}/order/{orderID}", s.handleOrder).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Hub returns the websocket hub, which satisfies service.DepthPublisher.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	s.log.Infow("http server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Alive"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	marketID := mux.Vars(r)["id"]

	asks, bids, ok, err := s.exchange.Depth(r.Context(), marketID)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if !ok {
		respondJSON(w, http.StatusNotFound, errorResponse{Error: "unknown market"})
		return
	}

	respondJSON(w, http.StatusOK, depthResponse{
		MarketID: marketID,
		Asks:     asks,
		Bids:     bids,
		At:       time.Now().UnixMilli(),
	})
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	o, err := s.exchange.Order(r.Context(), vars["id"], vars["orderID"])
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if o == nil {
		respondJSON(w, http.StatusNotFound, errorResponse{Error: "order not found"})
		return
	}

	respondJSON(w, http.StatusOK, orderResponse{
		ID:        o.ID,
		Side:      o.Side.String(),
		Size:      o.Size.String(),
		Price:     o.Price.String(),
		Owner:     o.Owner,
		CreatedAt: o.CreatedAt.UnixMilli(),
		UpdatedAt: o.UpdatedAt.UnixMilli(),
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
