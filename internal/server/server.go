// Package server exposes the read-only HTTP query surface over the index:
// transaction lookup by id, transactions by address, and a WebSocket feed
// of newly applied block hashes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/btcutil/base58"

	"github.com/input-output-hk/cardano-txindexer/internal/store"
	"github.com/input-output-hk/cardano-txindexer/pkg/helpers"
	"github.com/input-output-hk/cardano-txindexer/pkg/logging"
)

// Server is the ambient query surface the sync loop runs alongside.
type Server struct {
	store      *store.Store
	addr       string
	httpServer *http.Server
	listener   net.Listener
	hub        *wsHub
	log        *logging.Logger
}

// New builds a Server listening on the given port.
func New(s *store.Store, port int) *Server {
	return &Server{
		store: s,
		addr:  fmt.Sprintf(":%d", port),
		hub:   newWSHub(),
		log:   logging.GetDefault().Component("server"),
	}
}

// Start binds the listener and begins serving in a background goroutine.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /transaction/{txid}", s.handleTransaction)
	mux.HandleFunc("GET /transactions/{address}", s.handleTransactionsOf)
	mux.HandleFunc("GET /ws", s.hub.handleUpgrade)

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.addr, err)
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:      corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("query server stopped", "err", err)
		}
	}()

	s.log.Info("query server listening", "addr", listener.Addr().String())
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.hub.closeAll()
	return s.httpServer.Shutdown(ctx)
}

// NotifyBlockApplied broadcasts hash to every connected WebSocket client.
func (s *Server) NotifyBlockApplied(hash string) {
	s.hub.broadcast(wsEvent{Type: "block_applied", Hash: hash})
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	txid := r.PathValue("txid")
	if txid == "" {
		writeError(w, http.StatusBadRequest, "missing txid")
		return
	}

	tx, err := s.store.Transaction(txid)
	if err != nil {
		s.log.Error("transaction lookup failed", "txid", txid, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if tx == nil {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}

	var total uint64
	for _, out := range tx.Outputs {
		total += out.Value
	}
	s.log.Debug("transaction served", "txid", txid, "total_ada", helpers.LovelaceToADA(total))

	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleTransactionsOf(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if address == "" || !isValidAddress(address) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	txs, err := s.store.TransactionsOf(address)
	if err != nil {
		s.log.Error("transactions-of lookup failed", "address", address, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, txs)
}

// isValidAddress reports whether address decodes as base58 (the encoding
// Cardano bootstrap-era addresses use).
func isValidAddress(address string) bool {
	return len(base58.Decode(address)) > 0
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
