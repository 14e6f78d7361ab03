package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/input-output-hk/cardano-txindexer/internal/projector"
	"github.com/input-output-hk/cardano-txindexer/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "txindex-server-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	s, err := store.New(&store.Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := projector.ApplyInitialState(s, "genesis", []projector.GenesisUTxO{
		{TxID: "genesis-tx", Index: 0, Address: "1BoatSLRHtKNngkdXEeobR76b53LETtpyT", Value: 42},
	}); err != nil {
		t.Fatalf("ApplyInitialState() error = %v", err)
	}

	return New(s, 0), s
}

func TestHandleTransactionFound(t *testing.T) {
	srv, _ := newTestServer(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /transaction/{txid}", srv.handleTransaction)

	req := httptest.NewRequest(http.MethodGet, "/transaction/genesis-tx", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var tx store.Transaction
	if err := json.Unmarshal(rec.Body.Bytes(), &tx); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if tx.TxID != "genesis-tx" {
		t.Errorf("TxID = %s, want genesis-tx", tx.TxID)
	}
}

func TestHandleTransactionNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /transaction/{txid}", srv.handleTransaction)

	req := httptest.NewRequest(http.MethodGet, "/transaction/does-not-exist", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleTransactionsOfInvalidAddress(t *testing.T) {
	srv, _ := newTestServer(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /transactions/{address}", srv.handleTransactionsOf)

	req := httptest.NewRequest(http.MethodGet, "/transactions/%00", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
