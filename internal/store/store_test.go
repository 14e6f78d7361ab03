package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/input-output-hk/cardano-txindexer/internal/cardano"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "txindex-store-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	s, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewCreatesDatabaseFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "txindex-store-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	s, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(tmpDir, "index.db")); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestReopenExistingDatabase(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "txindex-store-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	s, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	txn, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := txn.SetLastApplied("block-1"); err != nil {
		t.Fatalf("SetLastApplied() error = %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	s.Close()

	// Reopening runs schema preparation again; existing data must survive.
	s, err = New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("reopen New() error = %v", err)
	}
	defer s.Close()

	hash, ok, err := s.LastApplied()
	if err != nil || !ok || hash != "block-1" {
		t.Fatalf("LastApplied() after reopen = (%s, %v, %v), want (block-1, true, nil)", hash, ok, err)
	}
}

func TestSchemaTablesExist(t *testing.T) {
	s := newTestStore(t)
	for _, table := range []string{"tx", "address", "output", "input", "txs_by_address", "block", "last_block"} {
		var name string
		err := s.writer.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestApplyTxAndRead(t *testing.T) {
	s := newTestStore(t)

	txn, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	genesis := cardano.Tx{ID: "genesis-tx", Outputs: []cardano.TxOut{{Address: "addr1", Value: 1000}}}
	if err := txn.ApplyTx(genesis); err != nil {
		t.Fatalf("ApplyTx(genesis) error = %v", err)
	}

	spend := cardano.Tx{
		ID:      "spend-tx",
		Inputs:  []cardano.TxIn{{SourceTxID: "genesis-tx", Index: 0}},
		Outputs: []cardano.TxOut{{Address: "addr2", Value: 1000}},
	}
	if err := txn.ApplyTx(spend); err != nil {
		t.Fatalf("ApplyTx(spend) error = %v", err)
	}

	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	tx, err := s.Transaction("spend-tx")
	if err != nil {
		t.Fatalf("Transaction() error = %v", err)
	}
	if tx == nil {
		t.Fatal("Transaction() returned nil")
	}
	if len(tx.Inputs) != 1 || tx.Inputs[0].ID != "genesis-tx" {
		t.Errorf("Inputs = %+v, want one input referencing genesis-tx", tx.Inputs)
	}

	addr1Txs, err := s.TransactionsOf("addr1")
	if err != nil {
		t.Fatalf("TransactionsOf(addr1) error = %v", err)
	}
	if len(addr1Txs) != 2 {
		t.Errorf("len(TransactionsOf(addr1)) = %d, want 2 (funded by genesis, spent by spend-tx)", len(addr1Txs))
	}

	addr2Txs, err := s.TransactionsOf("addr2")
	if err != nil {
		t.Fatalf("TransactionsOf(addr2) error = %v", err)
	}
	if len(addr2Txs) != 1 {
		t.Errorf("len(TransactionsOf(addr2)) = %d, want 1", len(addr2Txs))
	}
}

func TestAddInputRejectsUnknownSource(t *testing.T) {
	s := newTestStore(t)

	txn, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	defer txn.Rollback()

	if err := txn.InsertTx("tx1"); err != nil {
		t.Fatalf("InsertTx() error = %v", err)
	}

	if err := txn.AddInput("tx1", "does-not-exist", 0); err == nil {
		t.Error("AddInput() with unknown source transaction should fail")
	}
}

func TestBlockIndexChain(t *testing.T) {
	s := newTestStore(t)

	txn, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	if err := txn.UpsertBlockLink("genesis", nil); err != nil {
		t.Fatalf("UpsertBlockLink(genesis) error = %v", err)
	}
	head, err := txn.HeadOfChain()
	if err != nil {
		t.Fatalf("HeadOfChain() error = %v", err)
	}
	if head != "genesis" {
		t.Errorf("HeadOfChain() = %s, want genesis", head)
	}

	if err := txn.UpsertBlockLink("block-1", nil); err != nil {
		t.Fatalf("UpsertBlockLink(block-1) error = %v", err)
	}
	next := "block-1"
	if err := txn.UpsertBlockLink("genesis", &next); err != nil {
		t.Fatalf("UpsertBlockLink(genesis -> block-1) error = %v", err)
	}

	head, err = txn.HeadOfChain()
	if err != nil {
		t.Fatalf("HeadOfChain() error = %v", err)
	}
	if head != "block-1" {
		t.Errorf("HeadOfChain() = %s, want block-1", head)
	}

	gotNext, err := txn.NextOf("genesis")
	if err != nil {
		t.Fatalf("NextOf(genesis) error = %v", err)
	}
	if gotNext == nil || *gotNext != "block-1" {
		t.Errorf("NextOf(genesis) = %v, want block-1", gotNext)
	}

	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
}

func TestLastAppliedRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if _, ok, err := s.LastApplied(); err != nil || ok {
		t.Fatalf("LastApplied() before any apply = (_, %v, %v), want (_, false, nil)", ok, err)
	}

	txn, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := txn.SetLastApplied("block-1"); err != nil {
		t.Fatalf("SetLastApplied() error = %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	hash, ok, err := s.LastApplied()
	if err != nil {
		t.Fatalf("LastApplied() error = %v", err)
	}
	if !ok || hash != "block-1" {
		t.Errorf("LastApplied() = (%s, %v), want (block-1, true)", hash, ok)
	}
}
