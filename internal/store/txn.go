package store

import (
	"database/sql"
	"fmt"

	"github.com/input-output-hk/cardano-txindexer/internal/cardano"
)

// Txn is a single write transaction against the index. Each phase of a
// sync-loop iteration (block-index reconcile, forward apply) and each bulk
// epoch runs inside exactly one Txn, so a crash mid-batch never leaves the
// index half applied.
type Txn struct {
	tx *sql.Tx
}

// Begin starts a new write transaction. Only one write Txn may be open at
// a time, matching the single-writer connection the Store opens with.
func (s *Store) Begin() (*Txn, error) {
	tx, err := s.writer.Begin()
	if err != nil {
		return nil, wrapErr("begin", err)
	}
	return &Txn{tx: tx}, nil
}

// Commit commits the transaction.
func (t *Txn) Commit() error {
	return wrapErr("commit", t.tx.Commit())
}

// Rollback aborts the transaction. Safe to call after Commit; the second
// call is a no-op.
func (t *Txn) Rollback() error {
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return wrapErr("rollback", err)
}

// InsertTx records a transaction id. It must be called before AddOutput or
// AddInput reference it.
func (t *Txn) InsertTx(txid string) error {
	_, err := t.tx.Exec("INSERT INTO tx (txid) VALUES (?)", txid)
	return wrapErr("insert tx", err)
}

// AddOutput records a transaction output and associates the receiving
// address with the transaction in txs_by_address.
func (t *Txn) AddOutput(txid string, idx uint32, address string, value uint64) error {
	if _, err := t.tx.Exec("INSERT OR IGNORE INTO address (address) VALUES (?)", address); err != nil {
		return wrapErr("insert address", err)
	}
	if _, err := t.tx.Exec(
		"INSERT INTO output (txid, idx, address, value) VALUES (?, ?, ?, ?)",
		txid, idx, address, value,
	); err != nil {
		return wrapErr("insert output", err)
	}
	if _, err := t.tx.Exec(
		"INSERT OR IGNORE INTO txs_by_address (address, txid) VALUES (?, ?)",
		address, txid,
	); err != nil {
		return wrapErr("insert txs_by_address (output)", err)
	}
	return nil
}

// AddInput records a transaction input. The spent output must already be
// indexed; its address is associated with the spending transaction in
// txs_by_address.
func (t *Txn) AddInput(txid, sourceTxID string, sourceIdx uint32) error {
	var exists int
	err := t.tx.QueryRow("SELECT 1 FROM tx WHERE txid = ?", sourceTxID).Scan(&exists)
	if err == sql.ErrNoRows {
		return wrapErr("add input", fmt.Errorf("source transaction %s not indexed", sourceTxID))
	}
	if err != nil {
		return wrapErr("lookup source tx", err)
	}

	if _, err := t.tx.Exec(
		"INSERT INTO input (txid, source_txid, source_idx) VALUES (?, ?, ?)",
		txid, sourceTxID, sourceIdx,
	); err != nil {
		return wrapErr("insert input", err)
	}

	var address string
	err = t.tx.QueryRow(
		"SELECT address FROM output WHERE txid = ? AND idx = ?", sourceTxID, sourceIdx,
	).Scan(&address)
	if err != nil {
		return wrapErr("resolve spent output", err)
	}

	if _, err := t.tx.Exec(
		"INSERT OR IGNORE INTO txs_by_address (address, txid) VALUES (?, ?)",
		address, txid,
	); err != nil {
		return wrapErr("insert txs_by_address (input)", err)
	}
	return nil
}

// ApplyTx inserts a full transaction: the tx row, its outputs (so that
// same-block inputs can resolve them), then its inputs.
func (t *Txn) ApplyTx(tx cardano.Tx) error {
	if err := t.InsertTx(tx.ID); err != nil {
		return err
	}
	for idx, out := range tx.Outputs {
		if err := t.AddOutput(tx.ID, uint32(idx), out.Address, out.Value); err != nil {
			return err
		}
	}
	for _, in := range tx.Inputs {
		if err := t.AddInput(tx.ID, in.SourceTxID, in.Index); err != nil {
			return err
		}
	}
	return nil
}

// UpsertBlockLink sets (or replaces) the forward link for a block hash.
// next is nil for the current chain head.
func (t *Txn) UpsertBlockLink(hash string, next *string) error {
	_, err := t.tx.Exec("INSERT OR REPLACE INTO block (hash, next) VALUES (?, ?)", hash, next)
	return wrapErr("upsert block link", err)
}

// HeadOfChain returns the hash of the block whose next is NULL. Exactly
// one such row exists once the index has been seeded.
func (t *Txn) HeadOfChain() (string, error) {
	var hash string
	err := t.tx.QueryRow("SELECT hash FROM block WHERE next IS NULL").Scan(&hash)
	if err != nil {
		return "", wrapErr("head of chain", err)
	}
	return hash, nil
}

// NextOf returns the forward link recorded for hash, or nil if hash is not
// indexed or is the current head.
func (t *Txn) NextOf(hash string) (*string, error) {
	var next sql.NullString
	err := t.tx.QueryRow("SELECT next FROM block WHERE hash = ?", hash).Scan(&next)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("next of", err)
	}
	if !next.Valid {
		return nil, nil
	}
	return &next.String, nil
}

// SetLastApplied records the hash of the most recently applied block.
func (t *Txn) SetLastApplied(hash string) error {
	_, err := t.tx.Exec("INSERT OR REPLACE INTO last_block (id, hash) VALUES (0, ?)", hash)
	return wrapErr("set last applied", err)
}

// LastApplied returns the hash last recorded by SetLastApplied, and false
// if nothing has been applied yet.
func (t *Txn) LastApplied() (string, bool, error) {
	var hash string
	err := t.tx.QueryRow("SELECT hash FROM last_block WHERE id = 0").Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr("last applied", err)
	}
	return hash, true, nil
}
