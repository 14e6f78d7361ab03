// Package projector applies decoded blocks and the genesis UTxO set to the
// store, computing each transaction's canonical id along the way.
package projector

import (
	"fmt"

	"github.com/input-output-hk/cardano-txindexer/internal/cardano"
	"github.com/input-output-hk/cardano-txindexer/internal/store"
)

// ApplyBlock inserts every transaction in block within txn, in order. It
// does not touch the block-index chain or last_block; callers (the
// forward applier, the bulk ingestor) own those updates since the
// bookkeeping differs between one-at-a-time and whole-epoch application.
func ApplyBlock(txn *store.Txn, block *cardano.Block) error {
	for i := range block.Txs {
		tx := block.Txs[i]
		if tx.ID == "" {
			tx.ID = cardano.TxID(tx)
		}
		if err := txn.ApplyTx(tx); err != nil {
			return fmt.Errorf("projector: apply tx in block %s: %w", block.Header.Hash, err)
		}
	}
	return nil
}

// GenesisUTxO is one entry of the genesis UTxO set: an output that exists
// from the start of the chain, with no transaction that created it.
type GenesisUTxO struct {
	TxID    string
	Index   uint32
	Address string
	Value   uint64
}

// ApplyInitialState seeds the genesis UTxO set and the genesis block link.
// It is idempotent: if the store already has a LastApplied hash, it
// returns immediately without reapplying anything, closing the genesis
// bootstrap gap where a crash between seeding UTxOs and recording
// LastApplied would otherwise double-insert on restart.
func ApplyInitialState(s *store.Store, genesisHash string, utxos []GenesisUTxO) error {
	if _, ok, err := s.LastApplied(); err != nil {
		return fmt.Errorf("projector: check last applied: %w", err)
	} else if ok {
		return nil
	}

	txn, err := s.Begin()
	if err != nil {
		return fmt.Errorf("projector: begin initial state: %w", err)
	}
	defer txn.Rollback()

	seenTx := make(map[string]bool)
	for _, u := range utxos {
		if !seenTx[u.TxID] {
			if err := txn.InsertTx(u.TxID); err != nil {
				return fmt.Errorf("projector: insert genesis tx %s: %w", u.TxID, err)
			}
			seenTx[u.TxID] = true
		}
		if err := txn.AddOutput(u.TxID, u.Index, u.Address, u.Value); err != nil {
			return fmt.Errorf("projector: add genesis output: %w", err)
		}
	}

	if err := txn.UpsertBlockLink(genesisHash, nil); err != nil {
		return fmt.Errorf("projector: seed genesis block link: %w", err)
	}
	if err := txn.SetLastApplied(genesisHash); err != nil {
		return fmt.Errorf("projector: seed last applied: %w", err)
	}

	return txn.Commit()
}
