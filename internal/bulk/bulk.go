// Package bulk ingests whole stable epochs at once: one write transaction
// per epoch, decoding and applying every block in the epoch pack and then
// stitching the block-index chain to match.
package bulk

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/input-output-hk/cardano-txindexer/internal/cardano"
	"github.com/input-output-hk/cardano-txindexer/internal/projector"
	"github.com/input-output-hk/cardano-txindexer/internal/store"
)

// EpochFetcher fetches the raw packed bytes for a stable epoch.
type EpochFetcher func(ctx context.Context, epoch uint64) ([]byte, error)

// IngestEpochs applies every stable epoch from 0 up to (not including)
// firstUnstableEpoch, one transaction per epoch.
func IngestEpochs(ctx context.Context, s *store.Store, firstUnstableEpoch uint64, fetch EpochFetcher) error {
	for epoch := uint64(0); epoch < firstUnstableEpoch; epoch++ {
		if err := ingestOne(ctx, s, epoch, fetch); err != nil {
			return fmt.Errorf("bulk: ingest epoch %d: %w", epoch, err)
		}
	}
	return nil
}

func ingestOne(ctx context.Context, s *store.Store, epoch uint64, fetch EpochFetcher) error {
	raw, err := fetch(ctx, epoch)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	txn, err := s.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer txn.Rollback()

	var hashes []string
	err = cardano.ReadPackedEpoch(bytes.NewReader(raw), func(blockRaw []byte) error {
		block, err := cardano.DecodeBlock(blockRaw)
		if err != nil {
			return fmt.Errorf("decode block: %w", err)
		}
		if err := projector.ApplyBlock(txn, block); err != nil {
			return fmt.Errorf("apply block %s: %w", block.Header.Hash, err)
		}
		hashes = append(hashes, block.Header.Hash)
		return nil
	})
	if err != nil {
		return err
	}

	if len(hashes) == 0 {
		return txn.Commit()
	}

	head, err := txn.HeadOfChain()
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read chain head: %w", err)
	}
	if err == nil {
		first := hashes[0]
		if err := txn.UpsertBlockLink(head, &first); err != nil {
			return fmt.Errorf("link previous head %s -> %s: %w", head, first, err)
		}
	}

	for i, hash := range hashes {
		var next *string
		if i+1 < len(hashes) {
			next = &hashes[i+1]
		}
		if err := txn.UpsertBlockLink(hash, next); err != nil {
			return fmt.Errorf("link block %s: %w", hash, err)
		}
	}

	if err := txn.SetLastApplied(hashes[len(hashes)-1]); err != nil {
		return fmt.Errorf("record last applied: %w", err)
	}

	return txn.Commit()
}
