// Package forward applies already-indexed block-index entries to the
// store in chain order, from the last applied block up to the current
// chain head.
package forward

import (
	"context"
	"fmt"

	"github.com/input-output-hk/cardano-txindexer/internal/cardano"
	"github.com/input-output-hk/cardano-txindexer/internal/projector"
	"github.com/input-output-hk/cardano-txindexer/internal/store"
)

// BlockFetcher fetches and decodes a single block by hash.
type BlockFetcher func(ctx context.Context, hash string) (*cardano.Block, error)

// Apply walks the block-index chain from the store's current LastApplied
// hash, fetching and applying each subsequent block in turn, until it
// reaches a block with no recorded successor (the current head). It
// returns the number of blocks applied.
func Apply(ctx context.Context, txn *store.Txn, fetch BlockFetcher) (int, error) {
	cursor, ok, err := txn.LastApplied()
	if err != nil {
		return 0, fmt.Errorf("forward: read last applied: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("forward: no last applied block recorded; run genesis bootstrap first")
	}

	applied := 0
	for {
		next, err := txn.NextOf(cursor)
		if err != nil {
			return applied, fmt.Errorf("forward: resolve next of %s: %w", cursor, err)
		}
		if next == nil {
			return applied, nil
		}

		block, err := fetch(ctx, *next)
		if err != nil {
			return applied, fmt.Errorf("forward: fetch block %s: %w", *next, err)
		}
		if err := projector.ApplyBlock(txn, block); err != nil {
			return applied, fmt.Errorf("forward: apply block %s: %w", *next, err)
		}
		if err := txn.SetLastApplied(*next); err != nil {
			return applied, fmt.Errorf("forward: record last applied %s: %w", *next, err)
		}

		cursor = *next
		applied++
	}
}
