// Package reconcile extends the forward block-hash chain (the "block
// index") back from a new tip to the current head, so the chain can later
// be walked forward one hash at a time.
package reconcile

import (
	"context"
	"fmt"

	"github.com/input-output-hk/cardano-txindexer/internal/store"
)

// PreviousHashFunc resolves a block hash to the hash of its predecessor.
type PreviousHashFunc func(ctx context.Context, hash string) (string, error)

// UpdateBlockIndex walks backward from to, writing each block's forward
// link (cursor -> the block visited just before it) until it reaches the
// block already recorded as the chain head, then relinks that former head
// to point at its successor on the walk. When the walk completes, exactly
// one block has next = NULL: to itself, since the old head now points
// somewhere and to's own link was written with a NULL next.
func UpdateBlockIndex(ctx context.Context, txn *store.Txn, to string, getPrevious PreviousHashFunc) error {
	head, err := txn.HeadOfChain()
	if err != nil {
		return fmt.Errorf("reconcile: read chain head: %w", err)
	}

	if head == to {
		return nil
	}

	var next *string
	cursor := to

	for {
		if err := txn.UpsertBlockLink(cursor, next); err != nil {
			return fmt.Errorf("reconcile: link block %s: %w", cursor, err)
		}

		if cursor == head {
			return nil
		}

		linked := cursor
		next = &linked

		prev, err := getPrevious(ctx, cursor)
		if err != nil {
			return fmt.Errorf("reconcile: resolve previous hash of %s: %w", cursor, err)
		}
		cursor = prev
	}
}
