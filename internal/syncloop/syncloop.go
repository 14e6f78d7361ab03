// Package syncloop drives the steady-state synchronization cycle: poll the
// upstream tip, extend the block index back to it, then apply every newly
// reachable block in one transaction, repeating on an interval.
package syncloop

import (
	"context"
	"fmt"
	"time"

	"github.com/input-output-hk/cardano-txindexer/internal/cardano"
	"github.com/input-output-hk/cardano-txindexer/internal/forward"
	"github.com/input-output-hk/cardano-txindexer/internal/reconcile"
	"github.com/input-output-hk/cardano-txindexer/internal/store"
	"github.com/input-output-hk/cardano-txindexer/internal/upstream"
	"github.com/input-output-hk/cardano-txindexer/pkg/logging"
)

// Loop is the steady-state sync driver.
type Loop struct {
	Store           *store.Store
	Upstream        upstream.Upstream
	RefreshInterval time.Duration
	// OnApplied is notified with the new chain head after each successful
	// iteration that applied at least one block. It may be nil.
	OnApplied func(hash string)

	log *logging.Logger
}

// New builds a Loop ready to Run.
func New(s *store.Store, u upstream.Upstream, refreshInterval time.Duration) *Loop {
	return &Loop{
		Store:           s,
		Upstream:        u,
		RefreshInterval: refreshInterval,
		log:             logging.GetDefault().Component("sync"),
	}
}

// Run executes iterations until ctx is cancelled. A failed iteration is
// returned immediately; RunWithRestart is what gives the loop its
// crash-and-retry behavior.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := l.iterate(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.RefreshInterval):
		}
	}
}

// RunWithRestart runs the loop, restarting it after a fixed backoff if an
// iteration returns an error, until ctx is cancelled. This mirrors the
// upstream bridge's own transient-failure behavior: a single bad fetch
// should not take the indexer down.
func (l *Loop) RunWithRestart(ctx context.Context, backoff time.Duration) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := l.Run(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}

		l.log.Error("sync loop exited, restarting", "err", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

func (l *Loop) iterate(ctx context.Context) error {
	tip, err := l.Upstream.Tip(ctx)
	if err != nil {
		return fmt.Errorf("syncloop: fetch tip: %w", err)
	}
	l.log.Debug("tip fetched", "hash", tip.Hash, "epoch", tip.Epoch)

	// Reconcile and forward-apply each run in their own Txn: a crash between the two phases
	// leaves the block index extended but LastApplied unmoved, which is
	// safe to resume from on the next tick.
	if err := l.updateBlockIndex(ctx, tip.Hash); err != nil {
		return fmt.Errorf("syncloop: update block index: %w", err)
	}

	applied, err := l.applyForward(ctx)
	if err != nil {
		return fmt.Errorf("syncloop: forward apply: %w", err)
	}

	l.log.Info("sync iteration complete", "blocks_applied", applied, "tip", tip.Hash)

	if applied > 0 && l.OnApplied != nil {
		l.OnApplied(tip.Hash)
	}

	return nil
}

func (l *Loop) updateBlockIndex(ctx context.Context, tipHash string) error {
	txn, err := l.Store.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer txn.Rollback()

	getPrevious := func(ctx context.Context, hash string) (string, error) {
		raw, err := l.Upstream.Block(ctx, hash)
		if err != nil {
			return "", err
		}
		block, err := cardano.DecodeBlock(raw)
		if err != nil {
			return "", err
		}
		return block.Header.PreviousHash, nil
	}

	if err := reconcile.UpdateBlockIndex(ctx, txn, tipHash, getPrevious); err != nil {
		return err
	}

	return txn.Commit()
}

func (l *Loop) applyForward(ctx context.Context) (int, error) {
	txn, err := l.Store.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer txn.Rollback()

	fetchBlock := func(ctx context.Context, hash string) (*cardano.Block, error) {
		raw, err := l.Upstream.Block(ctx, hash)
		if err != nil {
			return nil, err
		}
		return cardano.DecodeBlock(raw)
	}

	applied, err := forward.Apply(ctx, txn, fetchBlock)
	if err != nil {
		return applied, err
	}

	if err := txn.Commit(); err != nil {
		return applied, err
	}

	return applied, nil
}
