// Package upstream fetches chain data from a trusted HTTP bridge: the tip
// header, individual blocks by hash, and whole epoch packs.
package upstream

import (
	"context"
	"errors"
)

// Errors returned by an Upstream implementation.
var (
	ErrNotFound    = errors.New("upstream: not found")
	ErrRateLimited = errors.New("upstream: rate limited")
)

// Upstream is the capability the sync loop and bulk ingestor need from the
// chain source.
type Upstream interface {
	// Tip returns the current chain tip header.
	Tip(ctx context.Context) (*BlockHeader, error)
	// Block fetches a single block by its hash.
	Block(ctx context.Context, hash string) ([]byte, error)
	// Epoch fetches the packed, length-prefixed block stream for a whole
	// stable epoch.
	Epoch(ctx context.Context, id uint64) ([]byte, error)
}

// BlockHeader is the minimal tip shape the sync loop reasons about: enough
// to derive the first unstable epoch and detect whether a new tip has
// appeared since the last poll.
type BlockHeader struct {
	Hash  string
	Epoch uint64
	// Slot is nil for an epoch-boundary block.
	Slot *uint64
}

// FirstUnstableEpoch returns the earliest epoch that may still be
// reorganized, given the tip and a network's stability depth (in slots).
// A boundary-block tip, or one within stabilityDepth slots of its epoch's
// start, pulls the boundary back by one epoch.
func FirstUnstableEpoch(tip *BlockHeader, stabilityDepth uint64) uint64 {
	delta := uint64(0)
	if tip.Slot == nil || *tip.Slot <= stabilityDepth {
		delta = 1
	}
	if tip.Epoch < delta {
		return 0
	}
	return tip.Epoch - delta
}
