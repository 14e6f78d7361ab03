package upstream

import "context"

// Fake is an in-memory Upstream for tests: canned blocks keyed by hash and
// canned epoch packs keyed by epoch id.
type Fake struct {
	TipHeader *BlockHeader
	Blocks    map[string][]byte
	Epochs    map[uint64][]byte
}

// NewFake returns an empty Fake ready for tests to populate.
func NewFake() *Fake {
	return &Fake{
		Blocks: make(map[string][]byte),
		Epochs: make(map[uint64][]byte),
	}
}

var _ Upstream = (*Fake)(nil)

func (f *Fake) Tip(ctx context.Context) (*BlockHeader, error) {
	if f.TipHeader == nil {
		return nil, ErrNotFound
	}
	return f.TipHeader, nil
}

func (f *Fake) Block(ctx context.Context, hash string) ([]byte, error) {
	raw, ok := f.Blocks[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return raw, nil
}

func (f *Fake) Epoch(ctx context.Context, id uint64) ([]byte, error) {
	raw, ok := f.Epochs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return raw, nil
}
