// Package cardano defines the chain types the indexer consumes. The real
// block decoder (CBOR, epoch pack framing, genesis parsing) is an external
// collaborator this package does not own; DecodeBlock and ReadPackedEpoch
// are minimal stand-ins that give the rest of the indexer something
// concrete to compile and test against.
package cardano

import (
	"encoding/binary"
	"fmt"
	"io"
)

// BlockDate identifies a block's position in the chain. A Boundary (epoch
// genesis) block carries a nil Slot.
type BlockDate struct {
	Epoch uint64
	Slot  *uint64
}

// IsBoundary reports whether this date names an epoch-boundary block.
func (d BlockDate) IsBoundary() bool {
	return d.Slot == nil
}

// BlockHeader carries the fields needed to extend the forward block index.
type BlockHeader struct {
	Hash         string
	PreviousHash string
	Date         BlockDate
}

// TxIn references the output it spends.
type TxIn struct {
	SourceTxID string
	Index      uint32
}

// TxOut is a single transaction output.
type TxOut struct {
	Address string
	Value   uint64
}

// Tx is a decoded transaction body. DecodeBlock leaves ID empty; the
// caller (the projector) fills it in with TxID.
type Tx struct {
	ID      string
	Inputs  []TxIn
	Outputs []TxOut
}

// Block is a decoded block: a header plus the transactions it carries.
// DecodeBlock reads the transaction list of a boundary block the same way
// as for any other block.
type Block struct {
	Header BlockHeader
	Txs    []Tx
}

// DecodeBlock parses the length-prefixed, field-delimited framing used by
// ReadPackedEpoch and the HTTP bridge's block/{hash} endpoint. It is not a
// CBOR decoder: it stands in for the genesis-data parser this system
// assumes is supplied externally.
func DecodeBlock(raw []byte) (*Block, error) {
	r := newFrameReader(raw)

	hash, err := r.readString()
	if err != nil {
		return nil, fmt.Errorf("cardano: decode block hash: %w", err)
	}
	prevHash, err := r.readString()
	if err != nil {
		return nil, fmt.Errorf("cardano: decode block prev hash: %w", err)
	}
	epoch, err := r.readUint64()
	if err != nil {
		return nil, fmt.Errorf("cardano: decode block epoch: %w", err)
	}
	hasSlot, err := r.readByte()
	if err != nil {
		return nil, fmt.Errorf("cardano: decode block slot flag: %w", err)
	}
	var slot *uint64
	if hasSlot != 0 {
		s, err := r.readUint64()
		if err != nil {
			return nil, fmt.Errorf("cardano: decode block slot: %w", err)
		}
		slot = &s
	}

	txCount, err := r.readUint32()
	if err != nil {
		return nil, fmt.Errorf("cardano: decode tx count: %w", err)
	}

	txs := make([]Tx, 0, txCount)
	for i := uint32(0); i < txCount; i++ {
		tx, err := decodeTx(r)
		if err != nil {
			return nil, fmt.Errorf("cardano: decode tx %d: %w", i, err)
		}
		txs = append(txs, *tx)
	}

	return &Block{
		Header: BlockHeader{
			Hash:         hash,
			PreviousHash: prevHash,
			Date:         BlockDate{Epoch: epoch, Slot: slot},
		},
		Txs: txs,
	}, nil
}

func decodeTx(r *frameReader) (*Tx, error) {
	inCount, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	ins := make([]TxIn, 0, inCount)
	for i := uint32(0); i < inCount; i++ {
		srcTx, err := r.readString()
		if err != nil {
			return nil, err
		}
		idx, err := r.readUint32()
		if err != nil {
			return nil, err
		}
		ins = append(ins, TxIn{SourceTxID: srcTx, Index: idx})
	}

	outCount, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	outs := make([]TxOut, 0, outCount)
	for i := uint32(0); i < outCount; i++ {
		addr, err := r.readString()
		if err != nil {
			return nil, err
		}
		value, err := r.readUint64()
		if err != nil {
			return nil, err
		}
		outs = append(outs, TxOut{Address: addr, Value: value})
	}

	return &Tx{Inputs: ins, Outputs: outs}, nil
}

// ReadPackedEpoch reads the length-prefixed sequence of raw block bytes a
// bridge epoch pack is made of, invoking fn for each one in order. It stops
// cleanly at EOF between frames, the normal end of the stream; a truncated
// length prefix or frame body is returned as an error.
func ReadPackedEpoch(r io.Reader, fn func(raw []byte) error) error {
	for {
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("cardano: read epoch frame length: %w", err)
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("cardano: read epoch frame body: %w", err)
		}
		if err := fn(buf); err != nil {
			return err
		}
	}
}

type frameReader struct {
	buf []byte
	pos int
}

func newFrameReader(buf []byte) *frameReader {
	return &frameReader{buf: buf}
}

func (r *frameReader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *frameReader) readUint32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *frameReader) readUint64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *frameReader) readString() (string, error) {
	n, err := r.readUint32()
	if err != nil {
		return "", err
	}
	if r.pos+int(n) > len(r.buf) {
		return "", io.ErrUnexpectedEOF
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}
