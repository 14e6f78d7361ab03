package cardano

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// TxID computes the canonical transaction id: the hex-encoded Blake2b-256
// digest of the transaction's inputs and outputs in order. This mirrors how
// the upstream chain derives a transaction's hash from its body.
func TxID(tx Tx) string {
	var buf bytes.Buffer
	for _, in := range tx.Inputs {
		buf.WriteString(in.SourceTxID)
		binary.Write(&buf, binary.BigEndian, in.Index)
	}
	for _, out := range tx.Outputs {
		buf.WriteString(out.Address)
		binary.Write(&buf, binary.BigEndian, out.Value)
	}

	sum := blake2b.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}
