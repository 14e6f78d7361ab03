package store

import (
	"database/sql"
)

// Transaction returns the indexed transaction with the given id, or
// (nil, nil) if it is not indexed.
func (s *Store) Transaction(txid string) (*Transaction, error) {
	var exists int
	err := s.reader.QueryRow("SELECT 1 FROM tx WHERE txid = ?", txid).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("transaction", err)
	}

	inputs, err := s.inputsOf(txid)
	if err != nil {
		return nil, err
	}
	outputs, err := s.outputsOf(txid)
	if err != nil {
		return nil, err
	}

	return &Transaction{TxID: txid, Inputs: inputs, Outputs: outputs}, nil
}

// TransactionsOf returns every transaction that references address, either
// as an input's resolved source or as an output recipient.
func (s *Store) TransactionsOf(address string) ([]*Transaction, error) {
	rows, err := s.reader.Query(
		"SELECT txid FROM txs_by_address WHERE address = ?", address,
	)
	if err != nil {
		return nil, wrapErr("transactions of", err)
	}
	defer rows.Close()

	var txids []string
	for rows.Next() {
		var txid string
		if err := rows.Scan(&txid); err != nil {
			return nil, wrapErr("scan txs_by_address", err)
		}
		txids = append(txids, txid)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("transactions of", err)
	}

	txs := make([]*Transaction, 0, len(txids))
	for _, txid := range txids {
		inputs, err := s.inputsOf(txid)
		if err != nil {
			return nil, err
		}
		outputs, err := s.outputsOf(txid)
		if err != nil {
			return nil, err
		}
		txs = append(txs, &Transaction{TxID: txid, Inputs: inputs, Outputs: outputs})
	}
	return txs, nil
}

func (s *Store) inputsOf(txid string) ([]Input, error) {
	rows, err := s.reader.Query(
		"SELECT source_txid, source_idx FROM input WHERE txid = ?", txid,
	)
	if err != nil {
		return nil, wrapErr("inputs of", err)
	}
	defer rows.Close()

	inputs := make([]Input, 0)
	for rows.Next() {
		var in Input
		if err := rows.Scan(&in.ID, &in.Index); err != nil {
			return nil, wrapErr("scan input", err)
		}
		inputs = append(inputs, in)
	}
	return inputs, rows.Err()
}

func (s *Store) outputsOf(txid string) ([]Output, error) {
	rows, err := s.reader.Query(
		"SELECT address, value FROM output WHERE txid = ? ORDER BY idx", txid,
	)
	if err != nil {
		return nil, wrapErr("outputs of", err)
	}
	defer rows.Close()

	outputs := make([]Output, 0)
	for rows.Next() {
		var out Output
		if err := rows.Scan(&out.Address, &out.Value); err != nil {
			return nil, wrapErr("scan output", err)
		}
		outputs = append(outputs, out)
	}
	return outputs, rows.Err()
}

// LastApplied returns the hash of the most recently applied block, or
// false if the index has not applied anything yet. It reads via the
// pooled reader handle, for callers outside a write Txn (e.g.
// projector.ApplyInitialState deciding whether to seed genesis state).
func (s *Store) LastApplied() (string, bool, error) {
	var hash string
	err := s.reader.QueryRow("SELECT hash FROM last_block WHERE id = 0").Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr("last applied", err)
	}
	return hash, true, nil
}

// HeadOfChain returns the hash of the block with no recorded next link.
func (s *Store) HeadOfChain() (string, bool, error) {
	var hash string
	err := s.reader.QueryRow("SELECT hash FROM block WHERE next IS NULL").Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr("head of chain", err)
	}
	return hash, true, nil
}
