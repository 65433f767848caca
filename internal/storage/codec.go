package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"zenbudget/internal/core"
)

//go:embed seed/transactions.json
var seedTransactions []byte

// DefaultState is the state a first run starts from: the sample November
// 2025 transactions and nothing else.
func DefaultState() core.State {
	s := core.EmptyState()
	var txs []core.Transaction
	if err := json.Unmarshal(seedTransactions, &txs); err != nil {
		panic(fmt.Sprintf("storage: decode seed transactions: %v", err))
	}
	s.Transactions = txs
	return s
}

// EncodeState serialises the whole state.
func EncodeState(s core.State) ([]byte, error) {
	data, err := json.Marshal(s.Normalize())
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// DecodeState parses a stored blob. Snapshots written before categories or
// goals existed decode with those collections empty.
func DecodeState(data []byte) (core.State, error) {
	var s core.State
	if err := json.Unmarshal(data, &s); err != nil {
		return core.State{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return s.Normalize(), nil
}

// LoadState reads the state from store. A missing blob yields the default
// state. An unreadable or corrupt blob also yields the default state, along
// with an error the caller should surface as a notice.
func LoadState(ctx context.Context, store StateStore) (core.State, error) {
	data, err := store.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return DefaultState(), nil
	}
	if err != nil {
		return DefaultState(), fmt.Errorf("%w: load: %v", ErrCorruptState, err)
	}
	s, err := DecodeState(data)
	if err != nil {
		return DefaultState(), err
	}
	return s, nil
}

// SaveState encodes s and writes it to store.
func SaveState(ctx context.Context, store StateStore, s core.State) error {
	data, err := EncodeState(s)
	if err != nil {
		return err
	}
	if err := store.Save(ctx, data); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
