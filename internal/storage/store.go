// Package storage persists the application state as a single JSON blob
// under a fixed key.
package storage

import (
	"context"
	"errors"
)

// StateKey is the fixed key the state blob is stored under.
const StateKey = "zenbudget_data"

var (
	ErrNotFound     = errors.New("state not found")
	ErrCorruptState = errors.New("stored state is corrupt")
)

// StateStore reads and writes the raw state blob.
type StateStore interface {
	// Load returns the stored blob or ErrNotFound.
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}
