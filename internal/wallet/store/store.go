// Package store persists wallet receipts.
package store

import (
	"context"
	"slices"

	"semear/internal/wallet"
)

// Put fails with wallet.ErrAlreadySaved when the ID exists; Get and Delete
// fail with wallet.ErrNotFound for unknown IDs. List is newest first.
type Store interface {
	Put(ctx context.Context, r wallet.Receipt) error
	Get(ctx context.Context, id string) (wallet.Receipt, error)
	List(ctx context.Context) ([]wallet.Receipt, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

func sortNewestFirst(rs []wallet.Receipt) {
	slices.SortStableFunc(rs, func(a, b wallet.Receipt) int {
		return b.SavedAt.Compare(a.SavedAt)
	})
}
