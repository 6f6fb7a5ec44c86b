// Package store persists issued credentials. Three interchangeable backends
// share one interface; the process picks one at startup with Select.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"semear/internal/credential"
	"semear/internal/did"
	"semear/internal/identity"
	"semear/pkg/platform/sentinel"
)

// Store is the issuer-side credential repository. Records are append-only.
type Store interface {
	Save(ctx context.Context, rec credential.Record) error
	FindByID(ctx context.Context, id credential.ID) (credential.Record, error)
	FindByRef(ctx context.Context, ref credential.Ref) (credential.Record, error)
	FindByNumber(ctx context.Context, n identity.Number) ([]credential.Record, error)
	FindBySubjects(ctx context.Context, subjects []did.DID) ([]credential.Record, error)
	Stats(ctx context.Context) (credential.Stats, error)
	Health(ctx context.Context) error
}

// Candidate is a named backend offered to Select.
type Candidate struct {
	Name  string
	Store Store
}

// ErrNoHealthyStore is returned when every candidate fails its health check.
var ErrNoHealthyStore = fmt.Errorf("no healthy credential store: %w", sentinel.ErrUnavailable)

// Select returns the first candidate whose health check passes. Nil stores are
// skipped so optional backends can be passed unconditionally.
func Select(ctx context.Context, logger *slog.Logger, candidates ...Candidate) (Store, string, error) {
	var errs []error
	for _, c := range candidates {
		if c.Store == nil {
			continue
		}
		if err := c.Store.Health(ctx); err != nil {
			if logger != nil {
				logger.WarnContext(ctx, "credential store unhealthy, trying next", "store", c.Name, "error", err)
			}
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
			continue
		}
		if logger != nil {
			logger.InfoContext(ctx, "credential store selected", "store", c.Name)
		}
		return c.Store, c.Name, nil
	}
	return nil, "", errors.Join(append([]error{ErrNoHealthyStore}, errs...)...)
}

func sortNewestFirst(recs []credential.Record) {
	slices.SortFunc(recs, func(a, b credential.Record) int {
		return b.IssuedAt.Compare(a.IssuedAt)
	})
}
