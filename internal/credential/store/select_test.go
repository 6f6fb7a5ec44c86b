package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"semear/internal/credential/store"
	"semear/internal/credential/store/mocks"
	"semear/pkg/platform/sentinel"
)

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Store

func TestSelect(t *testing.T) {
	ctx := context.Background()

	t.Run("first healthy wins", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		postgres := mocks.NewMockStore(ctrl)
		redis := mocks.NewMockStore(ctrl)
		postgres.EXPECT().Health(gomock.Any()).Return(errors.New("connection refused"))
		redis.EXPECT().Health(gomock.Any()).Return(nil)

		got, name, err := store.Select(ctx, nil,
			store.Candidate{Name: "postgres", Store: postgres},
			store.Candidate{Name: "redis", Store: redis},
			store.Candidate{Name: "memory", Store: store.NewMemory()},
		)
		require.NoError(t, err)
		assert.Equal(t, "redis", name)
		assert.Same(t, redis, got)
	})

	t.Run("nil candidates are skipped", func(t *testing.T) {
		mem := store.NewMemory()
		got, name, err := store.Select(ctx, nil,
			store.Candidate{Name: "postgres"},
			store.Candidate{Name: "memory", Store: mem},
		)
		require.NoError(t, err)
		assert.Equal(t, "memory", name)
		assert.Same(t, mem, got)
	})

	t.Run("none healthy", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		postgres := mocks.NewMockStore(ctrl)
		postgres.EXPECT().Health(gomock.Any()).Return(errors.New("down"))

		_, _, err := store.Select(ctx, nil, store.Candidate{Name: "postgres", Store: postgres})
		require.ErrorIs(t, err, store.ErrNoHealthyStore)
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
		assert.ErrorContains(t, err, "postgres: down")
	})
}
