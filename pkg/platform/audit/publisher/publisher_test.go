package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "semear/pkg/platform/audit"
	"semear/pkg/platform/audit/store/memory"
)

const subject = "did:key:zexQDrsXfJvtkBwQeE_Ab6K175gMgVgvPtH08jyTiRig"

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		Subject: subject,
		Action:  audit.ActionCredentialIssued,
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), subject)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionCredentialIssued, events[0].Action)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			Subject: subject,
			Action:  audit.ActionCredentialVerified,
		})
		require.NoError(t, err)
	}

	pub.Close()
	pub.Close()

	events, err := store.ListBySubject(context.Background(), subject)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

type blockingStore struct {
	release chan struct{}
}

func (s *blockingStore) Append(context.Context, audit.Event) error {
	<-s.release
	return nil
}

func TestPublisher_BufferFull(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	pub := NewPublisher(store, WithAsyncBuffer(1))

	// first event is picked up by the drain goroutine and blocks there
	require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: audit.ActionCredentialIssued}))
	require.Eventually(t, func() bool { return len(pub.buffer) == 0 }, time.Second, time.Millisecond)

	require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: audit.ActionCredentialIssued}))
	err := pub.Emit(context.Background(), audit.Event{Action: audit.ActionCredentialIssued})
	require.ErrorIs(t, err, ErrBufferFull)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = pub.Emit(ctx, audit.Event{Action: audit.ActionCredentialIssued})
	require.ErrorIs(t, err, context.Canceled)

	close(store.release)
	pub.Close()
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	before := time.Now()
	require.NoError(t, pub.Emit(context.Background(), audit.Event{Subject: subject, Action: audit.ActionCredentialIssued}))
	after := time.Now()

	events, err := pub.List(context.Background(), subject)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.Before(before))
	assert.False(t, events[0].Timestamp.After(after))
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	customTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		Subject:   subject,
		Action:    audit.ActionCredentialIssued,
		Timestamp: customTime,
	}))

	events, err := pub.List(context.Background(), subject)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, customTime, events[0].Timestamp)
}

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error {
	return errors.New("broker unreachable")
}

func TestPublisher_SyncPropagatesStoreError(t *testing.T) {
	pub := NewPublisher(failingStore{})
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{Action: audit.ActionCredentialIssued})
	require.EqualError(t, err, "broker unreachable")

	_, err = pub.List(context.Background(), subject)
	require.ErrorIs(t, err, ErrNotListable)
}

func TestPublisher_ConcurrentEmit(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(64))

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pub.Emit(context.Background(), audit.Event{Subject: subject, Action: audit.ActionCredentialVerified})
		}()
	}
	wg.Wait()
	pub.Close()

	events, err := store.ListRecent(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, events, 32)
}
