package watchlist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/findosh/coinwatch/internal/apperr"
	"github.com/findosh/coinwatch/internal/models"
	"github.com/findosh/coinwatch/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Service, uuid.UUID) {
	t.Helper()
	store := storage.NewMemoryStore()
	u := models.NewUser("w@example.com", "", "hash")
	require.NoError(t, store.Create(context.Background(), u))
	return NewService(store, time.Second, nil), u.ID
}

func TestAdd_KeepsInsertionOrder(t *testing.T) {
	svc, id := setup(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, id, "BTC", "Bitcoin")
	require.NoError(t, err)
	items, err := svc.Add(ctx, id, "ETH", "")
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, "BTC", items[0].Symbol)
	assert.Equal(t, "Bitcoin", items[0].DisplayName)
	assert.Equal(t, "ETH", items[1].Symbol)
	assert.False(t, items[1].AddedAt.IsZero())
}

func TestAdd_DuplicateIgnoresCase(t *testing.T) {
	svc, id := setup(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, id, "BTC", "")
	require.NoError(t, err)

	_, err = svc.Add(ctx, id, "btc", "")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	items, err := svc.List(ctx, id)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestAdd_BlankSymbol(t *testing.T) {
	svc, id := setup(t)
	_, err := svc.Add(context.Background(), id, "   ", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestAdd_UnknownUser(t *testing.T) {
	svc, _ := setup(t)
	_, err := svc.Add(context.Background(), uuid.New(), "BTC", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRemove_IsIdempotent(t *testing.T) {
	svc, id := setup(t)
	ctx := context.Background()

	items, err := svc.Remove(ctx, id, "doesnotexist")
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = svc.Add(ctx, id, "SOL", "")
	require.NoError(t, err)
	items, err = svc.Remove(ctx, id, "sol")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestList_ReturnsCopy(t *testing.T) {
	svc, id := setup(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, id, "ADA", "")
	require.NoError(t, err)

	items, err := svc.List(ctx, id)
	require.NoError(t, err)
	items[0].Symbol = "MUTATED"

	again, err := svc.List(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ADA", again[0].Symbol)
}

func TestAdd_ConcurrentSameSymbol(t *testing.T) {
	svc, id := setup(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, conflicts int

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Add(ctx, id, "ETH", "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperr.KindOf(err) == apperr.Conflict:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, conflicts)

	items, err := svc.List(ctx, id)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
