package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"bizassist/pkg"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func turn(role, text string) pkg.Turn {
	return pkg.Turn{Role: role, Text: text, Timestamp: time.Now().UTC()}
}

// conversationStoreContract runs the same checks against every implementation
func conversationStoreContract(t *testing.T, store ConversationStore) {
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	_, err = store.Append(ctx, "missing", pkg.ConversationUpdate{Turns: []pkg.Turn{turn(pkg.RoleUser, "hi")}})
	assert.ErrorIs(t, err, ErrConversationNotFound)

	require.NoError(t, store.Create(ctx, &pkg.ConversationState{ID: "c1", BusinessID: "biz", UserName: "Ann"}))
	assert.ErrorIs(t, store.Create(ctx, &pkg.ConversationState{ID: "c1", BusinessID: "biz"}), ErrConversationExists)

	state, err := store.Append(ctx, "c1", pkg.ConversationUpdate{
		Turns:          []pkg.Turn{turn(pkg.RoleUser, "book monday"), turn(pkg.RoleAssistant, "shall I confirm?")},
		LastIntent:     pkg.IntentAppointment,
		AppointmentIDs: []string{"apt-1"},
	})
	require.NoError(t, err)
	assert.Len(t, state.Turns, 2)

	_, err = store.Append(ctx, "c1", pkg.ConversationUpdate{
		Turns:          []pkg.Turn{turn(pkg.RoleUser, "yes"), turn(pkg.RoleAssistant, "confirmed")},
		AppointmentIDs: []string{"apt-1"},
	})
	require.NoError(t, err)

	state, err = store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "biz", state.BusinessID)
	assert.Equal(t, "Ann", state.UserName)
	assert.Equal(t, pkg.IntentAppointment, state.LastIntent)
	assert.Equal(t, []string{"apt-1"}, state.AppointmentIDs)
	require.Len(t, state.Turns, 4)
	assert.Equal(t, "book monday", state.Turns[0].Text)
	assert.Equal(t, "confirmed", state.Turns[3].Text)
	assert.False(t, state.CreatedAt.IsZero())

	// a touched appointment keeps its place
	_, err = store.Append(ctx, "c1", pkg.ConversationUpdate{AppointmentIDs: []string{"apt-2"}})
	require.NoError(t, err)
	state, err = store.Append(ctx, "c1", pkg.ConversationUpdate{AppointmentIDs: []string{"apt-1", "apt-3", "apt-3"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"apt-1", "apt-2", "apt-3"}, state.AppointmentIDs)
}

func concurrentAppends(t *testing.T, store ConversationStore) {
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &pkg.ConversationState{ID: "busy", BusinessID: "biz"}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Append(ctx, "busy", pkg.ConversationUpdate{Turns: []pkg.Turn{
				turn(pkg.RoleUser, fmt.Sprintf("q%d", i)),
				turn(pkg.RoleAssistant, fmt.Sprintf("a%d", i)),
			}})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	state, err := store.Get(ctx, "busy")
	require.NoError(t, err)
	require.Len(t, state.Turns, 40)
	// each append's pair stays adjacent
	for i := 0; i < 40; i += 2 {
		assert.Equal(t, "a"+state.Turns[i].Text[1:], state.Turns[i+1].Text)
	}
}

func TestMemoryConversationStore(t *testing.T) {
	conversationStoreContract(t, NewMemoryConversationStore(0))
	concurrentAppends(t, NewMemoryConversationStore(0))
}

func TestMemoryConversationStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConversationStore(0)
	require.NoError(t, store.Create(ctx, &pkg.ConversationState{ID: "c1", BusinessID: "biz"}))

	state, err := store.Append(ctx, "c1", pkg.ConversationUpdate{Turns: []pkg.Turn{turn(pkg.RoleUser, "hi")}})
	require.NoError(t, err)
	state.Turns[0].Text = "mutated"

	again, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "hi", again.Turns[0].Text)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryConversationStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConversationStore(time.Millisecond)
	require.NoError(t, store.Create(ctx, &pkg.ConversationState{ID: "c1", BusinessID: "biz"}))

	time.Sleep(5 * time.Millisecond)
	_, err := store.Get(ctx, "c1")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestMemoryConversationStoreConcurrentReadsAndAppends(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConversationStore(time.Hour)
	require.NoError(t, store.Create(ctx, &pkg.ConversationState{ID: "c1", BusinessID: "biz"}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := store.Append(ctx, "c1", pkg.ConversationUpdate{
				Turns:          []pkg.Turn{turn(pkg.RoleUser, fmt.Sprintf("msg %d", i))},
				AppointmentIDs: []string{fmt.Sprintf("appt-%d", i%5)},
			})
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			state, err := store.Get(ctx, "c1")
			if assert.NoError(t, err) {
				assert.LessOrEqual(t, len(state.AppointmentIDs), 5)
			}
		}()
	}
	wg.Wait()

	state, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, state.Turns, 50)
	assert.Len(t, state.AppointmentIDs, 5)
}

func TestMemoryConversationStoreExpiryKeepsRefreshedConversation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConversationStore(20 * time.Millisecond)
	require.NoError(t, store.Create(ctx, &pkg.ConversationState{ID: "c1", BusinessID: "biz"}))

	for i := 0; i < 5; i++ {
		time.Sleep(5 * time.Millisecond)
		_, err := store.Append(ctx, "c1", pkg.ConversationUpdate{Turns: []pkg.Turn{turn(pkg.RoleUser, "still here")}})
		require.NoError(t, err)
	}
	state, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, state.Turns, 5)
}

func newRedisStore(t *testing.T) (*RedisConversationStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisConversationStore(client, time.Hour), mr
}

func TestRedisConversationStore(t *testing.T) {
	store, _ := newRedisStore(t)
	conversationStoreContract(t, store)

	store, _ = newRedisStore(t)
	concurrentAppends(t, store)
}

func TestRedisConversationStoreTTL(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &pkg.ConversationState{ID: "c1", BusinessID: "biz"}))

	ttl, err := store.TTL(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, ttl)

	mr.FastForward(2 * time.Hour)
	_, err = store.Get(ctx, "c1")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	_, err = NewRedisClient(context.Background(), "")
	assert.Error(t, err)
	_, err = NewRedisClient(context.Background(), "://bad")
	assert.Error(t, err)
}
