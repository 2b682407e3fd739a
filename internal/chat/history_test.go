package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryHistoryAppendAssignsContiguousSeq(t *testing.T) {
	h := NewMemoryHistory()
	ctx := context.Background()
	key := ConversationKey("u1:u2")

	for i := 1; i <= 5; i++ {
		seq, err := h.Append(ctx, key, &Message{
			ID:        fmt.Sprintf("m%d", i),
			Sender:    "u1",
			Recipient: "u2",
			Text:      fmt.Sprintf("msg %d", i),
			CreatedAt: time.Now(),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(i), seq)
	}
}

func TestMemoryHistoryBacklogIsAppendOrder(t *testing.T) {
	h := NewMemoryHistory()
	ctx := context.Background()
	key := ConversationKey("u1:u2")

	for i := 1; i <= 3; i++ {
		_, err := h.Append(ctx, key, &Message{ID: fmt.Sprintf("m%d", i), Text: fmt.Sprintf("msg %d", i)})
		require.NoError(t, err)
	}

	backlog, err := h.Backlog(ctx, key)
	require.NoError(t, err)
	require.Len(t, backlog, 3)
	for i, msg := range backlog {
		assert.Equal(t, int64(i+1), msg.Seq)
		assert.Equal(t, fmt.Sprintf("m%d", i+1), msg.ID)
		assert.Equal(t, key, msg.ConversationKey)
	}
}

func TestMemoryHistoryBacklogRestartable(t *testing.T) {
	h := NewMemoryHistory()
	ctx := context.Background()
	key := ConversationKey("u1:u2")

	_, err := h.Append(ctx, key, &Message{ID: "m1", Text: "first"})
	require.NoError(t, err)

	first, err := h.Backlog(ctx, key)
	require.NoError(t, err)

	_, err = h.Append(ctx, key, &Message{ID: "m2", Text: "second"})
	require.NoError(t, err)

	second, err := h.Backlog(ctx, key)
	require.NoError(t, err)

	// Second read returns the same prefix plus the new append.
	require.Len(t, second, 2)
	assert.Equal(t, first[0], second[0])
	assert.Equal(t, "m2", second[1].ID)
}

func TestMemoryHistoryUnknownKeyIsEmptyNotError(t *testing.T) {
	h := NewMemoryHistory()

	backlog, err := h.Backlog(context.Background(), "never:used")
	require.NoError(t, err)
	assert.Empty(t, backlog)
}

func TestMemoryHistoryBacklogCopyIsolated(t *testing.T) {
	h := NewMemoryHistory()
	ctx := context.Background()
	key := ConversationKey("u1:u2")

	_, err := h.Append(ctx, key, &Message{ID: "m1", Text: "original"})
	require.NoError(t, err)

	backlog, err := h.Backlog(ctx, key)
	require.NoError(t, err)
	backlog[0].Text = "mutated"

	again, err := h.Backlog(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Text)
}

func TestMemoryHistoryConcurrentAppendsNoGaps(t *testing.T) {
	h := NewMemoryHistory()
	ctx := context.Background()
	key := ConversationKey("u1:u2")

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := h.Append(ctx, key, &Message{
					ID:   fmt.Sprintf("w%d-m%d", w, i),
					Text: "concurrent",
				})
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	backlog, err := h.Backlog(ctx, key)
	require.NoError(t, err)
	require.Len(t, backlog, writers*perWriter)
	for i, msg := range backlog {
		assert.Equal(t, int64(i+1), msg.Seq, "sequence numbers must be contiguous")
	}
}

func TestMemoryHistoryKeysAreIndependent(t *testing.T) {
	h := NewMemoryHistory()
	ctx := context.Background()

	seqA, err := h.Append(ctx, "a:b", &Message{ID: "m1"})
	require.NoError(t, err)
	seqB, err := h.Append(ctx, "c:d", &Message{ID: "m2"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), seqA)
	assert.Equal(t, int64(1), seqB)
}
