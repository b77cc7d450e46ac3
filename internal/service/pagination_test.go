package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLatestMessagesPaging(t *testing.T) {
	f := newMessageFixture(t, testChatConfig())
	ctx := context.Background()

	alice := seedUser(t, f.db, "alice@example.com")
	bob := seedUser(t, f.db, "bob@example.com")
	chatID := f.createChat(t, alice, bob)

	ids := make([]uuid.UUID, 0, 5)
	for i := 0; i < 5; i++ {
		ids = append(ids, f.send(t, chatID, alice, "msg"))
		f.clock.Advance(time.Minute)
	}

	page1, cursor, err := f.messages.GetLatestMessages(ctx, chatID, bob, 2, "")
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.NotEmpty(t, cursor)
	assert.Equal(t, ids[4], page1[0].MessageID)
	assert.Equal(t, ids[3], page1[1].MessageID)

	page2, cursor, err := f.messages.GetLatestMessages(ctx, chatID, bob, 2, cursor)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	require.NotEmpty(t, cursor)
	assert.Equal(t, ids[2], page2[0].MessageID)
	assert.Equal(t, ids[1], page2[1].MessageID)

	page3, cursor, err := f.messages.GetLatestMessages(ctx, chatID, bob, 2, cursor)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, ids[0], page3[0].MessageID)
	assert.Empty(t, cursor, "a short page ends the sequence")
}

func TestGetLatestMessagesStableUnderOlderInsert(t *testing.T) {
	f := newMessageFixture(t, testChatConfig())
	ctx := context.Background()

	alice := seedUser(t, f.db, "alice@example.com")
	bob := seedUser(t, f.db, "bob@example.com")
	chatID := f.createChat(t, alice, bob)

	base := f.clock.Now()
	ids := make([]uuid.UUID, 0, 4)
	for i := 0; i < 4; i++ {
		f.clock.Advance(time.Minute)
		ids = append(ids, f.send(t, chatID, alice, "msg"))
	}

	page1, cursor, err := f.messages.GetLatestMessages(ctx, chatID, bob, 2, "")
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.NotEmpty(t, cursor)

	// A message backdated before the served page must not shift the next
	// page; the cursor pins the position in the sort order.
	f.clock.Set(base.Add(-time.Hour))
	backdated := f.send(t, chatID, alice, "late arrival")
	f.clock.Set(base.Add(time.Hour))

	page2, cursor, err := f.messages.GetLatestMessages(ctx, chatID, bob, 2, cursor)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, ids[1], page2[0].MessageID)
	assert.Equal(t, ids[0], page2[1].MessageID)

	page3, cursor, err := f.messages.GetLatestMessages(ctx, chatID, bob, 2, cursor)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, backdated, page3[0].MessageID)
	assert.Empty(t, cursor)
}

func TestGetLatestMessagesTieBreakOnID(t *testing.T) {
	f := newMessageFixture(t, testChatConfig())
	ctx := context.Background()

	alice := seedUser(t, f.db, "alice@example.com")
	bob := seedUser(t, f.db, "bob@example.com")
	chatID := f.createChat(t, alice, bob)

	// Same entered_at for every message; only the id breaks the tie.
	ids := map[uuid.UUID]bool{}
	for i := 0; i < 3; i++ {
		ids[f.send(t, chatID, alice, "same instant")] = true
	}

	seen := map[uuid.UUID]bool{}
	cursor := ""
	for {
		page, next, err := f.messages.GetLatestMessages(ctx, chatID, bob, 1, cursor)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, m := range page {
			assert.False(t, seen[m.MessageID], "message served twice")
			seen[m.MessageID] = true
		}
		if next == "" {
			break
		}
		cursor = next
	}
	assert.Equal(t, ids, seen, "every message served exactly once")
}

func TestGetLatestMessagesSizeDefaults(t *testing.T) {
	cfg := testChatConfig()
	cfg.DefaultPageSize = 2
	cfg.MaxPageSize = 3
	f := newMessageFixture(t, cfg)
	ctx := context.Background()

	alice := seedUser(t, f.db, "alice@example.com")
	bob := seedUser(t, f.db, "bob@example.com")
	chatID := f.createChat(t, alice, bob)

	for i := 0; i < 5; i++ {
		f.send(t, chatID, alice, "msg")
		f.clock.Advance(time.Second)
	}

	page, _, err := f.messages.GetLatestMessages(ctx, chatID, bob, 0, "")
	require.NoError(t, err)
	assert.Len(t, page, 2, "size 0 falls back to the default")

	page, _, err = f.messages.GetLatestMessages(ctx, chatID, bob, 50, "")
	require.NoError(t, err)
	assert.Len(t, page, 3, "oversized requests are capped")
}

func TestGetLatestMessagesMalformedCursor(t *testing.T) {
	f := newMessageFixture(t, testChatConfig())

	alice := seedUser(t, f.db, "alice@example.com")
	chatID := f.createChat(t, alice)

	_, _, err := f.messages.GetLatestMessages(context.Background(), chatID, alice, 10, "!!not-base64!!")
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestCursorRoundTrip(t *testing.T) {
	enteredAt := time.Date(2025, 6, 1, 12, 0, 0, 123456000, time.UTC)
	id := uuid.New()

	gotAt, gotID, err := decodeCursor(encodeCursor(enteredAt, id))
	require.NoError(t, err)
	assert.True(t, enteredAt.Equal(gotAt))
	assert.Equal(t, id, gotID)
}
