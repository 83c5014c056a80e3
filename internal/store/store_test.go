// ABOUTME: Behavior shared by SQLiteStore and MockStore
// ABOUTME: Both implementations run the same title and ordering checks

package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/2389/coven-chat/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newTestStore(t)) })
	t.Run("mock", func(t *testing.T) { fn(t, NewMockStore()) })
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Hello", Title("Hello"))
	assert.Equal(t, "First line", Title("\n  First line  \nsecond"))
	assert.Empty(t, Title("   \n\t"))

	long := strings.Repeat("é", 80)
	assert.Equal(t, strings.Repeat("é", 60), Title(long))
}

func TestStore_TitleComesFromFirstUserTurn(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		mustSave(t, s, "r1", chat.NewTurn(chat.RoleSystem, "system prompt"))
		c, err := s.GetConversation(ctx, "r1")
		require.NoError(t, err)
		assert.Empty(t, c.Title, "non-user turns do not name the conversation")

		mustSave(t, s, "r1", chat.NewTurn(chat.RoleUser, "Plan a trip to Lisbon\nwith details"))
		mustSave(t, s, "r1", chat.NewTurn(chat.RoleUser, "Something else"))

		c, err = s.GetConversation(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, "Plan a trip to Lisbon", c.Title)
	})
}

func TestStore_ListTurnsChronologicalWithLimit(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

		for i, content := range []string{"one", "two", "three", "four"} {
			mustSave(t, s, "r1", turnAt(chat.RoleUser, content, base.Add(time.Duration(i)*time.Second)))
		}
		mustSave(t, s, "r2", turnAt(chat.RoleUser, "other room", base))

		all, err := s.ListTurns(ctx, "r1", 0)
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, "one", all[0].Content)
		assert.Equal(t, "four", all[3].Content)

		latest, err := s.ListTurns(ctx, "r1", 2)
		require.NoError(t, err)
		require.Len(t, latest, 2)
		assert.Equal(t, "three", latest[0].Content)
		assert.Equal(t, "four", latest[1].Content)

		none, err := s.ListTurns(ctx, "missing", 0)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestMockStore_SaveErr(t *testing.T) {
	m := NewMockStore()
	m.SaveErr = assert.AnError

	err := m.SaveTurn(context.Background(), "r1", chat.NewTurn(chat.RoleUser, "x"))
	assert.ErrorIs(t, err, assert.AnError)

	_, err = m.GetConversation(context.Background(), "r1")
	assert.ErrorIs(t, err, ErrNotFound)
}
