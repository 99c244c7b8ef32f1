package tokenstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/tokenstore"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	store, err := tokenstore.NewFileStore(t.TempDir())
	require.NoError(t, err)

	t.Run("empty dir is required", func(t *testing.T) {
		_, err := tokenstore.NewFileStore("  ")
		require.Error(t, err)
	})

	t.Run("missing token is nil not error", func(t *testing.T) {
		tok, err := store.GetToken(ctx, "missing")
		require.NoError(t, err)
		require.Nil(t, tok)
	})

	t.Run("set then get round trip", func(t *testing.T) {
		err := store.SetToken(ctx, "demo", &tokenstore.TokenData{
			JID:   "123@s.whatsapp.net",
			Extra: map[string]string{"device": "desk"},
		})
		require.NoError(t, err)

		tok, err := store.GetToken(ctx, "demo")
		require.NoError(t, err)
		require.NotNil(t, tok)
		require.Equal(t, "123@s.whatsapp.net", tok.JID)
		require.Equal(t, "desk", tok.Extra["device"])
		require.False(t, tok.UpdatedAt.IsZero())
	})

	t.Run("list sessions", func(t *testing.T) {
		require.NoError(t, store.SetToken(ctx, "second", nil))

		sessions, err := store.ListSessions(ctx)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"demo", "second"}, sessions)
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		require.NoError(t, store.RemoveToken(ctx, "demo"))
		require.NoError(t, store.RemoveToken(ctx, "demo"))

		tok, err := store.GetToken(ctx, "demo")
		require.NoError(t, err)
		require.Nil(t, tok)
	})

	t.Run("path traversal is neutralized", func(t *testing.T) {
		require.NoError(t, store.SetToken(ctx, "../escape", nil))

		sessions, err := store.ListSessions(ctx)
		require.NoError(t, err)
		require.NotContains(t, sessions, "../escape")
	})
}
