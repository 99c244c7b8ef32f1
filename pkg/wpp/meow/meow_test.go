package meow

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	qrCode "github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"

	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/wpp"
)

func TestComposeJID(t *testing.T) {
	t.Run("plain phone number", func(t *testing.T) {
		jid := composeJID("5511999998888")
		require.Equal(t, "5511999998888", jid.User)
		require.Equal(t, types.DefaultUserServer, jid.Server)
	})

	t.Run("legacy chat suffix is stripped", func(t *testing.T) {
		jid := composeJID("967712345678@c.us")
		require.Equal(t, "967712345678", jid.User)
		require.Equal(t, types.DefaultUserServer, jid.Server)
	})

	t.Run("full jid passes through", func(t *testing.T) {
		jid := composeJID("5511999998888@s.whatsapp.net")
		require.Equal(t, "5511999998888", jid.User)
		require.Equal(t, types.DefaultUserServer, jid.Server)
	})

	t.Run("group ids resolve to the group server", func(t *testing.T) {
		jid := composeJID("123456789-987654@g.us")
		require.Equal(t, types.GroupServer, jid.Server)
	})

	t.Run("leading plus is dropped", func(t *testing.T) {
		jid := composeJID("+5511999998888")
		require.Equal(t, "5511999998888", jid.User)
	})
}

func TestDecomposeJID(t *testing.T) {
	require.Equal(t, "967712345678", decomposeJID("967712345678@c.us"))
	require.Equal(t, "967712345678", decomposeJID("+967712345678"))
	require.Equal(t, "967712345678", decomposeJID(" 967712345678 "))
}

func TestConsumeQRRoundTrip(t *testing.T) {
	var got []wpp.QRCode
	c := &client{
		session: "demo",
		opts: wpp.CreateOptions{
			CatchQR: func(qr wpp.QRCode) { got = append(got, qr) },
		},
	}

	ch := make(chan whatsmeow.QRChannelItem, 2)
	ch <- whatsmeow.QRChannelItem{Event: "code", Code: "pairing-ref-1", Timeout: 20 * time.Second}
	ch <- whatsmeow.QRChannelSuccess
	close(ch)

	c.consumeQR(func() {}, ch)

	require.Len(t, got, 1)
	require.Equal(t, "pairing-ref-1", got[0].URLCode)
	require.Equal(t, 1, got[0].Attempt)

	// The broadcast image, stripped of its data-URI prefix, decodes back to
	// the exact PNG bytes of the pairing code.
	const prefix = "data:image/png;base64,"
	require.True(t, strings.HasPrefix(got[0].Image, prefix))
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(got[0].Image, prefix))
	require.NoError(t, err)

	expected, err := qrCode.Encode("pairing-ref-1", qrCode.Medium, 256)
	require.NoError(t, err)
	require.Equal(t, expected, decoded)
}

func TestNormalizeDatastore(t *testing.T) {
	t.Run("driver aliases", func(t *testing.T) {
		require.Equal(t, "pgx", normalizeDatastoreDriver("postgres"))
		require.Equal(t, "pgx", normalizeDatastoreDriver("PostgreSQL"))
		require.Equal(t, "pgx", normalizeDatastoreDriver("pgx"))
		require.Equal(t, "sqlite3", normalizeDatastoreDriver("sqlite3"))
	})

	t.Run("pgx dsn gets simple protocol params", func(t *testing.T) {
		dsn := normalizeDatastoreDSN("pgx", "postgres://u:p@db/wa")
		require.Contains(t, dsn, "prefer_simple_protocol=true")
		require.Contains(t, dsn, "default_query_exec_mode=simple_protocol")
	})

	t.Run("existing params are kept", func(t *testing.T) {
		dsn := normalizeDatastoreDSN("pgx", "postgres://u:p@db/wa?prefer_simple_protocol=false")
		require.Contains(t, dsn, "prefer_simple_protocol=false")
		require.NotContains(t, dsn, "prefer_simple_protocol=true")
	})

	t.Run("other drivers untouched", func(t *testing.T) {
		require.Equal(t, "file:wa.db", normalizeDatastoreDSN("sqlite3", "file:wa.db"))
	})
}
