package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func testLedger(t *testing.T, l Ledger) {
	ctx := context.Background()
	id := ArtifactID([]byte("program"), []byte("domain"))

	ok, err := l.Consumed(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = l.Consume(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Consume(ctx, id)
	require.NoError(t, err)
	require.False(t, ok, "second consume must be refused")

	ok, err = l.Consumed(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Consume(ctx, ArtifactID([]byte("program"), []byte("other")))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemory(t *testing.T) {
	testLedger(t, NewMemory())
}

func TestRedis(t *testing.T) {
	_, client := newTestRedis(t)
	testLedger(t, NewRedis(client, "", 0))
}

func TestRedisTTL(t *testing.T) {
	srv, client := newTestRedis(t)
	l := NewRedis(client, "test", time.Hour)
	id := common.HexToHash("0x01")

	ok, err := l.Consume(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, srv.Exists("test:"+id.Hex()))

	srv.FastForward(2 * time.Hour)
	ok, err = l.Consume(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestArtifactIDSeparatesProofs(t *testing.T) {
	require.Equal(t, ArtifactID([]byte("a"), []byte("b")), ArtifactID([]byte("a"), []byte("b")))
	require.NotEqual(t, ArtifactID([]byte("a"), []byte("b")), ArtifactID([]byte("b"), []byte("a")))
}

func TestSignerLock(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()

	first := NewSignerLock(client, "neutron1signer", time.Minute)
	second := NewSignerLock(client, "neutron1signer", time.Minute)
	other := NewSignerLock(client, "neutron1other", time.Minute)

	require.NoError(t, first.LockContext(ctx))
	require.Error(t, second.LockContext(ctx))
	require.NoError(t, other.LockContext(ctx))

	ok, err := first.UnlockContext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, second.LockContext(ctx))
}
