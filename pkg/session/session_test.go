package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/s3block/pkg/config"
	"github.com/cuemby/s3block/pkg/keylock"
	"github.com/cuemby/s3block/pkg/objectstore"
	"github.com/cuemby/s3block/pkg/session"
)

func multiObjectConfig(t *testing.T) *config.Config {
	t.Helper()
	b := config.NewBuilder()
	b.Set("bucket", "test-bucket")
	b.Set("key", "disk")
	b.Set("size", "320")
	b.Set("object-size", "16")
	cfg, err := b.Complete()
	require.NoError(t, err)
	return cfg
}

func TestSessionCapabilitiesMultiObject(t *testing.T) {
	cfg := multiObjectConfig(t)
	sess := session.OpenWithClient(cfg, objectstore.NewMemClient(), keylock.New())
	defer sess.Close()

	caps := sess.Capabilities()
	require.True(t, caps.Writable)
	require.True(t, caps.Trim)
	require.True(t, caps.FastZero)
	require.EqualValues(t, 16, caps.MinBlockSize)
}

func TestSessionReadWriteRoundTrip(t *testing.T) {
	cfg := multiObjectConfig(t)
	sess := session.OpenWithClient(cfg, objectstore.NewMemClient(), keylock.New())
	defer sess.Close()

	ctx := context.Background()
	require.NoError(t, sess.Write(ctx, []byte("0123456789abcdef"), 0))

	got := make([]byte, 16)
	require.NoError(t, sess.Read(ctx, got, 0))
	require.Equal(t, []byte("0123456789abcdef"), got)
}

func TestSessionSingleObjectReadOnly(t *testing.T) {
	b := config.NewBuilder()
	b.Set("bucket", "test-bucket")
	b.Set("key", "disk.img")
	cfg, err := b.Complete()
	require.NoError(t, err)

	client := objectstore.NewMemClient()
	require.NoError(t, client.Put(context.Background(), "disk.img", []byte("abcdef")))

	sess := session.OpenWithClient(cfg, client, keylock.New())
	defer sess.Close()

	caps := sess.Capabilities()
	require.False(t, caps.Writable)

	ctx := context.Background()
	err = sess.Write(ctx, []byte("x"), 0)
	require.Error(t, err)
}

// transientClient wraps MemClient and forces every Get to fail with a
// TransientError, to exercise the facade's timeout translation.
type transientClient struct {
	*objectstore.MemClient
}

func (c *transientClient) Get(ctx context.Context, key string, rng *objectstore.Range) ([]byte, error) {
	return nil, &objectstore.TransientError{Op: "get", Err: errors.New("connection reset")}
}

func TestSessionTranslatesTransientErrorToTimeout(t *testing.T) {
	cfg := multiObjectConfig(t)
	client := &transientClient{MemClient: objectstore.NewMemClient()}
	sess := session.OpenWithClient(cfg, client, keylock.New())
	defer sess.Close()

	got := make([]byte, 16)
	err := sess.Read(context.Background(), got, 0)
	require.ErrorIs(t, err, session.ErrTimeout)
}
