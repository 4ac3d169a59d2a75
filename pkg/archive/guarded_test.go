package archive

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/coffeechain/pkg/util/resiliency"
)

type flakyStore struct {
	Store
	fail  bool
	calls int
}

func (f *flakyStore) Put(ctx context.Context, data []byte) (string, error) {
	f.calls++
	if f.fail {
		return "", errors.New("bucket unreachable")
	}
	return f.Store.Put(ctx, data)
}

func TestGuardedStore_OpensAfterRepeatedFailures(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	flaky := &flakyStore{Store: fs, fail: true}
	g := Guard(flaky, "test")

	for i := 0; i < 5; i++ {
		_, err := g.Put(context.Background(), []byte("x"))
		require.Error(t, err)
	}
	_, err = g.Put(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, resiliency.ErrOpen)
	assert.Equal(t, 5, flaky.calls, "open breaker skips the backend")
}

func TestGuardedStore_NotFoundKeepsBreakerClosed(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	g := Guard(fs, "test")

	missing := "sha256:" + "00000000000000000000000000000000" + "00000000000000000000000000000000"
	for i := 0; i < 10; i++ {
		_, err := g.Get(context.Background(), missing)
		assert.ErrorIs(t, err, ErrNotFound)
	}

	hash, err := g.Put(context.Background(), []byte("report"))
	require.NoError(t, err)
	ok, err := g.Exists(context.Background(), hash)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, g.Delete(context.Background(), hash))
}
