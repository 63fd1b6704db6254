package akavache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reactiveui/akavache-go/pkg/akavache"
	"github.com/reactiveui/akavache-go/pkg/akerrors"
	"github.com/reactiveui/akavache-go/pkg/cipher"
	"github.com/reactiveui/akavache-go/pkg/clock"
)

func TestOpenInsertGetRoundTrip(t *testing.T) {
	e, err := akavache.Open("test", akavache.Config{Path: t.TempDir() + "/test.db"})
	require.NoError(t, err)
	defer e.Close(context.Background())

	require.NoError(t, e.Insert(context.Background(), "k", []byte("v"), time.Now().Add(time.Hour)))
	got, err := e.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, "open", e.State())
}

func TestCloseRejectsFurtherOperations(t *testing.T) {
	e, err := akavache.Open("test", akavache.Config{Path: t.TempDir() + "/test.db"})
	require.NoError(t, err)

	require.NoError(t, e.Close(context.Background()))
	assert.Equal(t, "closed", e.State())

	_, err = e.Get(context.Background(), "k")
	kind, ok := akerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, akerrors.Disposed, kind)
}

func TestCloseIsIdempotent(t *testing.T) {
	e, err := akavache.Open("test", akavache.Config{Path: t.TempDir() + "/test.db"})
	require.NoError(t, err)

	require.NoError(t, e.Close(context.Background()))
	require.NoError(t, e.Close(context.Background()))
}

func TestOpenCachesSecureInstanceRoundTripsThroughCipher(t *testing.T) {
	c, err := cipher.NewAESGCMFromPassword("correct horse battery staple")
	require.NoError(t, err)

	caches, err := akavache.OpenCaches(akavache.CachesConfig{
		DataDir:      t.TempDir(),
		SecureCipher: c,
		Base:         akavache.Config{Clock: clock.NewVirtual(time.Unix(0, 0))},
	})
	require.NoError(t, err)
	defer caches.Close(context.Background())

	require.NoError(t, caches.Secure.Insert(context.Background(), "secret", []byte("classified"), time.Now().Add(time.Hour)))
	got, err := caches.Secure.Get(context.Background(), "secret")
	require.NoError(t, err)
	assert.Equal(t, []byte("classified"), got)

	require.NoError(t, caches.UserAccount.Insert(context.Background(), "k", []byte("v"), time.Now().Add(time.Hour)))
	got, err = caches.UserAccount.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestDataAndCreatedAtSurviveCloseAndReopenAgainstSamePath(t *testing.T) {
	path := t.TempDir() + "/test.db"

	e, err := akavache.Open("test", akavache.Config{Path: path})
	require.NoError(t, err)

	require.NoError(t, e.Insert(context.Background(), "k", []byte("v"), time.Now().Add(time.Hour)))
	createdAt, err := e.GetCreatedAt(context.Background(), "k")
	require.NoError(t, err)
	require.NoError(t, e.Close(context.Background()))

	reopened, err := akavache.Open("test", akavache.Config{Path: path})
	require.NoError(t, err)
	defer reopened.Close(context.Background())

	got, err := reopened.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	gotCreatedAt, err := reopened.GetCreatedAt(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, createdAt.Equal(gotCreatedAt), "CreatedAt should survive a close/reopen against the same path")
}

func TestOpenCachesInMemoryInstanceIsIsolatedFromOnDiskOnes(t *testing.T) {
	caches, err := akavache.OpenCaches(akavache.CachesConfig{DataDir: t.TempDir()})
	require.NoError(t, err)
	defer caches.Close(context.Background())

	require.NoError(t, caches.InMemory.Insert(context.Background(), "k", []byte("v"), time.Now().Add(time.Hour)))
	_, err = caches.LocalMachine.Get(context.Background(), "k")
	kind, ok := akerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, akerrors.KeyNotFound, kind)
}
