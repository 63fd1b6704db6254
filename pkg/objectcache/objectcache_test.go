package objectcache_test

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reactiveui/akavache-go/pkg/akerrors"
	"github.com/reactiveui/akavache-go/pkg/blobcache"
	"github.com/reactiveui/akavache-go/pkg/clock"
	"github.com/reactiveui/akavache-go/pkg/model"
	"github.com/reactiveui/akavache-go/pkg/objectcache"
	"github.com/reactiveui/akavache-go/pkg/serializer"
	"github.com/reactiveui/akavache-go/pkg/storage"
)

// userAccountTypeName replicates objectcache's stable type-name algorithm
// for userAccount, used to plant a raw entry under the same type tag
// InsertObject would use.
func userAccountTypeName() string {
	t := reflect.TypeOf(userAccount{})
	return t.PkgPath() + "." + t.Name()
}

type userAccount struct {
	Name  string
	Email string
}

type order struct {
	ID string
}

func newTestEngine(t *testing.T) *blobcache.Engine {
	t.Helper()
	d, err := storage.Open(storage.Options{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		IdleInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Shutdown(context.Background()) })
	return blobcache.New(d, clock.System{})
}

func newTestCaches(t *testing.T) (*objectcache.Cache[userAccount], *objectcache.Cache[order]) {
	t.Helper()
	engine := newTestEngine(t)
	ser := serializer.NewJSON()
	return objectcache.New[userAccount](engine, ser), objectcache.New[order](engine, ser)
}

func TestInsertObjectAndGetObjectRoundTrip(t *testing.T) {
	users, _ := newTestCaches(t)
	ctx := context.Background()

	require.NoError(t, users.InsertObject(ctx, "u1", userAccount{Name: "Ada", Email: "ada@example.com"}, model.NeverExpires))

	got, err := users.GetObject(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, userAccount{Name: "Ada", Email: "ada@example.com"}, got)
}

func TestGetAllObjectsIsIsolatedByType(t *testing.T) {
	users, orders := newTestCaches(t)
	ctx := context.Background()

	require.NoError(t, users.InsertObject(ctx, "u1", userAccount{Name: "Ada"}, model.NeverExpires))
	require.NoError(t, orders.InsertObject(ctx, "o1", order{ID: "o1"}, model.NeverExpires))

	all, err := users.GetAllObjects(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Contains(t, all, "u1")
}

func TestInvalidateAllObjectsOnlyTouchesItsOwnType(t *testing.T) {
	users, orders := newTestCaches(t)
	ctx := context.Background()

	require.NoError(t, users.InsertObject(ctx, "u1", userAccount{Name: "Ada"}, model.NeverExpires))
	require.NoError(t, orders.InsertObject(ctx, "o1", order{ID: "o1"}, model.NeverExpires))

	require.NoError(t, users.InvalidateAllObjects(ctx))

	_, err := users.GetObject(ctx, "u1")
	assert.Error(t, err)

	got, err := orders.GetObject(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, order{ID: "o1"}, got)
}

func TestInsertObjectWithEmptyKeyFailsWithArgumentNull(t *testing.T) {
	users, _ := newTestCaches(t)
	err := users.InsertObject(context.Background(), "", userAccount{Name: "Ada"}, model.NeverExpires)
	require.Error(t, err)
	kind, ok := akerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, akerrors.ArgumentNull, kind)
}

func TestGetObjectWithEmptyKeyFailsWithArgumentNull(t *testing.T) {
	users, _ := newTestCaches(t)
	_, err := users.GetObject(context.Background(), "")
	require.Error(t, err)
	kind, ok := akerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, akerrors.ArgumentNull, kind)
}

func TestGetObjectsDropsEntryThatFailsToDeserialize(t *testing.T) {
	engine := newTestEngine(t)
	ser := serializer.NewJSON()
	users := objectcache.New[userAccount](engine, ser)
	ctx := context.Background()

	require.NoError(t, users.InsertObject(ctx, "good", userAccount{Name: "Ada"}, model.NeverExpires))
	require.NoError(t, engine.InsertMany(ctx, []model.CacheElement{{
		Key:        "corrupt",
		TypeName:   userAccountTypeName(),
		Value:      []byte("not valid json"),
		Expiration: model.NeverExpires,
	}}))
	require.NoError(t, users.InsertObject(ctx, "good2", userAccount{Name: "Bob"}, model.NeverExpires))

	got, err := users.GetObjects(ctx, []string{"good", "corrupt", "good2"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "good")
	assert.Contains(t, got, "good2")
	assert.NotContains(t, got, "corrupt")
}

func TestGetAllObjectsDropsEntryThatFailsToDeserialize(t *testing.T) {
	engine := newTestEngine(t)
	ser := serializer.NewJSON()
	users := objectcache.New[userAccount](engine, ser)
	ctx := context.Background()

	require.NoError(t, users.InsertObject(ctx, "good", userAccount{Name: "Ada"}, model.NeverExpires))
	require.NoError(t, engine.InsertMany(ctx, []model.CacheElement{{
		Key:        "corrupt",
		TypeName:   userAccountTypeName(),
		Value:      []byte("not valid json"),
		Expiration: model.NeverExpires,
	}}))

	got, err := users.GetAllObjects(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, "good")
}
