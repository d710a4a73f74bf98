package sqlitestore_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/flowscribe/flowscribe"
	"github.com/flowscribe/flowscribe/adapters/sqlitestore"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlitestore.Open(filepath.Join(t.TempDir(), "flowscribe.db"))
	jtest.RequireNil(t, err)
	t.Cleanup(func() { db.Close() })
	jtest.RequireNil(t, sqlitestore.InitSchema(db))
	return db
}

func TestKVStore(t *testing.T) {
	ctx := context.Background()
	kv := sqlitestore.NewKVStore(openDB(t))

	_, err := kv.Get(ctx, "flows")
	jtest.Require(t, flowscribe.ErrKeyNotFound, err)

	jtest.RequireNil(t, kv.Set(ctx, "flows", []byte(`{"a":1}`)))
	jtest.RequireNil(t, kv.Set(ctx, "flows", []byte(`{"a":2}`)))

	b, err := kv.Get(ctx, "flows")
	jtest.RequireNil(t, err)
	require.Equal(t, []byte(`{"a":2}`), b)

	jtest.RequireNil(t, kv.Delete(ctx, "flows"))
	jtest.Require(t, flowscribe.ErrKeyNotFound, kv.Delete(ctx, "flows"))
}

func TestBlobStore(t *testing.T) {
	ctx := context.Background()
	blobs := sqlitestore.NewBlobStore(openDB(t))

	_, err := blobs.Get(ctx, "flow-1_step-1")
	jtest.Require(t, flowscribe.ErrBlobNotFound, err)

	jtest.RequireNil(t, blobs.Put(ctx, "flow-1_step-1", []byte("png-1")))
	jtest.RequireNil(t, blobs.Put(ctx, "flow-1_step-2", []byte("png-2")))
	jtest.RequireNil(t, blobs.Put(ctx, "flow-2_step-1", []byte("png-3")))

	b, err := blobs.Get(ctx, "flow-1_step-2")
	jtest.RequireNil(t, err)
	require.Equal(t, []byte("png-2"), b)

	jtest.RequireNil(t, blobs.DeletePrefix(ctx, "flow-1_"))

	_, err = blobs.Get(ctx, "flow-1_step-1")
	jtest.Require(t, flowscribe.ErrBlobNotFound, err)
	_, err = blobs.Get(ctx, "flow-1_step-2")
	jtest.Require(t, flowscribe.ErrBlobNotFound, err)

	b, err = blobs.Get(ctx, "flow-2_step-1")
	jtest.RequireNil(t, err)
	require.Equal(t, []byte("png-3"), b)
}
