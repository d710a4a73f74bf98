package memstore_test

import (
	"context"
	"testing"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/flowscribe/flowscribe"
	"github.com/flowscribe/flowscribe/adapters/memstore"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	_, err := s.Get(ctx, "missing")
	jtest.Require(t, flowscribe.ErrKeyNotFound, err)

	err = s.Set(ctx, "k", []byte("v1"))
	jtest.RequireNil(t, err)
	err = s.Set(ctx, "k", []byte("v2"))
	jtest.RequireNil(t, err)

	got, err := s.Get(ctx, "k")
	jtest.RequireNil(t, err)
	require.Equal(t, []byte("v2"), got)

	// Mutating the returned slice must not reach the stored value.
	got[0] = 'X'
	again, err := s.Get(ctx, "k")
	jtest.RequireNil(t, err)
	require.Equal(t, []byte("v2"), again)

	// Every write is retained in order for persistence assertions.
	snaps := s.Snapshots("k")
	require.Len(t, snaps, 2)
	require.Equal(t, []byte("v1"), snaps[0])
	require.Equal(t, []byte("v2"), snaps[1])

	err = s.Delete(ctx, "k")
	jtest.RequireNil(t, err)
	_, err = s.Get(ctx, "k")
	jtest.Require(t, flowscribe.ErrKeyNotFound, err)
	err = s.Delete(ctx, "k")
	jtest.Require(t, flowscribe.ErrKeyNotFound, err)
}

func TestBlobStore(t *testing.T) {
	ctx := context.Background()
	s := memstore.NewBlobStore()

	_, err := s.Get(ctx, "missing")
	jtest.Require(t, flowscribe.ErrBlobNotFound, err)

	err = s.Put(ctx, "flow-1_step-0", []byte("a"))
	jtest.RequireNil(t, err)
	err = s.Put(ctx, "flow-1_step-1", []byte("b"))
	jtest.RequireNil(t, err)
	err = s.Put(ctx, "flow-2_step-0", []byte("c"))
	jtest.RequireNil(t, err)
	require.Equal(t, 3, s.Len())

	got, err := s.Get(ctx, "flow-1_step-0")
	jtest.RequireNil(t, err)
	require.Equal(t, []byte("a"), got)

	err = s.DeletePrefix(ctx, "flow-1")
	jtest.RequireNil(t, err)
	require.Equal(t, 1, s.Len())
	_, err = s.Get(ctx, "flow-1_step-0")
	jtest.Require(t, flowscribe.ErrBlobNotFound, err)
	_, err = s.Get(ctx, "flow-2_step-0")
	jtest.RequireNil(t, err)

	err = s.Delete(ctx, "flow-2_step-0")
	jtest.RequireNil(t, err)
	err = s.Delete(ctx, "flow-2_step-0")
	jtest.Require(t, flowscribe.ErrBlobNotFound, err)

	// Deleting by prefix with nothing matching is a no-op.
	err = s.DeletePrefix(ctx, "flow-9")
	jtest.RequireNil(t, err)
}
