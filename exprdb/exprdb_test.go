package exprdb_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/H0K5/miasm"
	"github.com/H0K5/miasm/exprdb"
)

func openCache(t *testing.T) *exprdb.Cache {
	t.Helper()
	c, err := exprdb.Open(filepath.Join(t.TempDir(), "exprdb.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCache_PutGet(t *testing.T) {
	ctx := context.Background()
	c := openCache(t)
	a := miasm.NewIdExpr("a", 32)
	expr := miasm.NewOpExpr("+", a, a)

	_, ok, err := c.Get(ctx, expr)
	require.NoError(t, err)
	require.False(t, ok)

	normal := miasm.NewOpExpr("*", miasm.NewIntExpr(2, 32), a)
	require.NoError(t, c.Put(ctx, expr, normal))

	got, ok, err := c.Get(ctx, expr)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, miasm.ExprEqual(normal, got))
}

func TestCache_PutSizeMismatch(t *testing.T) {
	c := openCache(t)
	err := c.Put(context.Background(), miasm.NewIdExpr("a", 32), miasm.NewIntExpr(0, 16))
	require.Error(t, err)
}

func TestCache_Simplify(t *testing.T) {
	ctx := context.Background()
	c := openCache(t)
	a := miasm.NewIdExpr("a", 32)
	expr := miasm.NewOpExpr("+", a, a, a, a)

	out, err := c.Simplify(ctx, nil, expr)
	require.NoError(t, err)
	assert.Equal(t, "0x4 * a", out.String())

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The second call is served from the cache.
	again, err := c.Simplify(ctx, nil, expr)
	require.NoError(t, err)
	assert.True(t, miasm.ExprEqual(out, again))

	n, err = c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCache_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "exprdb.sqlite")

	c, err := exprdb.Open(path)
	require.NoError(t, err)
	a := miasm.NewIdExpr("a", 32)
	_, err = c.Simplify(ctx, nil, miasm.NewOpExpr("^", a, a))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c, err = exprdb.Open(path)
	require.NoError(t, err)
	defer c.Close()

	got, ok, err := c.Get(ctx, miasm.NewOpExpr("^", a, a))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, miasm.ExprEqual(miasm.NewIntExpr(0, 32), got))
}
