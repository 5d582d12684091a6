//go:build integration_test || all_tests

package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgtesting "github.com/2beens/gymhrv/pkg/testing"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	containers, err := pkgtesting.NewContainers()
	require.NoError(t, err)
	t.Cleanup(containers.Close)

	// schema goes in through database/sql, the store itself uses pgx
	dsn, _, err := containers.StartPostgres("gymhrv", SchemaSQL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresStore_CRUD(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	s := NewPostgresStore(pool)
	require.NoError(t, s.EnsureSchema(ctx))

	_, err := s.Get(ctx, CollectionMembers, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	key, err := PutJSON(ctx, s, CollectionMembers, "", member{Name: "Ana"})
	require.NoError(t, err)
	require.NotEmpty(t, key)

	_, err = PutJSON(ctx, s, CollectionMembers, key, member{Name: "Ana B"})
	require.NoError(t, err)

	var got member
	require.NoError(t, GetJSON(ctx, s, CollectionMembers, key, &got))
	assert.Equal(t, "Ana B", got.Name)

	_, err = PutJSON(ctx, s, CollectionSubscriptions, "s1", map[string]string{"plan": "monthly"})
	require.NoError(t, err)

	members, err := s.GetAll(ctx, CollectionMembers)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	require.NoError(t, s.Delete(ctx, CollectionMembers, key))
	assert.ErrorIs(t, s.Delete(ctx, CollectionMembers, key), ErrNotFound)

	subs, err := s.GetAll(ctx, CollectionSubscriptions)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}
