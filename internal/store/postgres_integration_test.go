//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/vigil/internal/store"
	"github.com/rafaeljc/vigil/internal/testsupport"
)

func TestPostgresStore_Integration(t *testing.T) {
	ctx := context.Background()
	pg, err := testsupport.StartPostgresContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	repo := store.NewPostgresStore(pg.DB)

	t.Run("Should return the seeded rules matching the static fixture", func(t *testing.T) {
		// Act
		rules, err := repo.FetchActiveRules(ctx)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, store.SampleRules(), rules)
	})

	t.Run("Should skip inactive rules", func(t *testing.T) {
		_, err := pg.DB.Exec(ctx, "UPDATE rules SET active = false WHERE id = 3")
		require.NoError(t, err)
		t.Cleanup(func() { _, _ = pg.DB.Exec(ctx, "UPDATE rules SET active = true WHERE id = 3") })

		rules, err := repo.FetchActiveRules(ctx)

		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 4, 5, 6, 7, 8}, ids(rules))
	})

	t.Run("Should honour a cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := repo.FetchActiveRules(cctx)

		assert.Error(t, err)
	})

	t.Run("Should panic without a pool", func(t *testing.T) {
		assert.Panics(t, func() { store.NewPostgresStore(nil) })
	})
}
