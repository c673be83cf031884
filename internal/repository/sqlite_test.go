package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"eventrec/recommender/internal/config"
	"eventrec/recommender/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newTestRepository(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLiteRepository(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestUnknownUserAndItemAreEmpty(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	favorites, err := repo.FavoriteItemIDs(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, favorites.Len())

	categories, err := repo.Categories(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, 0, categories.Len())

	items, err := repo.FavoriteItems(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSetAndUnsetFavorites(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SetFavoriteItems(ctx, "u1", []string{"a", "b", "c"}))
	// setting again is a no-op
	require.NoError(t, repo.SetFavoriteItems(ctx, "u1", []string{"a"}))
	require.NoError(t, repo.SetFavoriteItems(ctx, "u2", []string{"z"}))

	favorites, err := repo.FavoriteItemIDs(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, favorites.Sorted())

	require.NoError(t, repo.UnsetFavoriteItems(ctx, "u1", []string{"b", "not-there"}))

	favorites, err = repo.FavoriteItemIDs(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, favorites.Sorted())

	other, err := repo.FavoriteItemIDs(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{"z"}, other.Sorted())
}

func TestSaveItemsUpsertsCatalog(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveItems(ctx, []domain.Item{
		{ID: "a", Name: "Old name", Rating: 3, Categories: domain.NewStringSet("music")},
		{ID: "b", Name: "Untagged"},
	}))
	require.NoError(t, repo.SaveItems(ctx, []domain.Item{
		{
			ID:         "a",
			Name:       "New name",
			Address:    "1 Main St\nMountain View",
			ImageURL:   "https://img/a.jpg",
			URL:        "https://example.com/a",
			Rating:     4.5,
			Distance:   2.25,
			Categories: domain.NewStringSet("music", "art"),
		},
	}))

	categories, err := repo.Categories(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"art", "music"}, categories.Sorted())

	require.NoError(t, repo.SetFavoriteItems(ctx, "u1", []string{"a", "b", "not-in-catalog"}))

	items, err := repo.FavoriteItems(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 2)

	a := items[0]
	assert.Equal(t, "a", a.ID)
	assert.Equal(t, "New name", a.Name)
	assert.Equal(t, "1 Main St\nMountain View", a.Address)
	assert.Equal(t, "https://img/a.jpg", a.ImageURL)
	assert.Equal(t, "https://example.com/a", a.URL)
	assert.Equal(t, 4.5, a.Rating)
	assert.Equal(t, 2.25, a.Distance)
	assert.Equal(t, []string{"art", "music"}, a.Categories.Sorted())

	b := items[1]
	assert.Equal(t, "b", b.ID)
	assert.Equal(t, 0, b.Categories.Len())
}

func TestSaveItemsEmptyIsNoop(t *testing.T) {
	repo := newTestRepository(t)
	assert.NoError(t, repo.SaveItems(context.Background(), nil))
}

func TestNewSelectsSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recommender.db")
	ctx := context.Background()

	repo, err := New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: path})
	require.NoError(t, err)
	require.NoError(t, repo.SetFavoriteItems(ctx, "u1", []string{"a"}))
	require.NoError(t, repo.Close())

	reopened, err := New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	favorites, err := reopened.FavoriteItemIDs(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, favorites.Has("a"))
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), config.DatabaseConfig{Driver: "mongodb"})
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestConcurrentWritesToFileDatabase(t *testing.T) {
	ctx := context.Background()
	repo, err := New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "recommender.db")})
	require.NoError(t, err)
	defer repo.Close()

	const writers, rounds = 16, 20
	var g errgroup.Group
	for w := 0; w < writers; w++ {
		g.Go(func() error {
			for r := 0; r < rounds; r++ {
				id := fmt.Sprintf("g%d-%d", w, r)
				item := domain.Item{ID: id, Name: id, Categories: domain.NewStringSet("music", fmt.Sprintf("c%d", w))}
				if err := repo.SaveItems(ctx, []domain.Item{item}); err != nil {
					return err
				}
				if err := repo.SetFavoriteItems(ctx, fmt.Sprintf("u%d", w), []string{id}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for w := 0; w < writers; w++ {
		favorites, err := repo.FavoriteItemIDs(ctx, fmt.Sprintf("u%d", w))
		require.NoError(t, err)
		assert.Equal(t, rounds, favorites.Len())
	}

	categories, err := repo.Categories(ctx, "g15-19")
	require.NoError(t, err)
	assert.Equal(t, []string{"c15", "music"}, categories.Sorted())
}
