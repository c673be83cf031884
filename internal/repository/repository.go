package repository

import (
	"context"
	"fmt"

	"eventrec/recommender/internal/config"
	"eventrec/recommender/internal/domain"
)

// Repository stores users' favorites and the catalog of items seen in
// searches. It is the history store the recommendation engine reads from.
type Repository interface {
	// FavoriteItemIDs returns an empty set for a user without favorites.
	FavoriteItemIDs(ctx context.Context, userID string) (domain.StringSet, error)
	// Categories returns an empty set for an item missing from the catalog.
	Categories(ctx context.Context, itemID string) (domain.StringSet, error)
	// FavoriteItems returns the catalog records of the user's favorites.
	// Favorites missing from the catalog are skipped.
	FavoriteItems(ctx context.Context, userID string) ([]domain.Item, error)
	SetFavoriteItems(ctx context.Context, userID string, itemIDs []string) error
	UnsetFavoriteItems(ctx context.Context, userID string, itemIDs []string) error
	// SaveItems upserts items and their categories into the catalog.
	SaveItems(ctx context.Context, items []domain.Item) error
	Close() error
}

// New opens the backend selected by cfg.Driver and makes sure the schema exists.
func New(ctx context.Context, cfg config.DatabaseConfig) (Repository, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgresRepository(ctx, cfg.DSN())
	case "sqlite":
		return NewSQLiteRepository(ctx, cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
