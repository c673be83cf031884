package repository

import (
	"context"
	"fmt"

	"eventrec/recommender/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS items (
	item_id   TEXT PRIMARY KEY,
	name      TEXT NOT NULL DEFAULT '',
	rating    DOUBLE PRECISION NOT NULL DEFAULT 0,
	address   TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	url       TEXT NOT NULL DEFAULT '',
	distance  DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS categories (
	item_id  TEXT NOT NULL,
	category TEXT NOT NULL,
	PRIMARY KEY (item_id, category)
);

CREATE TABLE IF NOT EXISTS history (
	user_id    TEXT NOT NULL,
	item_id    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, item_id)
);`

// pgxPool is the subset of *pgxpool.Pool the repository uses.
type pgxPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

type postgresRepository struct {
	db pgxPool
}

func NewPostgresRepository(ctx context.Context, dsn string) (Repository, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return newPostgresRepository(db), nil
}

func newPostgresRepository(db pgxPool) *postgresRepository {
	return &postgresRepository{
		db: db,
	}
}

func (r *postgresRepository) FavoriteItemIDs(ctx context.Context, userID string) (domain.StringSet, error) {
	rows, err := r.db.Query(ctx, `SELECT item_id FROM history WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query favorites: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read favorites: %w", err)
	}
	return domain.NewStringSet(ids...), nil
}

func (r *postgresRepository) Categories(ctx context.Context, itemID string) (domain.StringSet, error) {
	rows, err := r.db.Query(ctx, `SELECT category FROM categories WHERE item_id = $1`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	categories, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read categories: %w", err)
	}
	return domain.NewStringSet(categories...), nil
}

func (r *postgresRepository) FavoriteItems(ctx context.Context, userID string) ([]domain.Item, error) {
	query := `
	SELECT i.item_id, i.name, i.rating, i.address, i.image_url, i.url, i.distance,
		COALESCE(array_agg(c.category) FILTER (WHERE c.category IS NOT NULL), '{}')
	FROM history h
	JOIN items i ON i.item_id = h.item_id
	LEFT JOIN categories c ON c.item_id = i.item_id
	WHERE h.user_id = $1
	GROUP BY i.item_id
	ORDER BY i.item_id`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query favorite items: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Item, error) {
		var item domain.Item
		var categories []string
		err := row.Scan(&item.ID, &item.Name, &item.Rating, &item.Address,
			&item.ImageURL, &item.URL, &item.Distance, &categories)
		item.Categories = domain.NewStringSet(categories...)
		return item, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read favorite items: %w", err)
	}
	return items, nil
}

func (r *postgresRepository) SetFavoriteItems(ctx context.Context, userID string, itemIDs []string) error {
	_, err := r.db.Exec(ctx, `
	INSERT INTO history (user_id, item_id)
	SELECT $1, unnest($2::text[])
	ON CONFLICT DO NOTHING`, userID, itemIDs)
	if err != nil {
		return fmt.Errorf("failed to save favorites: %w", err)
	}
	return nil
}

func (r *postgresRepository) UnsetFavoriteItems(ctx context.Context, userID string, itemIDs []string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM history WHERE user_id = $1 AND item_id = ANY($2)`, userID, itemIDs)
	if err != nil {
		return fmt.Errorf("failed to delete favorites: %w", err)
	}
	return nil
}

func (r *postgresRepository) SaveItems(ctx context.Context, items []domain.Item) error {
	if len(items) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		for _, item := range items {
			_, err := tx.Exec(ctx, `
			INSERT INTO items (item_id, name, rating, address, image_url, url, distance)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (item_id)
			DO UPDATE SET name = $2, rating = $3, address = $4, image_url = $5, url = $6, distance = $7`,
				item.ID, item.Name, item.Rating, item.Address, item.ImageURL, item.URL, item.Distance)
			if err != nil {
				return fmt.Errorf("failed to save item %s: %w", item.ID, err)
			}
			if item.Categories.Len() == 0 {
				continue
			}
			_, err = tx.Exec(ctx, `
			INSERT INTO categories (item_id, category)
			SELECT $1, unnest($2::text[])
			ON CONFLICT DO NOTHING`, item.ID, item.Categories.Sorted())
			if err != nil {
				return fmt.Errorf("failed to save categories of %s: %w", item.ID, err)
			}
		}
		return nil
	})
}

func (r *postgresRepository) Close() error {
	r.db.Close()
	return nil
}
