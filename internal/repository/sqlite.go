package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"eventrec/recommender/internal/domain"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS items (
	item_id   TEXT PRIMARY KEY,
	name      TEXT NOT NULL DEFAULT '',
	rating    REAL NOT NULL DEFAULT 0,
	address   TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	url       TEXT NOT NULL DEFAULT '',
	distance  REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS categories (
	item_id  TEXT NOT NULL,
	category TEXT NOT NULL,
	PRIMARY KEY (item_id, category)
);

CREATE TABLE IF NOT EXISTS history (
	user_id    TEXT NOT NULL,
	item_id    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, item_id)
);`

type sqliteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens the database file at path, or a private
// in-memory database for ":memory:".
func NewSQLiteRepository(ctx context.Context, path string) (Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// single connection: writers are serialized and :memory: stays one database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// other processes may hold the file lock
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &sqliteRepository{db: db}, nil
}

func (r *sqliteRepository) FavoriteItemIDs(ctx context.Context, userID string) (domain.StringSet, error) {
	ids, err := r.queryStrings(ctx, `SELECT item_id FROM history WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query favorites: %w", err)
	}
	return domain.NewStringSet(ids...), nil
}

func (r *sqliteRepository) Categories(ctx context.Context, itemID string) (domain.StringSet, error) {
	categories, err := r.queryStrings(ctx, `SELECT category FROM categories WHERE item_id = ?`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	return domain.NewStringSet(categories...), nil
}

func (r *sqliteRepository) FavoriteItems(ctx context.Context, userID string) ([]domain.Item, error) {
	// group_concat with a unit separator; category labels never contain it
	query := `
	SELECT i.item_id, i.name, i.rating, i.address, i.image_url, i.url, i.distance,
		COALESCE(group_concat(c.category, char(31)), '')
	FROM history h
	JOIN items i ON i.item_id = h.item_id
	LEFT JOIN categories c ON c.item_id = i.item_id
	WHERE h.user_id = ?
	GROUP BY i.item_id
	ORDER BY i.item_id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query favorite items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Item, 0)
	for rows.Next() {
		var item domain.Item
		var categories string
		if err := rows.Scan(&item.ID, &item.Name, &item.Rating, &item.Address,
			&item.ImageURL, &item.URL, &item.Distance, &categories); err != nil {
			return nil, fmt.Errorf("failed to read favorite item: %w", err)
		}
		item.Categories = domain.NewStringSet()
		if categories != "" {
			for _, c := range strings.Split(categories, "\x1f") {
				item.Categories.Add(c)
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *sqliteRepository) SetFavoriteItems(ctx context.Context, userID string, itemIDs []string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, itemID := range itemIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO history (user_id, item_id) VALUES (?, ?)`, userID, itemID); err != nil {
				return fmt.Errorf("failed to save favorite %s: %w", itemID, err)
			}
		}
		return nil
	})
}

func (r *sqliteRepository) UnsetFavoriteItems(ctx context.Context, userID string, itemIDs []string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, itemID := range itemIDs {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM history WHERE user_id = ? AND item_id = ?`, userID, itemID); err != nil {
				return fmt.Errorf("failed to delete favorite %s: %w", itemID, err)
			}
		}
		return nil
	})
}

func (r *sqliteRepository) SaveItems(ctx context.Context, items []domain.Item) error {
	if len(items) == 0 {
		return nil
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, item := range items {
			_, err := tx.ExecContext(ctx, `
			INSERT INTO items (item_id, name, rating, address, image_url, url, distance)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (item_id) DO UPDATE SET
				name = excluded.name, rating = excluded.rating, address = excluded.address,
				image_url = excluded.image_url, url = excluded.url, distance = excluded.distance`,
				item.ID, item.Name, item.Rating, item.Address, item.ImageURL, item.URL, item.Distance)
			if err != nil {
				return fmt.Errorf("failed to save item %s: %w", item.ID, err)
			}
			for category := range item.Categories {
				if _, err := tx.ExecContext(ctx,
					`INSERT OR IGNORE INTO categories (item_id, category) VALUES (?, ?)`, item.ID, category); err != nil {
					return fmt.Errorf("failed to save category of %s: %w", item.ID, err)
				}
			}
		}
		return nil
	})
}

func (r *sqliteRepository) Close() error {
	return r.db.Close()
}

func (r *sqliteRepository) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *sqliteRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
