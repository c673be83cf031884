// Package recommend ranks nearby items for a user from the categories of
// the items they have marked as favorite.
package recommend

import (
	"cmp"
	"context"
	"slices"

	"eventrec/recommender/internal/domain"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// HistoryStore gives read access to a user's favorites and the item catalog.
type HistoryStore interface {
	// FavoriteItemIDs returns an empty set for unknown users.
	FavoriteItemIDs(ctx context.Context, userID string) (domain.StringSet, error)
	// Categories returns an empty set for items missing from the catalog.
	Categories(ctx context.Context, itemID string) (domain.StringSet, error)
}

// ItemSearch finds items of a category around a point. Returned items carry
// their distance from the point in miles and may come in any order.
type ItemSearch interface {
	SearchItems(ctx context.Context, lat, lon float64, category string) ([]domain.Item, error)
}

// Engine is stateless; one Engine serves concurrent requests.
type Engine struct {
	history     HistoryStore
	search      ItemSearch
	concurrency int
}

type Option func(*Engine)

// WithSearchConcurrency lets up to n category searches run at once. Results
// are still merged one category at a time in rank order.
func WithSearchConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func NewEngine(history HistoryStore, search ItemSearch, opts ...Option) *Engine {
	e := &Engine{
		history:     history,
		search:      search,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CategoryCount is a category label with the number of favorites tagged with it.
type CategoryCount struct {
	Category string
	Count    int
}

// Recommend returns items near (lat, lon) grouped by the user's preferred
// categories, most preferred first, each group ordered nearest first.
// Favorites never appear in the result and no item appears twice.
//
// lat and lon are expected to be valid coordinates; the engine does not check them.
func (e *Engine) Recommend(ctx context.Context, userID string, lat, lon float64) ([]domain.Item, error) {
	favorites, err := e.history.FavoriteItemIDs(ctx, userID)
	if err != nil {
		return nil, &DependencyError{Op: "favorite items", Err: err}
	}
	if favorites.Len() == 0 {
		log.Debugf("User %s has no favorites, nothing to recommend", userID)
		return []domain.Item{}, nil
	}

	ranked, err := e.rankCategories(ctx, favorites)
	if err != nil {
		return nil, err
	}

	results, err := e.searchAll(ctx, ranked, lat, lon)
	if err != nil {
		return nil, err
	}

	recommended := make([]domain.Item, 0)
	visited := domain.NewStringSet()
	for i := range ranked {
		recommended = append(recommended, mergeCategory(results[i], favorites, visited)...)
	}

	log.Debugf("Recommended %d items for user %s from %d categories", len(recommended), userID, len(ranked))
	return recommended, nil
}

// rankCategories counts how many favorites carry each category and orders
// categories by count descending, then label ascending.
func (e *Engine) rankCategories(ctx context.Context, favorites domain.StringSet) ([]CategoryCount, error) {
	counts := make(map[string]int)
	// sorted so that the lookup order, and any failure, is reproducible
	for _, itemID := range favorites.Sorted() {
		categories, err := e.history.Categories(ctx, itemID)
		if err != nil {
			return nil, &DependencyError{Op: "categories of " + itemID, Err: err}
		}
		for category := range categories {
			counts[category]++
		}
	}
	return RankCategories(counts), nil
}

// RankCategories orders a frequency table by count descending, breaking ties
// by category label ascending.
func RankCategories(counts map[string]int) []CategoryCount {
	ranked := make([]CategoryCount, 0, len(counts))
	for category, count := range counts {
		ranked = append(ranked, CategoryCount{Category: category, Count: count})
	}
	slices.SortFunc(ranked, func(a, b CategoryCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return ranked
}

// searchAll runs one search per ranked category. results[i] belongs to ranked[i].
func (e *Engine) searchAll(ctx context.Context, ranked []CategoryCount, lat, lon float64) ([][]domain.Item, error) {
	results := make([][]domain.Item, len(ranked))

	if e.concurrency <= 1 {
		for i, c := range ranked {
			items, err := e.search.SearchItems(ctx, lat, lon, c.Category)
			if err != nil {
				return nil, &DependencyError{Op: "search " + c.Category, Err: err}
			}
			results[i] = items
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, c := range ranked {
		g.Go(func() error {
			items, err := e.search.SearchItems(gctx, lat, lon, c.Category)
			if err != nil {
				return &DependencyError{Op: "search " + c.Category, Err: err}
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// mergeCategory drops favorites and already visited items from one
// category's search result, sorts the rest by distance and marks every
// returned item as visited.
func mergeCategory(items []domain.Item, favorites, visited domain.StringSet) []domain.Item {
	kept := make([]domain.Item, 0, len(items))
	seen := domain.NewStringSet()
	for _, item := range items {
		if favorites.Has(item.ID) || visited.Has(item.ID) || seen.Has(item.ID) {
			continue
		}
		seen.Add(item.ID)
		kept = append(kept, item)
	}

	slices.SortStableFunc(kept, func(a, b domain.Item) int {
		return cmp.Compare(a.Distance, b.Distance)
	})

	for _, item := range items {
		visited.Add(item.ID)
	}
	return kept
}
