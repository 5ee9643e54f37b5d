// Package repository binds model types to the key-value store.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/robolist/robolist/internal/apperr"
	"github.com/robolist/robolist/internal/store"
	"golang.org/x/sync/errgroup"
)

// batchLimit bounds concurrent reads in BatchGet.
const batchLimit = 16

// Repository is a typed view over the rows of one kind.
type Repository[T any] struct {
	store store.Store
	kind  string
}

func New[T any](s store.Store, kind string) *Repository[T] {
	return &Repository[T]{store: s, kind: kind}
}

func (r *Repository[T]) Kind() string {
	return r.kind
}

// Get returns the item or an apperr.ErrNotFound error.
func (r *Repository[T]) Get(ctx context.Context, id string) (*T, error) {
	var item T
	err := r.store.Get(ctx, r.kind, id, &item)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%s %q not found: %w", r.kind, id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Find is Get that returns nil when the item does not exist.
func (r *Repository[T]) Find(ctx context.Context, id string) (*T, error) {
	item, err := r.Get(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return item, err
}

func (r *Repository[T]) Add(ctx context.Context, item *T, unique ...store.Unique) error {
	err := r.store.Put(ctx, r.kind, item, unique...)
	if errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("%s already exists: %w", r.kind, apperr.ErrConflict)
	}
	return err
}

// Update applies upd. Callers that change a constrained field must pass the
// same constraints used on Add.
func (r *Repository[T]) Update(ctx context.Context, id string, upd *store.Update, unique ...store.Unique) error {
	err := r.store.Update(ctx, r.kind, id, upd, unique...)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s %q not found: %w", r.kind, id, apperr.ErrNotFound)
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%s already exists: %w", r.kind, apperr.ErrConflict)
	}
	return err
}

func (r *Repository[T]) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, id)
}

func (r *Repository[T]) List(ctx context.Context, filter store.Filter) ([]T, error) {
	var items []T
	err := r.store.Scan(ctx, r.kind, filter, &items)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ListBy returns the items whose indexed field equals value.
func (r *Repository[T]) ListBy(ctx context.Context, field string, value any, filter store.Filter) ([]T, error) {
	var items []T
	err := r.store.Query(ctx, r.kind, field, value, filter, &items)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// FindBy returns the first item whose indexed field equals value, or nil.
func (r *Repository[T]) FindBy(ctx context.Context, field string, value any) (*T, error) {
	items, err := r.ListBy(ctx, field, value, store.Filter{})
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}

// GetBy is FindBy that fails with apperr.ErrNotFound.
func (r *Repository[T]) GetBy(ctx context.Context, field string, value any) (*T, error) {
	item, err := r.FindBy(ctx, field, value)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%s with %s %v not found: %w", r.kind, field, value, apperr.ErrNotFound)
	}
	return item, nil
}

// BatchGet fetches ids concurrently, keeping their order and skipping missing items.
func (r *Repository[T]) BatchGet(ctx context.Context, ids []string) ([]T, error) {
	found := make([]*T, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchLimit)
	for i, id := range ids {
		g.Go(func() error {
			item, err := r.Find(ctx, id)
			found[i] = item
			return err
		})
	}
	err := g.Wait()
	if err != nil {
		return nil, err
	}

	items := make([]T, 0, len(ids))
	for _, item := range found {
		if item != nil {
			items = append(items, *item)
		}
	}
	return items, nil
}
