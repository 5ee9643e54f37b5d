// Package store is the key-value layer: one logical table keyed by id, with
// equality indexes named "{field}_index" and conditional writes for uniqueness.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

var (
	ErrNotFound        = errors.New("store: item not found")
	ErrConflict        = errors.New("store: item or unique value already exists")
	ErrConditionFailed = errors.New("store: update condition failed")
)

const (
	// TypeAttr holds the entity kind that wrote the row.
	TypeAttr = "type"
	// UniqueKeysAttr lists the guard ids claimed by a row.
	UniqueKeysAttr = "unique_keys"
	// TTLAttr is the epoch-seconds expiry attribute honored by the table.
	TTLAttr = "expires_at"

	guardKind = "unique"
)

// Indexes are the attributes with a secondary equality index.
var Indexes = []string{
	TypeAttr,
	"user_id",
	"email",
	"username",
	"user_token",
	"listing_id",
	"name",
	"class_id",
}

// IndexName returns the secondary index name for a field.
func IndexName(field string) string {
	return field + "_index"
}

// Unique is a uniqueness constraint over one or more fields. The fields are
// combined into a single compound value, so Unique{"user_id", "name"} allows
// the same name for different owners.
type Unique []string

// Filter narrows Scan and Query results.
type Filter struct {
	// Equals requires exact matches on each field.
	Equals map[string]any
	// Search requires a substring match on at least one of SearchFields.
	Search       string
	SearchFields []string
}

func (f Filter) empty() bool {
	return len(f.Equals) == 0 && (f.Search == "" || len(f.SearchFields) == 0)
}

// Store is implemented by DynamoStore and SQLStore.
//
// out arguments follow encoding/json conventions: Get decodes into a pointer
// to a struct, Scan and Query into a pointer to a slice.
type Store interface {
	Get(ctx context.Context, kind, id string, out any) error
	Put(ctx context.Context, kind string, item any, unique ...Unique) error
	Update(ctx context.Context, kind, id string, upd *Update, unique ...Unique) error
	Delete(ctx context.Context, id string) error
	Scan(ctx context.Context, kind string, filter Filter, out any) error
	Query(ctx context.Context, kind, field string, value any, filter Filter, out any) error

	EnsureTable(ctx context.Context) error
	DropTable(ctx context.Context) error
	Close() error
}

// lookup resolves the scalar value of a field, if present.
type lookup func(field string) (string, bool)

func guardKey(kind string, u Unique, get lookup) (string, error) {
	parts := make([]string, 0, len(u)+2)
	parts = append(parts, guardKind, kind)
	for _, field := range u {
		v, ok := get(field)
		if !ok {
			return "", fmt.Errorf("unique field %q missing on %s", field, kind)
		}
		parts = append(parts, field+"="+url.QueryEscape(v))
	}
	return strings.Join(parts, "#"), nil
}

func guardKeys(kind string, uniques []Unique, get lookup) ([]string, error) {
	keys := make([]string, 0, len(uniques))
	for _, u := range uniques {
		k, err := guardKey(kind, u, get)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// diffGuards returns the guards to claim and release when a row moves from
// before to after. Constraints whose values did not change produce nothing.
func diffGuards(kind string, uniques []Unique, before, after lookup) (claim, release []string, err error) {
	for _, u := range uniques {
		old, err := guardKey(kind, u, before)
		if err != nil {
			return nil, nil, err
		}
		next, err := guardKey(kind, u, after)
		if err != nil {
			return nil, nil, err
		}
		if old != next {
			claim = append(claim, next)
			release = append(release, old)
		}
	}
	return claim, release, nil
}

func applyGuardDiff(stored, claim, release []string) []string {
	out := make([]string, 0, len(stored)+len(claim))
	for _, k := range stored {
		if !slices.Contains(release, k) {
			out = append(out, k)
		}
	}
	for _, k := range claim {
		if !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out
}

// touchesUnique reports whether an update writes any field of the constraints.
func touchesUnique(upd *Update, uniques []Unique) bool {
	for _, u := range uniques {
		for _, field := range u {
			if upd.writes(field) {
				return true
			}
		}
	}
	return false
}
