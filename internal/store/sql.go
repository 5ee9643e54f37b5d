package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/robolist/robolist/internal/db"
)

// SQLStore keeps entities as JSON documents in a relational database. It backs
// local development and tests with sqlite, and small deployments with postgres.
//
// Schema (see internal/db/migrations):
//
//	items(id, type, data)             one row per entity
//	item_index(item_id, field, value) rows for the indexed string fields
//	unique_keys(guard, item_id)       claimed uniqueness guards
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

func NewSQLStore(database *sqlx.DB, driver string) *SQLStore {
	return &SQLStore{db: database, driver: driver}
}

type itemRow struct {
	Type string `db:"type"`
	Data string `db:"data"`
}

func (s *SQLStore) Get(ctx context.Context, kind, id string, out any) error {
	var row itemRow
	err := s.db.GetContext(ctx, &row, `SELECT type, data FROM items WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && row.Type != kind) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get %s %s: %w", kind, id, err)
	}
	err = json.Unmarshal([]byte(row.Data), out)
	if err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", kind, id, err)
	}
	return nil
}

func (s *SQLStore) Put(ctx context.Context, kind string, item any, unique ...Unique) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	doc, err := decodeDoc(data)
	if err != nil {
		return err
	}
	id, _ := doc["id"].(string)
	if id == "" {
		return fmt.Errorf("put %s: missing id", kind)
	}
	keys, err := guardKeys(kind, unique, docLookup(doc))
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO items (id, type, data) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
			id, kind, string(data))
		if err != nil {
			return fmt.Errorf("failed to insert %s %s: %w", kind, id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%s %s: %w", kind, id, ErrConflict)
		}
		err = claimGuards(ctx, tx, id, keys)
		if err != nil {
			return fmt.Errorf("%s %s: %w", kind, id, err)
		}
		return writeIndex(ctx, tx, id, doc)
	})
}

func (s *SQLStore) Update(ctx context.Context, kind, id string, upd *Update, unique ...Unique) error {
	if upd.IsEmpty() {
		return nil
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var row itemRow
		err := tx.GetContext(ctx, &row, `SELECT type, data FROM items WHERE id = $1`+s.forUpdate(), id)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && row.Type != kind) {
			return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to load %s %s: %w", kind, id, err)
		}

		doc, err := decodeDoc([]byte(row.Data))
		if err != nil {
			return err
		}
		before := scalars(doc)

		for _, a := range upd.atLeast {
			n, ok := docInt(doc[a.Field])
			if !ok || n < a.Value.(int64) {
				return fmt.Errorf("%s %s: %w", kind, id, ErrConditionFailed)
			}
		}
		for _, a := range upd.sets {
			v, err := normalize(a.Value)
			if err != nil {
				return fmt.Errorf("failed to encode %s: %w", a.Field, err)
			}
			doc[a.Field] = v
		}
		for _, a := range upd.adds {
			n, _ := docInt(doc[a.Field])
			doc[a.Field] = json.Number(strconv.FormatInt(n+a.Value.(int64), 10))
		}
		for _, f := range upd.removes {
			delete(doc, f)
		}

		after := scalars(doc)
		claim, release, err := diffGuards(kind, unique, mapLookup(before), mapLookup(after))
		if err != nil {
			return err
		}
		for _, k := range release {
			_, err = tx.ExecContext(ctx, `DELETE FROM unique_keys WHERE guard = $1 AND item_id = $2`, k, id)
			if err != nil {
				return fmt.Errorf("failed to release guard: %w", err)
			}
		}
		err = claimGuards(ctx, tx, id, claim)
		if err != nil {
			return fmt.Errorf("%s %s: %w", kind, id, err)
		}

		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s: %w", kind, id, err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE items SET data = $1 WHERE id = $2`, string(data), id)
		if err != nil {
			return fmt.Errorf("failed to update %s %s: %w", kind, id, err)
		}
		if upd.returning != nil {
			err = json.Unmarshal(data, upd.returning)
			if err != nil {
				return fmt.Errorf("failed to decode %s %s: %w", kind, id, err)
			}
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM item_index WHERE item_id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to clear index for %s: %w", id, err)
		}
		return writeIndex(ctx, tx, id, doc)
	})
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, q := range []string{
			`DELETE FROM unique_keys WHERE item_id = $1`,
			`DELETE FROM item_index WHERE item_id = $1`,
			`DELETE FROM items WHERE id = $1`,
		} {
			_, err := tx.ExecContext(ctx, q, id)
			if err != nil {
				return fmt.Errorf("failed to delete %s: %w", id, err)
			}
		}
		return nil
	})
}

func (s *SQLStore) Scan(ctx context.Context, kind string, filter Filter, out any) error {
	var rows []string
	err := s.db.SelectContext(ctx, &rows, `SELECT data FROM items WHERE type = $1 ORDER BY id`, kind)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", kind, err)
	}
	return decodeMatching(rows, filter, out)
}

func (s *SQLStore) Query(ctx context.Context, kind, field string, value any, filter Filter, out any) error {
	v, err := normalize(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", field, err)
	}
	key, ok := scalarString(v)
	if !ok {
		return fmt.Errorf("query %s: value is not a scalar", IndexName(field))
	}

	var rows []string
	err = s.db.SelectContext(ctx, &rows, `
		SELECT i.data FROM items i
		JOIN item_index x ON x.item_id = i.id
		WHERE x.field = $1 AND x.value = $2 AND i.type = $3
		ORDER BY i.id`, field, key, kind)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", IndexName(field), err)
	}
	return decodeMatching(rows, filter, out)
}

func (s *SQLStore) EnsureTable(ctx context.Context) error {
	return db.Migrate(ctx, s.db.DB, s.driver)
}

func (s *SQLStore) DropTable(ctx context.Context) error {
	return db.Reset(ctx, s.db.DB, s.driver)
}

func (s *SQLStore) Close() error {
	return db.Close(s.db)
}

func (s *SQLStore) forUpdate() string {
	if s.driver == "pgx" {
		return " FOR UPDATE"
	}
	return ""
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	err = fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func claimGuards(ctx context.Context, tx *sqlx.Tx, id string, keys []string) error {
	for _, k := range keys {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO unique_keys (guard, item_id) VALUES ($1, $2) ON CONFLICT (guard) DO NOTHING`, k, id)
		if err != nil {
			return fmt.Errorf("failed to claim guard: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrConflict
		}
	}
	return nil
}

func writeIndex(ctx context.Context, tx *sqlx.Tx, id string, doc map[string]any) error {
	for _, field := range Indexes {
		if field == TypeAttr {
			continue
		}
		v, ok := doc[field].(string)
		if !ok {
			continue
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO item_index (item_id, field, value) VALUES ($1, $2, $3)`, id, field, v)
		if err != nil {
			return fmt.Errorf("failed to index %s.%s: %w", id, field, err)
		}
	}
	return nil
}

func decodeMatching(rows []string, filter Filter, out any) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	n := 0
	for _, data := range rows {
		if !filter.empty() {
			doc, err := decodeDoc([]byte(data))
			if err != nil {
				return err
			}
			ok, err := filter.match(doc)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(data)
		n++
	}
	buf.WriteByte(']')

	err := json.Unmarshal(buf.Bytes(), out)
	if err != nil {
		return fmt.Errorf("failed to decode results: %w", err)
	}
	return nil
}

func (f Filter) match(doc map[string]any) (bool, error) {
	for field, want := range f.Equals {
		w, err := normalize(want)
		if err != nil {
			return false, fmt.Errorf("failed to encode filter %s: %w", field, err)
		}
		if !reflect.DeepEqual(doc[field], w) {
			return false, nil
		}
	}
	if f.Search == "" || len(f.SearchFields) == 0 {
		return true, nil
	}
	for _, field := range f.SearchFields {
		if s, ok := doc[field].(string); ok && strings.Contains(s, f.Search) {
			return true, nil
		}
	}
	return false, nil
}

func decodeDoc(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	err := dec.Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

// normalize converts a Go value into the shape it has inside a decoded document.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	err = dec.Decode(&out)
	return out, err
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

func scalars(doc map[string]any) map[string]string {
	out := make(map[string]string, len(doc))
	for k, v := range doc {
		if s, ok := scalarString(v); ok {
			out[k] = s
		}
	}
	return out
}

func docLookup(doc map[string]any) lookup {
	return func(field string) (string, bool) {
		return scalarString(doc[field])
	}
}

func mapLookup(m map[string]string) lookup {
	return func(field string) (string, bool) {
		v, ok := m[field]
		return v, ok
	}
}

func docInt(v any) (int64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return 0, false
		}
		return int64(f), true
	}
	return i, true
}
