// ABOUTME: Generic CRUD operations over named object stores
// ABOUTME: Each operation runs in its own short-lived transaction
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"

	"github.com/junelab/palmchat/internal/schema"
)

// Get returns the document stored under key, or nil when absent.
func (m *Manager) Get(ctx context.Context, store string, key any) (map[string]any, error) {
	conn, spec, err := m.storeConn(ctx, store)
	if err != nil {
		return nil, err
	}
	k, err := normalizeKey(key, spec)
	if err != nil {
		return nil, err
	}

	var raw string
	row := conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE k = ?`, schema.TableFor(store)), k)
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s/%v: %w", store, key, err)
	}
	return decodeDoc(raw)
}

// GetInto unmarshals the document stored under key into v. Returns false
// when the key is absent.
func (m *Manager) GetInto(ctx context.Context, store string, key any, v any) (bool, error) {
	conn, spec, err := m.storeConn(ctx, store)
	if err != nil {
		return false, err
	}
	k, err := normalizeKey(key, spec)
	if err != nil {
		return false, err
	}

	var raw string
	row := conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE k = ?`, schema.TableFor(store)), k)
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("get %s/%v: %w", store, key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("get %s/%v: malformed document: %w", store, key, err)
	}
	return true, nil
}

// GetAll returns every document in the store in primary-key order.
func (m *Manager) GetAll(ctx context.Context, store string) ([]map[string]any, error) {
	conn, _, err := m.storeConn(ctx, store)
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx,
		fmt.Sprintf(`SELECT doc FROM %s ORDER BY k`, schema.TableFor(store)))
	if err != nil {
		return nil, fmt.Errorf("getAll %s: %w", store, err)
	}
	defer func() { _ = rows.Close() }()

	var docs []map[string]any
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("getAll %s: %w", store, err)
		}
		doc, err := decodeDoc(raw)
		if err != nil {
			return nil, fmt.Errorf("getAll %s: %w", store, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Put upserts a document and returns the primary key the store assigned
// (or the key carried by the document). Auto-increment stores inject the
// assigned key into the document under "id".
func (m *Manager) Put(ctx context.Context, store string, doc map[string]any) (any, error) {
	conn, spec, err := m.storeConn(ctx, store)
	if err != nil {
		return nil, err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("put %s: %w", store, err)
	}
	defer func() { _ = tx.Rollback() }()

	key, err := putInTx(ctx, tx, spec, doc)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("put %s: %w", store, err)
	}
	return key, nil
}

// PutValue marshals a typed value through JSON and upserts it.
func (m *Manager) PutValue(ctx context.Context, store string, v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("put %s: %w", store, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("put %s: value is not a document: %w", store, err)
	}
	return m.Put(ctx, store, doc)
}

// putInTx performs the upsert inside the caller's transaction so bulk import
// can batch many documents per transaction.
func putInTx(ctx context.Context, tx *sql.Tx, spec schema.StoreSpec, doc map[string]any) (any, error) {
	table := schema.TableFor(spec.Name)

	if spec.AutoIncrement {
		if id, ok := doc["id"]; ok {
			k, err := intKey(id)
			if err != nil {
				return nil, fmt.Errorf("put %s: %w", spec.Name, err)
			}
			raw, err := json.Marshal(doc)
			if err != nil {
				return nil, fmt.Errorf("put %s: %w", spec.Name, err)
			}
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`INSERT OR REPLACE INTO %s (k, doc) VALUES (?, ?)`, table),
				k, string(raw)); err != nil {
				return nil, fmt.Errorf("put %s: %w", spec.Name, err)
			}
			return k, nil
		}
		// No key yet: let the store assign one, then mirror it into the doc.
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (doc) VALUES ('{}')`, table))
		if err != nil {
			return nil, fmt.Errorf("put %s: %w", spec.Name, err)
		}
		k, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("put %s: %w", spec.Name, err)
		}
		doc["id"] = k
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("put %s: %w", spec.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET doc = ? WHERE k = ?`, table),
			string(raw), k); err != nil {
			return nil, fmt.Errorf("put %s: %w", spec.Name, err)
		}
		return k, nil
	}

	keyVal, ok := doc[spec.KeyPath]
	if !ok || keyVal == nil {
		return nil, fmt.Errorf("put %s: document is missing key attribute %q", spec.Name, spec.KeyPath)
	}
	k, err := normalizeKey(keyVal, spec)
	if err != nil {
		return nil, fmt.Errorf("put %s: %w", spec.Name, err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("put %s: %w", spec.Name, err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT OR REPLACE INTO %s (k, doc) VALUES (?, ?)`, table),
		k, string(raw)); err != nil {
		return nil, fmt.Errorf("put %s: %w", spec.Name, err)
	}
	return keyVal, nil
}

// Delete removes the document under key. Deleting a missing key succeeds.
func (m *Manager) Delete(ctx context.Context, store string, key any) error {
	conn, spec, err := m.storeConn(ctx, store)
	if err != nil {
		return err
	}
	k, err := normalizeKey(key, spec)
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE k = ?`, schema.TableFor(store)), k); err != nil {
		return fmt.Errorf("delete %s/%v: %w", store, key, err)
	}
	return nil
}

// Count returns the number of documents in the store.
func (m *Manager) Count(ctx context.Context, store string) (int, error) {
	conn, _, err := m.storeConn(ctx, store)
	if err != nil {
		return 0, err
	}
	var n int
	row := conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, schema.TableFor(store)))
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", store, err)
	}
	return n, nil
}

// Clear removes every document in the store.
func (m *Manager) Clear(ctx context.Context, store string) error {
	conn, _, err := m.storeConn(ctx, store)
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s`, schema.TableFor(store))); err != nil {
		return fmt.Errorf("clear %s: %w", store, err)
	}
	return nil
}

// Keys returns every primary key in the store.
func (m *Manager) Keys(ctx context.Context, store string) ([]string, error) {
	conn, _, err := m.storeConn(ctx, store)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx,
		fmt.Sprintf(`SELECT k FROM %s ORDER BY k`, schema.TableFor(store)))
	if err != nil {
		return nil, fmt.Errorf("keys %s: %w", store, err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("keys %s: %w", store, err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// BulkPut upserts a batch of documents inside one transaction and returns
// how many were written and how many were skipped for lacking a key.
func (m *Manager) BulkPut(ctx context.Context, store string, docs []map[string]any) (added, skipped int, err error) {
	conn, spec, err := m.storeConn(ctx, store)
	if err != nil {
		return 0, 0, err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("bulk put %s: %w", store, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, doc := range docs {
		if _, perr := putInTx(ctx, tx, spec, doc); perr != nil {
			skipped++
			continue
		}
		added++
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("bulk put %s: %w", store, err)
	}
	return added, skipped, nil
}

func (m *Manager) storeConn(ctx context.Context, store string) (*sql.DB, schema.StoreSpec, error) {
	spec, ok := schema.Lookup(store)
	if !ok {
		return nil, schema.StoreSpec{}, fmt.Errorf("%w: %s", ErrStoreNotFound, store)
	}
	conn, err := m.Init(ctx)
	if err != nil {
		return nil, schema.StoreSpec{}, err
	}
	return conn, spec, nil
}

func decodeDoc(raw string) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("malformed document: %w", err)
	}
	return doc, nil
}

// normalizeKey converts a caller-provided key into the column value used by
// the backing table: int64 for auto-increment stores, string otherwise.
func normalizeKey(key any, spec schema.StoreSpec) (any, error) {
	if spec.AutoIncrement {
		return intKey(key)
	}
	switch k := key.(type) {
	case string:
		return k, nil
	case fmt.Stringer:
		return k.String(), nil
	case float64:
		if k == math.Trunc(k) {
			return fmt.Sprintf("%d", int64(k)), nil
		}
		return fmt.Sprintf("%v", k), nil
	case int:
		return fmt.Sprintf("%d", k), nil
	case int64:
		return fmt.Sprintf("%d", k), nil
	default:
		return nil, fmt.Errorf("unsupported key type %T", key)
	}
}

func intKey(key any) (int64, error) {
	switch k := key.(type) {
	case int64:
		return k, nil
	case int:
		return int64(k), nil
	case float64:
		if k != math.Trunc(k) {
			return 0, fmt.Errorf("auto-increment key must be an integer, got %v", k)
		}
		return int64(k), nil
	default:
		return 0, fmt.Errorf("auto-increment key must be an integer, got %T", key)
	}
}
