package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// KVRepository stores opaque values in the kv_entries table. It satisfies
// kvstore.Store.
type KVRepository struct {
	db *DB
}

func NewKVRepository(db *DB) *KVRepository {
	return &KVRepository{db: db}
}

func (r *KVRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query := "SELECT entry_value FROM kv_entries WHERE entry_key = " + r.db.placeholder(1)

	var value []byte
	err := r.db.conn.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

func (r *KVRepository) Set(ctx context.Context, key string, value []byte) error {
	query := fmt.Sprintf(`
	INSERT INTO kv_entries (entry_key, entry_value, updated_at) VALUES (%s, %s, %s)
	ON CONFLICT (entry_key) DO UPDATE SET entry_value = excluded.entry_value, updated_at = excluded.updated_at`,
		r.db.placeholder(1), r.db.placeholder(2), r.db.placeholder(3))

	if value == nil {
		value = []byte{}
	}
	if _, err := r.db.conn.ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Keys returns every key starting with prefix in lexical byte order.
func (r *KVRepository) Keys(ctx context.Context, prefix string) ([]string, error) {
	query := "SELECT entry_key FROM kv_entries WHERE entry_key LIKE " + r.db.placeholder(1) + ` ESCAPE '\'`

	rows, err := r.db.conn.QueryContext(ctx, query, likeEscaper.Replace(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		// SQLite LIKE is case-insensitive for ASCII.
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	sort.Strings(keys)
	return keys, nil
}
