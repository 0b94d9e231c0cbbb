// Package calculations memoizes expensive engine results in SQLite.
// Payloads are msgpack blobs with an expiration timestamp.
package calculations

import (
	"bytes"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"
)

const (
	TableOptimization = "optimization_results"
	TableSimulation   = "simulation_results"
)

// AllTables lists every cache table for cleanup
var AllTables = []string{TableOptimization, TableSimulation}

var validTables = func() map[string]bool {
	m := make(map[string]bool, len(AllTables))
	for _, t := range AllTables {
		m[t] = true
	}
	return m
}()

// ResultCache stores computed results keyed by a hash of their request
type ResultCache struct {
	db    *sql.DB
	ttl   time.Duration
	group singleflight.Group
	log   zerolog.Logger
}

// NewResultCache creates a cache over the calculations database
func NewResultCache(db *sql.DB, ttl time.Duration, log zerolog.Logger) *ResultCache {
	return &ResultCache{
		db:  db,
		ttl: ttl,
		log: log.With().Str("component", "result_cache").Logger(),
	}
}

// validateTable guards the table names interpolated into queries
func validateTable(table string) error {
	if !validTables[table] {
		return fmt.Errorf("invalid table name: %s", table)
	}
	return nil
}

func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte, dst interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(dst)
}

// RequestHash returns the sha256 of the request's canonical JSON. encoding/json
// sorts the keys of every map, named map types included, so equal requests
// always produce the same key.
func RequestHash(request interface{}) (string, error) {
	data, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Store saves value with expiration = now + ttl
func (c *ResultCache) Store(table, key string, value interface{}) error {
	if err := validateTable(table); err != nil {
		return err
	}

	data, err := encode(value)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	expiresAt := time.Now().Add(c.ttl).Unix()
	query := fmt.Sprintf("INSERT OR REPLACE INTO %s (request_hash, data, expires_at) VALUES (?, ?, ?)", table)
	if _, err := c.db.Exec(query, key, data, expiresAt); err != nil {
		return fmt.Errorf("failed to store result in %s: %w", table, err)
	}
	return nil
}

// GetIfFresh decodes an unexpired entry into dst. Returns false when the key
// is missing or expired.
func (c *ResultCache) GetIfFresh(table, key string, dst interface{}) (bool, error) {
	if err := validateTable(table); err != nil {
		return false, err
	}

	query := fmt.Sprintf("SELECT data FROM %s WHERE request_hash = ? AND expires_at > ?", table)

	var data []byte
	err := c.db.QueryRow(query, key, time.Now().Unix()).Scan(&data)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get result from %s: %w", table, err)
	}

	if err := decode(data, dst); err != nil {
		return false, fmt.Errorf("failed to unmarshal result from %s: %w", table, err)
	}
	return true, nil
}

// Delete removes a specific entry
func (c *ResultCache) Delete(table, key string) error {
	if err := validateTable(table); err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE request_hash = ?", table)
	if _, err := c.db.Exec(query, key); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return nil
}

// DeleteExpired removes all rows where expires_at <= now
func (c *ResultCache) DeleteExpired(table string) (int64, error) {
	if err := validateTable(table); err != nil {
		return 0, err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE expires_at <= ?", table)
	result, err := c.db.Exec(query, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired from %s: %w", table, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for %s: %w", table, err)
	}
	return deleted, nil
}

// DeleteAllExpired removes expired entries from every table
func (c *ResultCache) DeleteAllExpired() (map[string]int64, error) {
	results := make(map[string]int64)
	for _, table := range AllTables {
		deleted, err := c.DeleteExpired(table)
		if err != nil {
			return results, err
		}
		results[table] = deleted
	}
	return results, nil
}

// Memoize returns the cached value for key or computes it. Concurrent calls
// for the same key share one computation. compute reports whether its result
// may be cached; cache failures are logged and never fail the call.
func Memoize[T any](c *ResultCache, table, key string, compute func() (*T, bool, error)) (*T, bool, error) {
	var cached T
	if hit, err := c.GetIfFresh(table, key, &cached); err != nil {
		c.log.Warn().Err(err).Str("table", table).Msg("Cache read failed")
	} else if hit {
		return &cached, true, nil
	}

	v, err, _ := c.group.Do(table+":"+key, func() (interface{}, error) {
		result, cacheable, err := compute()
		if err != nil {
			return nil, err
		}
		if cacheable {
			if err := c.Store(table, key, result); err != nil {
				c.log.Warn().Err(err).Str("table", table).Msg("Cache write failed")
			}
		}
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*T), false, nil
}
