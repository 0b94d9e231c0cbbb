package calculations

import (
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `
CREATE TABLE optimization_results (request_hash TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE simulation_results (request_hash TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);
`

type payload struct {
	Weights map[string]float64 `json:"weights"`
	Ratio   *float64           `json:"ratio,omitempty"`
	Count   int                `json:"count"`
	Partial bool               `json:"partial"`
}

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// a second connection would see a different in-memory database
	db.SetMaxOpenConns(1)

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	return db
}

func TestRequestHash_StableForEqualRequests(t *testing.T) {
	a := map[string]interface{}{"portfolio_id": "main", "weights": map[string]float64{"A": 0.4, "B": 0.6}}
	b := map[string]interface{}{"weights": map[string]float64{"B": 0.6, "A": 0.4}, "portfolio_id": "main"}

	ha, err := RequestHash(a)
	require.NoError(t, err)
	hb, err := RequestHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)

	c := map[string]interface{}{"portfolio_id": "other", "weights": map[string]float64{"A": 0.4, "B": 0.6}}
	hc, err := RequestHash(c)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}

type allocation map[string]float64

type allocationRequest struct {
	Portfolio string     `json:"portfolio"`
	Weights   allocation `json:"weights"`
	Holdings  allocation `json:"holdings"`
}

func TestRequestHash_NamedMapTypeIsStable(t *testing.T) {
	req := allocationRequest{
		Portfolio: "main",
		Weights:   allocation{"AAPL": 0.25, "MSFT": 0.25, "GOOG": 0.2, "AMZN": 0.15, "NVDA": 0.15},
		Holdings:  allocation{"AAPL": 0.5, "TSLA": 0.3, "META": 0.2},
	}

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		h, err := RequestHash(req)
		require.NoError(t, err)
		seen[h] = struct{}{}
	}
	assert.Len(t, seen, 1)
}

func TestStoreAndGetIfFresh(t *testing.T) {
	cache := NewResultCache(setupTestDB(t), time.Hour, zerolog.Nop())

	ratio := 1.25
	in := payload{Weights: map[string]float64{"A": 0.3, "B": 0.7}, Ratio: &ratio, Count: 3}
	require.NoError(t, cache.Store(TableOptimization, "k1", in))

	var out payload
	hit, err := cache.GetIfFresh(TableOptimization, "k1", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, in, out)

	hit, err = cache.GetIfFresh(TableOptimization, "missing", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	hit, err = cache.GetIfFresh(TableSimulation, "k1", &out)
	require.NoError(t, err)
	assert.False(t, hit, "tables are separate")
}

func TestGetIfFresh_Expired(t *testing.T) {
	db := setupTestDB(t)
	cache := NewResultCache(db, time.Hour, zerolog.Nop())

	require.NoError(t, cache.Store(TableSimulation, "old", payload{Count: 1}))
	_, err := db.Exec("UPDATE simulation_results SET expires_at = ?", time.Now().Add(-time.Minute).Unix())
	require.NoError(t, err)

	var out payload
	hit, err := cache.GetIfFresh(TableSimulation, "old", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestInvalidTable(t *testing.T) {
	cache := NewResultCache(setupTestDB(t), time.Hour, zerolog.Nop())

	assert.Error(t, cache.Store("positions", "k", payload{}))
	_, err := cache.GetIfFresh("positions; DROP TABLE x", "k", &payload{})
	assert.Error(t, err)
	assert.Error(t, cache.Delete("positions", "k"))
	_, err = cache.DeleteExpired("positions")
	assert.Error(t, err)
}

func TestDeleteAllExpired(t *testing.T) {
	db := setupTestDB(t)
	cache := NewResultCache(db, time.Hour, zerolog.Nop())

	require.NoError(t, cache.Store(TableOptimization, "fresh", payload{}))
	require.NoError(t, cache.Store(TableOptimization, "stale", payload{}))
	require.NoError(t, cache.Store(TableSimulation, "stale", payload{}))
	_, err := db.Exec("UPDATE optimization_results SET expires_at = 0 WHERE request_hash = 'stale'")
	require.NoError(t, err)
	_, err = db.Exec("UPDATE simulation_results SET expires_at = 0")
	require.NoError(t, err)

	results, err := cache.DeleteAllExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), results[TableOptimization])
	assert.Equal(t, int64(1), results[TableSimulation])

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM optimization_results").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestMemoize(t *testing.T) {
	cache := NewResultCache(setupTestDB(t), time.Hour, zerolog.Nop())

	var calls atomic.Int32
	compute := func() (*payload, bool, error) {
		calls.Add(1)
		return &payload{Count: 42}, true, nil
	}

	first, hit, err := Memoize(cache, TableOptimization, "k", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 42, first.Count)

	second, hit, err := Memoize(cache, TableOptimization, "k", compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMemoize_UncacheableResultIsNotStored(t *testing.T) {
	cache := NewResultCache(setupTestDB(t), time.Hour, zerolog.Nop())

	var calls atomic.Int32
	compute := func() (*payload, bool, error) {
		calls.Add(1)
		return &payload{Partial: true}, false, nil
	}

	for i := 0; i < 2; i++ {
		_, hit, err := Memoize(cache, TableSimulation, "partial", compute)
		require.NoError(t, err)
		assert.False(t, hit)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestMemoize_ErrorsAreNotCached(t *testing.T) {
	cache := NewResultCache(setupTestDB(t), time.Hour, zerolog.Nop())
	boom := errors.New("boom")

	_, _, err := Memoize(cache, TableOptimization, "k", func() (*payload, bool, error) {
		return nil, true, boom
	})
	assert.ErrorIs(t, err, boom)

	var out payload
	hit, err := cache.GetIfFresh(TableOptimization, "k", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestMemoize_CollapsesConcurrentCalls(t *testing.T) {
	cache := NewResultCache(setupTestDB(t), time.Hour, zerolog.Nop())

	release := make(chan struct{})
	var calls atomic.Int32
	compute := func() (*payload, bool, error) {
		calls.Add(1)
		<-release
		return &payload{Count: 7}, false, nil
	}

	var wg sync.WaitGroup
	results := make([]*payload, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, _, err := Memoize(cache, TableOptimization, "shared", compute)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(5))
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, 7, r.Count)
	}
}
