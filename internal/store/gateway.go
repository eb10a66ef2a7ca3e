// Package store provides a typed wrapper over the Redis-compatible store:
// connection pooling, scripted transactions, JSON get/set, stream append,
// hash-vector upsert, and vector index management.
package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/8agana/unified-intelligence/internal/apperr"
	"github.com/8agana/unified-intelligence/internal/observability"
)

// Config configures the pooled client and its retry/breaker behavior.
type Config struct {
	Addr            string
	Password        string
	DB              int
	MaxPoolSize     int
	PoolWaitTimeout time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration

	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Gateway is the sole entry point into the Redis-compatible store. It owns
// the connection pool and wraps every operation with a circuit breaker and
// bounded exponential backoff.
type Gateway struct {
	rdb     *redis.Client
	breaker *circuitBreaker
	log     *observability.Logger
}

// New dials a pooled client against cfg and wires a circuit breaker around it.
func New(cfg Config, log *observability.Logger) *Gateway {
	threshold := cfg.BreakerThreshold
	if threshold <= 0 {
		threshold = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxPoolSize,
		PoolTimeout:  cfg.PoolWaitTimeout,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	return &Gateway{
		rdb:     rdb,
		breaker: newCircuitBreaker(threshold, cooldown),
		log:     log,
	}
}

// Close releases the pool.
func (g *Gateway) Close() error { return g.rdb.Close() }

// Raw exposes the underlying client for callers that need a command the
// gateway does not wrap (e.g. TTL, SCRIPT FLUSH); such calls bypass the
// circuit breaker and retry policy.
func (g *Gateway) Raw() *redis.Client { return g.rdb }

// retryPolicy returns a bounded exponential backoff with jitter, matching
// the caller-level retry the store gateway applies to connection errors.
func retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 5 * time.Second
	return b
}

// do executes fn with circuit-breaker gating and bounded retry on
// connection-level errors. Store-level errors that are not retriable
// (e.g. "already exists") are returned unchanged via fn's own handling.
func (g *Gateway) do(ctx context.Context, fn func() error) error {
	if !g.breaker.allow() {
		return apperr.Store("circuit breaker open", errors.New("store unavailable"))
	}

	var lastErr error
	retryErr := backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if isRetriable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(retryPolicy(), ctx))

	if retryErr != nil {
		g.breaker.recordFailure()
		if errors.Is(retryErr, context.DeadlineExceeded) || errors.Is(retryErr, context.Canceled) {
			return apperr.Store("store operation timed out", lastErr)
		}
		return apperr.Store("store operation failed", lastErr)
	}

	g.breaker.recordSuccess()
	return nil
}

func isRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, redis.ErrClosed) {
		return false
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection") || strings.Contains(msg, "EOF") || strings.Contains(msg, "timeout")
}

// EvalSha runs a cached script by digest. Callers (Script Cache) are
// responsible for catching NOSCRIPT and retrying once after a reload.
func (g *Gateway) EvalSha(ctx context.Context, sha string, keys []string, args ...interface{}) (interface{}, error) {
	var res interface{}
	err := g.do(ctx, func() error {
		v, err := g.rdb.EvalSha(ctx, sha, keys, args...).Result()
		if err != nil {
			// A script returning false/nil is a result, not a failure.
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return err
		}
		res = v
		return nil
	})
	return res, err
}

// ScriptLoad installs a script body and returns its SHA1 digest.
func (g *Gateway) ScriptLoad(ctx context.Context, src string) (string, error) {
	var sha string
	err := g.do(ctx, func() error {
		v, err := g.rdb.ScriptLoad(ctx, src).Result()
		if err != nil {
			return err
		}
		sha = v
		return nil
	})
	return sha, err
}

// JSONGet reads path from key via RedisJSON, unwrapping the root-path
// single-element array convention (JSON.GET returns `[value]` for `$`).
// Reports (value, found, error).
func (g *Gateway) JSONGet(ctx context.Context, key, path string) (string, bool, error) {
	var raw string
	err := g.do(ctx, func() error {
		v, err := g.rdb.Do(ctx, "JSON.GET", key, path).Text()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return err
		}
		raw = v
		return nil
	})
	if err != nil {
		return "", false, err
	}
	if raw == "" {
		return "", false, nil
	}
	return unwrapRootArray(raw), true, nil
}

// unwrapRootArray strips the single-element array RedisJSON wraps `$`
// reads in, returning the bare value unchanged if it isn't wrapped.
func unwrapRootArray(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) >= 2 && trimmed[0] == '[' && trimmed[len(trimmed)-1] == ']' {
		return strings.TrimSpace(trimmed[1 : len(trimmed)-1])
	}
	return raw
}

// JSONSet writes value (a JSON-encoded string) at path on key.
func (g *Gateway) JSONSet(ctx context.Context, key, path, value string) error {
	return g.do(ctx, func() error {
		return g.rdb.Do(ctx, "JSON.SET", key, path, value).Err()
	})
}

// Expire sets key's TTL. A non-positive ttlSeconds is a no-op: callers
// follow the "no TTL" default and only pass through an explicit override.
func (g *Gateway) Expire(ctx context.Context, key string, ttlSeconds int64) error {
	if ttlSeconds <= 0 {
		return nil
	}
	return g.do(ctx, func() error {
		return g.rdb.Expire(ctx, key, time.Duration(ttlSeconds)*time.Second).Err()
	})
}

// HashUpsert sets the given fields on a hash key.
func (g *Gateway) HashUpsert(ctx context.Context, key string, fields map[string]interface{}) error {
	return g.do(ctx, func() error {
		return g.rdb.HSet(ctx, key, fields).Err()
	})
}

// HashMGet reads a fixed list of fields from a hash key. Missing fields
// come back as empty strings, matching go-redis's HMGet semantics.
func (g *Gateway) HashMGet(ctx context.Context, key string, fields []string) ([]string, error) {
	var out []string
	err := g.do(ctx, func() error {
		vals, err := g.rdb.HMGet(ctx, key, fields...).Result()
		if err != nil {
			return err
		}
		out = make([]string, len(vals))
		for i, v := range vals {
			if v == nil {
				out[i] = ""
				continue
			}
			out[i], _ = v.(string)
		}
		return nil
	})
	return out, err
}

// Del removes one or more keys outright.
func (g *Gateway) Del(ctx context.Context, keys ...string) error {
	return g.do(ctx, func() error {
		return g.rdb.Del(ctx, keys...).Err()
	})
}

// HDel removes fields from a hash key.
func (g *Gateway) HDel(ctx context.Context, key string, fields ...string) error {
	return g.do(ctx, func() error {
		return g.rdb.HDel(ctx, key, fields...).Err()
	})
}

// StringGet reads an opaque binary value (e.g. a cached embedding vector).
// Reports (value, found, error).
func (g *Gateway) StringGet(ctx context.Context, key string) ([]byte, bool, error) {
	var out []byte
	var found bool
	err := g.do(ctx, func() error {
		v, err := g.rdb.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return err
		}
		out = v
		found = true
		return nil
	})
	return out, found, err
}

// StringSet writes an opaque binary value.
func (g *Gateway) StringSet(ctx context.Context, key string, value []byte) error {
	return g.do(ctx, func() error {
		return g.rdb.Set(ctx, key, value, 0).Err()
	})
}

// HashGetAll reads every field of a hash key.
func (g *Gateway) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	var out map[string]string
	err := g.do(ctx, func() error {
		vals, err := g.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		out = vals
		return nil
	})
	return out, err
}

// StreamAppend appends an entry to a stream, trimmed approximately to
// maxLen (MAXLEN ~ N), never blocking on an exact trim.
func (g *Gateway) StreamAppend(ctx context.Context, stream string, fields map[string]interface{}, approxMaxLen int64) error {
	return g.do(ctx, func() error {
		return g.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			MaxLen: approxMaxLen,
			Approx: true,
			Values: fields,
		}).Err()
	})
}

// ScanFunc is called for each batch of keys matching pattern. Returning an
// error aborts the scan.
type ScanFunc func(keys []string) error

// Scan walks the keyspace in batches of the given size using SCAN cursors,
// never issuing the blocking KEYS command.
func (g *Gateway) Scan(ctx context.Context, pattern string, batch int64, fn ScanFunc) error {
	var cursor uint64
	for {
		keys, next, err := g.rdb.Scan(ctx, cursor, pattern, batch).Result()
		if err != nil {
			return apperr.Store("scan failed", err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// SearchReply is the parsed result of a RediSearch FT.SEARCH call: the
// total match count and, per document, its id and field map.
type SearchReply struct {
	Total int
	Docs  []SearchDoc
}

// SearchDoc is a single search result: its key and a subset of its fields.
type SearchDoc struct {
	ID     string
	Fields map[string]string
}

// Search issues FT.SEARCH against index with the given raw query string and
// trailing arguments (e.g. "LIMIT", 0, 5, "RETURN", 1, "score").
func (g *Gateway) Search(ctx context.Context, index, query string, args ...interface{}) (*SearchReply, error) {
	cmdArgs := append([]interface{}{"FT.SEARCH", index, query}, args...)
	var reply *SearchReply
	err := g.do(ctx, func() error {
		res, err := g.rdb.Do(ctx, cmdArgs...).Result()
		if err != nil {
			return err
		}
		reply = parseSearchReply(res)
		return nil
	})
	return reply, err
}

func parseSearchReply(res interface{}) *SearchReply {
	items, ok := res.([]interface{})
	if !ok || len(items) == 0 {
		return &SearchReply{}
	}
	total, _ := toInt(items[0])
	reply := &SearchReply{Total: total}

	// Remaining items alternate id, fields-array (when RETURN is used) or
	// id, fields-array pairs regardless of NOCONTENT.
	for i := 1; i < len(items); i++ {
		id, ok := items[i].(string)
		if !ok {
			continue
		}
		doc := SearchDoc{ID: id, Fields: map[string]string{}}
		if i+1 < len(items) {
			if arr, ok := items[i+1].([]interface{}); ok {
				for j := 0; j+1 < len(arr); j += 2 {
					k, _ := arr[j].(string)
					v, _ := arr[j+1].(string)
					doc.Fields[k] = v
				}
				i++
			}
		}
		reply.Docs = append(reply.Docs, doc)
	}
	return reply
}

func toInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case int64:
		return int(t), nil
	case int:
		return t, nil
	case string:
		return strconv.Atoi(t)
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}

// VectorSchema describes the hash fields indexed alongside the vector for
// a single embedding document prefix.
type VectorSchema struct {
	Dims          int
	DistanceMetric string // COSINE
	M              int
	EFConstruction int
}

// EnsureVectorIndex creates index over prefix if it doesn't already exist.
// It is idempotent: a second call returns created=false. "Already exists"
// errors are swallowed; "unknown command" (module missing) propagates as a
// fatal store error.
func (g *Gateway) EnsureVectorIndex(ctx context.Context, index, prefix string, schema VectorSchema) (bool, error) {
	probeErr := g.do(ctx, func() error {
		return g.rdb.Do(ctx, "FT.INFO", index).Err()
	})
	if probeErr == nil {
		return false, nil
	}
	if !isUnknownIndex(probeErr) {
		return false, probeErr
	}

	metric := schema.DistanceMetric
	if metric == "" {
		metric = "COSINE"
	}
	m := schema.M
	if m <= 0 {
		m = 16
	}
	ef := schema.EFConstruction
	if ef <= 0 {
		ef = 200
	}

	args := []interface{}{
		"FT.CREATE", index, "ON", "HASH", "PREFIX", 1, prefix,
		"SCHEMA",
		"content", "TEXT",
		"tags", "TAG", "SEPARATOR", ",",
		"category", "TEXT",
		"importance", "TEXT",
		"chain_id", "TEXT",
		"thought_id", "TEXT",
		"ts", "NUMERIC", "SORTABLE",
		"vector", "VECTOR", "HNSW", "12",
		"TYPE", "FLOAT32",
		"DIM", schema.Dims,
		"DISTANCE_METRIC", metric,
		"M", m,
		"EF_CONSTRUCTION", ef,
	}

	err := g.do(ctx, func() error {
		err := g.rdb.Do(ctx, args...).Err()
		if err != nil && isAlreadyExists(err) {
			return nil
		}
		return err
	})
	if err != nil {
		if isUnknownIndex(err) {
			return false, apperr.Store("vector search module not available", err)
		}
		return false, err
	}
	return true, nil
}

// EnsureTextIndex creates a JSON-backed full-text index over prefix if it
// doesn't already exist, mirroring EnsureVectorIndex's idempotence but
// targeting ON JSON documents rather than hash-vector ones.
func (g *Gateway) EnsureTextIndex(ctx context.Context, index, prefix string, fields map[string]string) (bool, error) {
	probeErr := g.do(ctx, func() error {
		return g.rdb.Do(ctx, "FT.INFO", index).Err()
	})
	if probeErr == nil {
		return false, nil
	}
	if !isUnknownIndex(probeErr) {
		return false, probeErr
	}

	args := []interface{}{
		"FT.CREATE", index, "ON", "JSON", "PREFIX", 1, prefix,
		"SCHEMA",
	}
	for path, schema := range fields {
		args = append(args, "$."+path, "AS", path, schema)
	}

	err := g.do(ctx, func() error {
		err := g.rdb.Do(ctx, args...).Err()
		if err != nil && isAlreadyExists(err) {
			return nil
		}
		return err
	})
	if err != nil {
		if isUnknownIndex(err) {
			return false, apperr.Store("full-text search module not available", err)
		}
		return false, err
	}
	return true, nil
}

func isAlreadyExists(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists")
}

func isUnknownIndex(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unknown index name") || strings.Contains(msg, "no such index")
}

// EncodeVector serializes a float32 slice into the raw little-endian byte
// layout stored in the "vector" hash field.
func EncodeVector(v []float32) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(len(v) * 4)
	for _, f := range v {
		_ = binary.Write(buf, binary.LittleEndian, math.Float32bits(f))
	}
	return buf.Bytes()
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(b[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}
