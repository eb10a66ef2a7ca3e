// Package scripts loads the fixed set of server-side Lua scripts the store
// gateway runs as atomic single-key transactions, and keeps their digests
// warm across a NOSCRIPT reload.
package scripts

import (
	"context"
	"strings"
	"sync"

	"github.com/8agana/unified-intelligence/internal/apperr"
	"github.com/8agana/unified-intelligence/internal/store"
)

// Name identifies one of the fixed scripts loaded at startup.
type Name string

const (
	StoreThought     Name = "store_thought"
	GetChainThoughts Name = "get_chain_thoughts"
	SearchThoughts   Name = "search_thoughts"
	UpdateChain      Name = "update_chain"
	GetThought       Name = "get_thought"
	CleanupExpired   Name = "cleanup_expired"
	CreateEntity     Name = "create_entity"
	AppendThoughtID  Name = "append_thought_id"
)

var bodies = map[Name]string{
	StoreThought: `
-- KEYS: thought_key, dedup_key, counter_key, chain_key (optional)
-- ARGV: thought_json, uuid, ts, chain_id (optional)
local thought_key = KEYS[1]
local dedup_key = KEYS[2]
local counter_key = KEYS[3]
local chain_key = KEYS[4]
local thought_json = ARGV[1]
local uuid = ARGV[2]
local ts = ARGV[3]

if redis.call('SISMEMBER', dedup_key, uuid) == 1 then
  return 'DUPLICATE'
end

redis.call('JSON.SET', thought_key, '$', thought_json)
redis.call('SADD', dedup_key, uuid)
redis.call('TS.ADD', counter_key, ts, 1)
if chain_key ~= nil and chain_key ~= '' then
  redis.call('RPUSH', chain_key, uuid)
end
return 'OK'
`,
	GetChainThoughts: `
-- KEYS: chain_key
-- ARGV: instance
local chain_key = KEYS[1]
local instance = ARGV[1]
local ids = redis.call('LRANGE', chain_key, 0, -1)
local out = {}
for i, id in ipairs(ids) do
  out[i] = redis.call('JSON.GET', instance .. ':Thoughts:' .. id, '$')
end
return out
`,
	SearchThoughts: `
-- KEYS: index
-- ARGV: query, offset, limit
local index = KEYS[1]
local query = ARGV[1]
local offset = ARGV[2]
local limit = ARGV[3]
return redis.call('FT.SEARCH', index, query, 'LIMIT', offset, limit)
`,
	UpdateChain: `
-- KEYS: chain_meta_key
-- ARGV: meta_json
redis.call('JSON.SET', KEYS[1], '$', ARGV[1])
return 'OK'
`,
	GetThought: `
-- KEYS: thought_key
return redis.call('JSON.GET', KEYS[1], '$')
`,
	CleanupExpired: `
-- KEYS: key
-- ARGV: cutoff_ts
if redis.call('EXISTS', KEYS[1]) == 1 then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`,
	CreateEntity: `
-- KEYS: entity_key, name_index_key
-- ARGV: node_json, name, id
redis.call('JSON.SET', KEYS[1], '$', ARGV[1])
redis.call('HSET', KEYS[2], ARGV[2], ARGV[3])
return 'OK'
`,
	AppendThoughtID: `
-- KEYS: entity_key
-- ARGV: thought_id
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 'NOTFOUND'
end
redis.call('JSON.SET', KEYS[1], '$.thought_ids', '[]', 'NX')
redis.call('JSON.ARRAPPEND', KEYS[1], '$.thought_ids', cjson.encode(ARGV[1]))
return 'OK'
`,
}

// Cache holds the digests of the installed scripts behind a read-write
// lock; readers (EvalSha callers) never block each other, and a NOSCRIPT
// miss triggers a single writer that reinstalls and refreshes all of them.
type Cache struct {
	mu      sync.RWMutex
	digests map[Name]string
	gw      *store.Gateway
}

// New loads all scripts against gw and returns a Cache with warm digests.
func New(ctx context.Context, gw *store.Gateway) (*Cache, error) {
	c := &Cache{gw: gw, digests: map[Name]string{}}
	if err := c.reloadAll(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) reloadAll(ctx context.Context) error {
	fresh := make(map[Name]string, len(bodies))
	for name, body := range bodies {
		sha, err := c.gw.ScriptLoad(ctx, body)
		if err != nil {
			return apperr.Script("failed to load script "+string(name), err)
		}
		fresh[name] = sha
	}
	c.mu.Lock()
	c.digests = fresh
	c.mu.Unlock()
	return nil
}

func (c *Cache) digest(name Name) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.digests[name]
}

// Exec runs the named script, transparently reinstalling and retrying
// exactly once on NOSCRIPT.
func (c *Cache) Exec(ctx context.Context, name Name, keys []string, args ...interface{}) (interface{}, error) {
	sha := c.digest(name)
	if sha == "" {
		if err := c.reloadAll(ctx); err != nil {
			return nil, err
		}
		sha = c.digest(name)
	}

	res, err := c.gw.EvalSha(ctx, sha, keys, args...)
	if err == nil {
		return res, nil
	}
	if !isNoScript(err) {
		return nil, err
	}

	if err := c.reloadAll(ctx); err != nil {
		return nil, err
	}
	res, err = c.gw.EvalSha(ctx, c.digest(name), keys, args...)
	if err != nil {
		return nil, apperr.Store("script retry after reload failed", err)
	}
	return res, nil
}

// isNoScript reports whether err is a NOSCRIPT miss. The gateway wraps
// connection-level errors as apperr.Store, but NOSCRIPT always surfaces
// with the raw Redis error text intact, so a substring check is sufficient.
func isNoScript(err error) bool {
	return err != nil && strings.Contains(err.Error(), "NOSCRIPT")
}
