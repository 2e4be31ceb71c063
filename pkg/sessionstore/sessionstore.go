// Package sessionstore persists a detection session's channel.Data fact
// store to Redis, so a long-running driver can resume a session (or hand
// it to another worker) instead of re-probing a target from scratch.
//
// Grounded on the ratelimiter/persistence package's RedisEvaler interface
// and its Lua-script idempotency idiom: SETNX a marker before applying a
// write, same shape as that package's commit/counter script, adapted here
// to an idempotent "only write if this session snapshot is newer" guard.
package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgryski/go-rendezvous"
	"github.com/redis/go-redis/v9"

	"github.com/sstimap/sstimap-go/pkg/channel"
)

// saveScript applies a session snapshot only if the incoming revision is
// newer than whatever is already stored, mirroring the ratelimiter
// persister's idempotent-marker-then-apply shape.
const saveScript = `
local key = KEYS[1]
local revKey = KEYS[2]
local newRev = tonumber(ARGV[1])
local payload = ARGV[2]
local ttlSeconds = tonumber(ARGV[3])

local cur = tonumber(redis.call('GET', revKey))
if cur and cur >= newRev then
  return 0
end

redis.call('SET', key, payload)
redis.call('SET', revKey, newRev)
if ttlSeconds and ttlSeconds > 0 then
  redis.call('EXPIRE', key, ttlSeconds)
  redis.call('EXPIRE', revKey, ttlSeconds)
end
return 1
`

// Evaler abstracts the minimal Redis surface the store needs, so tests can
// substitute an in-memory fake without pulling in a real Redis server.
type Evaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...any) (any, error)
	Get(ctx context.Context, key string) (string, error)
}

// goredisEvaler adapts a *redis.Client to Evaler.
type goredisEvaler struct{ c *redis.Client }

func (g goredisEvaler) Eval(ctx context.Context, script string, keys []string, args ...any) (any, error) {
	return g.c.Eval(ctx, script, keys, args...).Result()
}

func (g goredisEvaler) Get(ctx context.Context, key string) (string, error) {
	return g.c.Get(ctx, key).Result()
}

// Store shards sessions across a fixed set of Redis addresses by
// rendezvous (highest random weight) hashing on the session ID, so the
// same session always lands on the same shard without a coordination
// service, and adding or removing a shard only remaps the sessions hashed
// to it.
type Store struct {
	shards []Evaler
	names  []string
	hash   *rendezvous.Rendezvous
	ttl    time.Duration
}

// snapshot is the wire format written to Redis: the session's fact map
// plus a monotonic revision counter used by saveScript's freshness check.
type snapshot struct {
	Revision int64          `json:"revision"`
	Facts    map[string]any `json:"facts"`
}

// New builds a Store over the given Redis addresses, sharding sessions
// across them by rendezvous hashing. ttl is the expiry applied to each
// stored session; zero means "never expires".
func New(addrs []string, ttl time.Duration) *Store {
	s := &Store{ttl: ttl}
	for _, addr := range addrs {
		s.shards = append(s.shards, goredisEvaler{c: redis.NewClient(&redis.Options{Addr: addr})})
		s.names = append(s.names, addr)
	}
	s.hash = rendezvous.New(s.names, hashString)
	return s
}

// newWithEvalers builds a Store directly over caller-supplied Evalers,
// bypassing the real Redis client; used by tests.
func newWithEvalers(names []string, shards []Evaler, ttl time.Duration) *Store {
	return &Store{
		shards: shards,
		names:  names,
		hash:   rendezvous.New(names, hashString),
		ttl:    ttl,
	}
}

func hashString(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

func (s *Store) shardFor(sessionID string) Evaler {
	name := s.hash.Lookup(sessionID)
	for i, n := range s.names {
		if n == name {
			return s.shards[i]
		}
	}
	return s.shards[0]
}

// Save persists data under sessionID at revision, skipping the write if a
// stored revision is already at or past it (e.g. a stale retry racing a
// newer save from the same driver).
func (s *Store) Save(ctx context.Context, sessionID string, revision int64, data *channel.Data) error {
	payload, err := json.Marshal(snapshot{Revision: revision, Facts: data.Snapshot()})
	if err != nil {
		return fmt.Errorf("sessionstore: marshal snapshot: %w", err)
	}
	keys := []string{sessionKey(sessionID), revisionKey(sessionID)}
	args := []any{revision, string(payload), int(s.ttl.Seconds())}
	if _, err := s.shardFor(sessionID).Eval(ctx, saveScript, keys, args...); err != nil {
		return fmt.Errorf("sessionstore: save session %s: %w", sessionID, err)
	}
	return nil
}

// Load fetches the most recently saved snapshot for sessionID and replays
// its facts onto a fresh *channel.Data. It returns (nil, false, nil) if no
// snapshot exists yet.
func (s *Store) Load(ctx context.Context, sessionID string) (*channel.Data, bool, error) {
	raw, err := s.shardFor(sessionID).Get(ctx, sessionKey(sessionID))
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sessionstore: load session %s: %w", sessionID, err)
	}
	var snap snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, false, fmt.Errorf("sessionstore: decode session %s: %w", sessionID, err)
	}
	data := channel.NewData()
	for k, v := range snap.Facts {
		data.Set(k, v)
	}
	return data, true, nil
}

func sessionKey(id string) string  { return fmt.Sprintf("sstimap:session:%s", id) }
func revisionKey(id string) string { return fmt.Sprintf("sstimap:session:%s:rev", id) }
