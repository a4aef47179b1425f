package memo

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"oss.terrastruct.com/xdefer"

	"oss.terrastruct.com/d2render/lib/syncmap"
)

// Store holds rendered output by fingerprint. Implementations are safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key uint64) (value string, ok bool, err error)
	Set(ctx context.Context, key uint64, value string) error
}

const (
	StoreMemory = "memory"
	StoreLRU    = "lru"
	StoreRedis  = "redis"
)

// OpenStore builds the store named by kind. size bounds the lru store and redisURL
// locates the redis store. namespace partitions the redis keyspace between renderers
// whose output differs for the same request.
func OpenStore(ctx context.Context, kind string, size int, redisURL, namespace string) (_ Store, err error) {
	defer xdefer.Errorf(&err, "failed to open %s store", kind)

	switch kind {
	case "", StoreMemory:
		return NewMemoryStore(), nil
	case StoreLRU:
		s, err := NewLRUStore(size)
		if err != nil {
			return nil, err
		}
		return s, nil
	case StoreRedis:
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(opts)
		err = client.Ping(ctx).Err()
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return NewRedisStore(client, RedisPrefix(namespace)), nil
	default:
		return nil, fmt.Errorf("unknown store %q, expected one of %s, %s, %s", kind, StoreMemory, StoreLRU, StoreRedis)
	}
}

// MemoryStore grows without bound for the life of the process.
type MemoryStore struct {
	m syncmap.SyncMap[uint64, string]
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m: syncmap.New[uint64, string](),
	}
}

func (s *MemoryStore) Get(ctx context.Context, key uint64) (string, bool, error) {
	v, ok := s.m.Lookup(key)
	return v, ok, nil
}

func (s *MemoryStore) Set(ctx context.Context, key uint64, value string) error {
	s.m.Set(key, value)
	return nil
}

func (s *MemoryStore) Len() int {
	return s.m.Len()
}

// LRUStore keeps the most recently used entries up to a fixed count.
type LRUStore struct {
	cache *lru.Cache[uint64, string]
}

var _ Store = &LRUStore{}

func NewLRUStore(size int) (*LRUStore, error) {
	if size <= 0 {
		return nil, fmt.Errorf("lru store size must be positive, got %d", size)
	}
	cache, err := lru.New[uint64, string](size)
	if err != nil {
		return nil, err
	}
	return &LRUStore{cache: cache}, nil
}

func (s *LRUStore) Get(ctx context.Context, key uint64) (string, bool, error) {
	v, ok := s.cache.Get(key)
	return v, ok, nil
}

func (s *LRUStore) Set(ctx context.Context, key uint64, value string) error {
	s.cache.Add(key, value)
	return nil
}

func (s *LRUStore) Len() int {
	return s.cache.Len()
}

const DefaultRedisPrefix = "d2render:svg:"

func RedisPrefix(namespace string) string {
	if namespace == "" {
		return DefaultRedisPrefix
	}
	return DefaultRedisPrefix + namespace + ":"
}

// RedisStore shares entries between processes. Entries never expire.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ Store = &RedisStore{}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) key(key uint64) string {
	return s.prefix + strconv.FormatUint(key, 10)
}

func (s *RedisStore) Get(ctx context.Context, key uint64) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key uint64, value string) error {
	return s.client.Set(ctx, s.key(key), value, 0).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
