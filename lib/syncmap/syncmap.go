package syncmap

import (
	"sync"
	"sync/atomic"
)

// SyncMap is a typed sync.Map that also tracks its size.
type SyncMap[K comparable, V any] struct {
	_map *sync.Map
	size *atomic.Int64
}

func New[K comparable, V any]() SyncMap[K, V] {
	return SyncMap[K, V]{
		_map: &sync.Map{},
		size: &atomic.Int64{},
	}
}

func (sm SyncMap[K, V]) Set(key K, value V) {
	if _, loaded := sm._map.Swap(key, value); !loaded {
		sm.size.Add(1)
	}
}

// SetIfAbsent stores value unless key is present and reports whether it stored.
func (sm SyncMap[K, V]) SetIfAbsent(key K, value V) bool {
	_, loaded := sm._map.LoadOrStore(key, value)
	if !loaded {
		sm.size.Add(1)
	}
	return !loaded
}

func (sm SyncMap[K, V]) Lookup(key K) (value V, ok bool) {
	v, has := sm._map.Load(key)
	if !has {
		return value, false
	}
	return v.(V), true
}

func (sm SyncMap[K, V]) Get(key K) (value V) {
	v, _ := sm.Lookup(key)
	return v
}

func (sm SyncMap[K, V]) Delete(key K) {
	if _, loaded := sm._map.LoadAndDelete(key); loaded {
		sm.size.Add(-1)
	}
}

func (sm SyncMap[K, V]) Len() int {
	return int(sm.size.Load())
}

func (sm SyncMap[K, V]) Range(f func(key K, value V) bool) {
	sm._map.Range(func(k, v any) bool {
		return f(k.(K), v.(V))
	})
}
