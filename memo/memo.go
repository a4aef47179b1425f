// Package memo caches rendered output by a fingerprint of the request.
//
// Entries are never invalidated. Only successful results are stored, so a failing
// request is attempted again on its next call. Concurrent misses for one fingerprint
// share a single call of the render function.
package memo

import (
	"context"
	"strconv"
	"sync/atomic"

	"cdr.dev/slog"
	"golang.org/x/sync/singleflight"
	"oss.terrastruct.com/xcontext"

	"oss.terrastruct.com/d2render/lib/log"
)

type Memo struct {
	store Store
	group singleflight.Group

	hits    atomic.Int64
	misses  atomic.Int64
	renders atomic.Int64
	shared  atomic.Int64
	errors  atomic.Int64
}

type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Renders int64 `json:"renders"`
	// Shared counts callers whose render was shared with other concurrent callers.
	Shared int64 `json:"shared"`
	Errors int64 `json:"errors"`
}

// New returns a Memo over store. A nil store means an unbounded MemoryStore.
func New(store Store) *Memo {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Memo{store: store}
}

func (m *Memo) Store() Store {
	return m.store
}

func (m *Memo) Stats() Stats {
	return Stats{
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
		Renders: m.renders.Load(),
		Shared:  m.shared.Load(),
		Errors:  m.errors.Load(),
	}
}

// Do returns the stored value for key or calls render and stores its result.
//
// render runs on a context that keeps the values of ctx but not its cancellation, so
// one caller going away does not fail the others waiting on the same key. render is
// responsible for bounding its own duration.
func (m *Memo) Do(ctx context.Context, key uint64, render func(context.Context) (string, error)) (string, error) {
	if v, ok := m.lookup(ctx, key); ok {
		m.hits.Add(1)
		return v, nil
	}
	m.misses.Add(1)

	ch := m.group.DoChan(strconv.FormatUint(key, 10), func() (interface{}, error) {
		rctx := xcontext.WithoutCancel(ctx)
		// A render for key may have finished between the lookup above and joining the group.
		if v, ok := m.lookup(rctx, key); ok {
			return v, nil
		}

		m.renders.Add(1)
		v, err := render(rctx)
		if err != nil {
			m.errors.Add(1)
			return "", err
		}
		err = m.store.Set(rctx, key, v)
		if err != nil {
			log.Warn(rctx, "failed to store render", slog.F("key", key), slog.Error(err))
		}
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			m.shared.Add(1)
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// lookup treats store failures as misses so a broken shared store degrades to rendering.
func (m *Memo) lookup(ctx context.Context, key uint64) (string, bool) {
	v, ok, err := m.store.Get(ctx, key)
	if err != nil {
		log.Warn(ctx, "failed to read render store", slog.F("key", key), slog.Error(err))
		return "", false
	}
	return v, ok
}
