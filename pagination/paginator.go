// Package pagination iterates a cursor-paginated API endpoint, exposing
// both a blocking iterator and async bulk-take helpers, with an optional
// append-only local cache of every entity seen so far.
package pagination

import (
	"context"
	"sync"

	rawferrors "github.com/V-Play-Games/RAWF/errors"
	"github.com/V-Play-Games/RAWF/restaction"
)

// KeyFunc extracts the cursor key from an entity.
type KeyFunc[T any] func(T) uint64

// RouteFinalizer builds the RestAction for the next page given the current
// cursor (iteratorIndex) and page size (limit).
type RouteFinalizer[T any] func(ctx context.Context, afterKey uint64, limit int) *restaction.RestAction[[]T]

const (
	defaultLimit = 100
	minLimit     = 1
	maxLimit     = 1000
)

// Paginator walks pages of T, tracking a cursor and, optionally, every
// entity returned so far.
type Paginator[T any] struct {
	mu sync.Mutex

	finalize RouteFinalizer[T]
	key      KeyFunc[T]

	limit    int
	useCache bool
	cached   []T

	iteratorIndex uint64
	lastKey       uint64
	hasLast       bool
	last          T
}

// New builds a Paginator starting from the beginning of the collection.
func New[T any](finalize RouteFinalizer[T], key KeyFunc[T]) *Paginator[T] {
	return &Paginator[T]{finalize: finalize, key: key, limit: defaultLimit}
}

// Limit sets the page size, clamped to [1, 1000].
func (p *Paginator[T]) Limit(n int) *Paginator[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < minLimit {
		n = minLimit
	}
	if n > maxLimit {
		n = maxLimit
	}
	p.limit = n
	return p
}

// Cache toggles whether every fetched entity is retained in an append-only
// local cache for GetCached/SkipTo validation.
func (p *Paginator[T]) Cache(enabled bool) *Paginator[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.useCache = enabled
	return p
}

// GetCached returns a snapshot of every entity fetched so far. Empty unless
// Cache(true) was set before fetching began.
func (p *Paginator[T]) GetCached() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]T, len(p.cached))
	copy(out, p.cached)
	return out
}

// GetLast returns the most recently fetched entity and whether one exists.
func (p *Paginator[T]) GetLast() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.hasLast
}

// GetFirst fetches (or returns the cached) first page and returns its first
// entity.
func (p *Paginator[T]) GetFirst(ctx context.Context) (T, error) {
	p.mu.Lock()
	cachedLen := len(p.cached)
	p.mu.Unlock()
	if cachedLen > 0 {
		p.mu.Lock()
		first := p.cached[0]
		p.mu.Unlock()
		return first, nil
	}
	page, err := p.fetchPage(ctx)
	var zero T
	if err != nil {
		return zero, err
	}
	if len(page) == 0 {
		return zero, rawferrors.New(rawferrors.InvalidState, "no entities available")
	}
	return page[0], nil
}

// SkipTo repositions the cursor to id. It rejects the move with
// InvalidArgument if cached entries exist and id is newer (under unsigned
// comparison) than the oldest cached key, since that would silently skip
// entities this paginator has already promised not to lose track of.
func (p *Paginator[T]) SkipTo(id uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.cached) > 0 {
		oldest := p.key(p.cached[0])
		if id > oldest {
			return rawferrors.New(rawferrors.InvalidArgument,
				"cannot skip to %d: cached entries already extend back to %d", id, oldest)
		}
	}

	if id != p.lastKey {
		p.hasLast = false
	}
	p.iteratorIndex = id
	p.lastKey = id
	return nil
}

// fetchPage retrieves the next page, advances the cursor, and, if caching
// is enabled, appends every entity to the cache.
func (p *Paginator[T]) fetchPage(ctx context.Context) ([]T, error) {
	p.mu.Lock()
	after := p.iteratorIndex
	limit := p.limit
	p.mu.Unlock()

	page, err := p.finalize(ctx, after, limit).Submit().Await()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if len(page) > 0 {
		last := page[len(page)-1]
		p.lastKey = p.key(last)
		p.last = last
		p.hasLast = true
		p.iteratorIndex = p.lastKey
		if p.useCache {
			p.cached = append(p.cached, page...)
		}
	}
	p.mu.Unlock()

	return page, nil
}

// Iterator returns a blocking channel-based iterator over every remaining
// entity; the channel closes when the collection is exhausted or ctx is
// cancelled.
func (p *Paginator[T]) Iterator(ctx context.Context) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		p.forEachRemaining(ctx, func(v T) bool {
			select {
			case out <- v:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return out
}

// ForEachRemaining synchronously feeds every remaining entity to action
// until it returns false or the collection is exhausted.
func (p *Paginator[T]) ForEachRemaining(ctx context.Context, action func(T) bool) error {
	return p.forEachRemaining(ctx, action)
}

func (p *Paginator[T]) forEachRemaining(ctx context.Context, action func(T) bool) error {
	for {
		page, err := p.fetchPage(ctx)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		for _, v := range page {
			if !action(v) {
				return nil
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// ForEachRemainingAsync runs ForEachRemaining on its own goroutine, routing
// a terminal error to onFailure.
func (p *Paginator[T]) ForEachRemainingAsync(ctx context.Context, action func(T) bool, onFailure func(error)) {
	go func() {
		if err := p.forEachRemaining(ctx, action); err != nil && onFailure != nil {
			onFailure(err)
		}
	}()
}

// TakeAsync completes with up to n entities starting from the current
// cursor position, as a RestAction.
func (p *Paginator[T]) TakeAsync(n int) *restaction.RestAction[[]T] {
	return restaction.New(context.Background(), func(ctx context.Context) ([]T, error) {
		var out []T
		err := p.forEachRemaining(ctx, func(v T) bool {
			out = append(out, v)
			return len(out) < n
		})
		return out, err
	})
}

// TakeRemainingAsync completes with up to n remaining entities starting
// from the current cursor position, as a RestAction.
func (p *Paginator[T]) TakeRemainingAsync(n int) *restaction.RestAction[[]T] {
	return restaction.New(context.Background(), func(ctx context.Context) ([]T, error) {
		var out []T
		err := p.forEachRemaining(ctx, func(v T) bool {
			out = append(out, v)
			return len(out) < n
		})
		return out, err
	})
}
