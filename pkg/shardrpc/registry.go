package shardrpc

import (
	"context"
	"errors"
	"sync"
)

// ErrDuplicateHandler is returned when a handler name is bound twice.
// Handler names embed the collection name so this signals a collection name
// collision, which is a fatal configuration error.
var ErrDuplicateHandler = errors.New("shardrpc: handler name already bound")

// ErrNotBound is the dispatch failure for a name with no bound handler.
// Remote callers see it inside a NotFound call failure, distinct from an
// application-level miss which travels in the result tuple.
var ErrNotBound = errors.New("shardrpc: no handler bound for name")

// Handler executes one named operation against the local shard. The body is
// the encoded argument tuple; the returned bytes are the encoded result.
// Handlers must not issue further fabric calls. The fabric itself holds no
// lock while a handler runs; the shard mutex lives in the local store and is
// held for the whole body of each store operation the handler performs.
type Handler func(ctx context.Context, body []byte) ([]byte, error)

// registry maps handler names to handlers. Bindings happen during collection
// construction, before the post-construct barrier; lookups happen on every
// dispatched call.
type registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string]Handler)}
}

func (r *registry) bind(name string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[name]; ok {
		return ErrDuplicateHandler
	}
	r.handlers[name] = h
	return nil
}

func (r *registry) unbind(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, name)
}

func (r *registry) lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}
