package scheduler

import (
	"context"
	"sync"

	"github.com/cuemby/herald/pkg/event"
	"github.com/cuemby/herald/pkg/wire"
)

// SourceFunc produces the payload of one firing of e. It runs while the
// repository lock is held and must not call back into the manager.
type SourceFunc func(ctx context.Context, e *event.Event) (wire.Message, error)

// Catalog maps payload query codes to the sources that answer them
type Catalog struct {
	mu      sync.RWMutex
	sources map[wire.Code]SourceFunc
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{sources: make(map[wire.Code]SourceFunc)}
}

// Register sets the source for query code
func (c *Catalog) Register(code wire.Code, fn SourceFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[code] = fn
}

// Lookup returns the source for query code
func (c *Catalog) Lookup(code wire.Code) (SourceFunc, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.sources[code]
	return fn, ok
}

// Codes returns the registered query codes
func (c *Catalog) Codes() []wire.Code {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]wire.Code, 0, len(c.sources))
	for code := range c.sources {
		out = append(out, code)
	}
	return out
}
