package manager

import (
	"sync"
	"time"

	"github.com/cuemby/herald/pkg/types"
	"github.com/cuemby/herald/pkg/wire"
)

// PendingRequest is a lifecycle request waiting for its reply
type PendingRequest struct {
	ID        uint8
	Code      wire.Code
	Provider  types.Address
	CreatedAt time.Time
	ExpiresAt time.Time
}

// RequestIDs hands out 8-bit request ids that are unique among the requests
// still in flight. Ids come from a wrapping counter; ids still held and
// wire.TeardownRequestID are skipped.
type RequestIDs struct {
	pending map[uint8]*PendingRequest
	next    uint8
	mu      sync.Mutex
}

// NewRequestIDs creates an empty request id generator
func NewRequestIDs() *RequestIDs {
	return &RequestIDs{
		pending: make(map[uint8]*PendingRequest),
	}
}

// Acquire reserves an id for a request to provider that expires after ttl
func (r *RequestIDs) Acquire(code wire.Code, provider types.Address, ttl time.Duration) (*PendingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < 256; i++ {
		id := r.next
		r.next++
		if id == wire.TeardownRequestID {
			continue
		}
		if _, busy := r.pending[id]; busy {
			continue
		}

		now := time.Now()
		pr := &PendingRequest{
			ID:        id,
			Code:      code,
			Provider:  provider,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		}
		r.pending[id] = pr
		return pr, nil
	}
	return nil, ErrNoRequestIDs
}

// Release frees the id of pr for reuse. It is a no-op when the id already
// expired and was handed to another request.
func (r *RequestIDs) Release(pr *PendingRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending[pr.ID] == pr {
		delete(r.pending, pr.ID)
	}
}

// InFlight reports whether id is currently held
func (r *RequestIDs) InFlight(id uint8) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[id]
	return ok
}

// CleanupExpired releases ids whose request outlived its deadline
func (r *RequestIDs) CleanupExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, pr := range r.pending {
		if now.After(pr.ExpiresAt) {
			delete(r.pending, id)
			removed++
		}
	}
	return removed
}

// List returns the requests currently in flight
func (r *RequestIDs) List() []*PendingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*PendingRequest, 0, len(r.pending))
	for _, pr := range r.pending {
		out = append(out, pr)
	}
	return out
}
