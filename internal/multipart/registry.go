// Package multipart holds in-flight multipart uploads in memory.
//
// State is process-local and lost on restart; a load balancer must route
// all parts of one upload to the same instance.
package multipart

import (
	"errors"
	"sort"
	"sync"
)

// ErrCapacity is returned when creating an upload would exceed the
// registry's configured capacity. Handlers map it to 503 so clients can
// back off and retry.
var ErrCapacity = errors.New("multipart registry at capacity")

// Upload accumulates the parts of one multipart upload. Parts may arrive
// concurrently and in any order; retrieval sorts by part number.
type Upload struct {
	mu    sync.Mutex
	parts map[int8][]byte
}

// PutPart records the bytes for a part number, replacing any previous
// bytes for that number.
func (u *Upload) PutPart(number int8, data []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.parts[number] = data
}

// Assemble concatenates all parts in ascending part-number order.
func (u *Upload) Assemble() []byte {
	u.mu.Lock()
	defer u.mu.Unlock()

	numbers := make([]int, 0, len(u.parts))
	for n := range u.parts {
		numbers = append(numbers, int(n))
	}
	sort.Ints(numbers)

	var total int
	for _, n := range numbers {
		total += len(u.parts[int8(n)])
	}
	out := make([]byte, 0, total)
	for _, n := range numbers {
		out = append(out, u.parts[int8(n)]...)
	}
	return out
}

// Registry is a bounded map of upload ID to Upload. The capacity check is
// the safety property: at capacity, Create refuses rather than grow.
type Registry struct {
	mu       sync.Mutex
	capacity int
	uploads  map[string]*Upload
}

// NewRegistry creates a registry bounded to the given capacity.
func NewRegistry(capacity int) *Registry {
	return &Registry{
		capacity: capacity,
		uploads:  make(map[string]*Upload, capacity),
	}
}

// Create registers a new empty upload under id. Returns ErrCapacity when
// the registry is full.
func (r *Registry) Create(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.uploads) >= r.capacity {
		return ErrCapacity
	}
	r.uploads[id] = &Upload{parts: make(map[int8][]byte)}
	return nil
}

// Get returns the upload for id, or nil when absent.
func (r *Registry) Get(id string) *Upload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.uploads[id]
}

// Remove takes the upload for id out of the registry, reporting whether
// it was present.
func (r *Registry) Remove(id string) (*Upload, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.uploads[id]
	if ok {
		delete(r.uploads, id)
	}
	return u, ok
}

// Len reports the number of in-flight uploads.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.uploads)
}
