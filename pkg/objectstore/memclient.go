package objectstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemClient is an in-memory Client used by translator and session tests to
// avoid standing up a real backend. State is held in a plain map guarded by
// a mutex; access outside of a test should only happen via the Client
// methods.
type MemClient struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ Client = (*MemClient)(nil)

// NewMemClient returns an empty in-memory client.
func NewMemClient() *MemClient {
	return &MemClient{objects: make(map[string][]byte)}
}

func (c *MemClient) Get(_ context.Context, key string, rng *Range) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	body, ok := c.objects[key]
	if !ok {
		return nil, ErrNoSuchKey
	}
	if rng == nil {
		out := make([]byte, len(body))
		copy(out, body)
		return out, nil
	}
	if rng.Start < 0 || rng.End >= int64(len(body)) || rng.Start > rng.End {
		return nil, fmt.Errorf("objectstore: range %v out of bounds for %d-byte object %q", *rng, len(body), key)
	}
	out := make([]byte, rng.Len())
	copy(out, body[rng.Start:rng.End+1])
	return out, nil
}

func (c *MemClient) Put(_ context.Context, key string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := make([]byte, len(body))
	copy(stored, body)
	c.objects[key] = stored
	return nil
}

func (c *MemClient) DeleteMany(_ context.Context, keys []string) ([]DeleteResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	results := make([]DeleteResult, 0, len(keys))
	for _, key := range keys {
		delete(c.objects, key)
		results = append(results, DeleteResult{Key: key})
	}
	return results, nil
}

func (c *MemClient) List(_ context.Context, prefix, startAfter string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var matched []string
	for key := range c.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if startAfter != "" && key <= startAfter {
			continue
		}
		matched = append(matched, key)
	}
	sort.Strings(matched)
	return matched, nil
}

func (c *MemClient) Head(_ context.Context, key string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	body, ok := c.objects[key]
	if !ok {
		return 0, ErrNoSuchKey
	}
	return int64(len(body)), nil
}

// Objects returns a snapshot of stored keys, for use in test assertions
// only.
func (c *MemClient) Objects() map[string][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]byte, len(c.objects))
	for k, v := range c.objects {
		out[k] = v
	}
	return out
}
