// Package idempotency replays the stored response of a request that repeats an Idempotency-Key.
package idempotency

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrInFlight is returned by Begin while another request with the same key is being served.
var ErrInFlight = errors.New("request with this idempotency key is in progress")

// Backend stores raw responses and in-flight locks. The Redis adapter implements it.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Idempotency struct {
	backend Backend
	ttl     time.Duration
	lockTTL time.Duration
}

func NewIdempotency(backend Backend, ttl time.Duration) *Idempotency {
	return &Idempotency{backend: backend, ttl: ttl, lockTTL: 30 * time.Second}
}

type Response struct {
	Status int    `json:"status"`
	Result []byte `json:"result"`
}

func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	data, err := i.backend.Get(ctx, key)
	if err != nil || data == nil {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, errors.Wrapf(err, "decode idempotent response %s", key)
	}
	return &resp, nil
}

// Begin claims key for the current request. It returns the stored response when the key was
// already completed and ErrInFlight when another request still holds it.
func (i *Idempotency) Begin(ctx context.Context, key string) (*Response, error) {
	if resp, err := i.Get(ctx, key); err != nil || resp != nil {
		return resp, err
	}
	ok, err := i.backend.Lock(ctx, key, i.lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInFlight
	}
	return nil, nil
}

// Set stores the response and releases the claim.
func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return i.backend.Set(ctx, key, data, i.ttl)
}

// Abort releases the claim without storing anything, so the request may be retried.
func (i *Idempotency) Abort(ctx context.Context, key string) error {
	return i.backend.Unlock(ctx, key)
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryBackend keeps responses in process. Used when no Redis is configured.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	locks   map[string]time.Time
	now     func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: map[string]memoryEntry{}, locks: map[string]time.Time{}, now: time.Now}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, nil
	}
	return e.data, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{data: append([]byte(nil), data...), expires: m.now().Add(ttl)}
	delete(m.locks, key)
	return nil
}

func (m *MemoryBackend) Lock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if until, held := m.locks[key]; held && m.now().Before(until) {
		return false, nil
	}
	m.locks[key] = m.now().Add(ttl)
	return true, nil
}

func (m *MemoryBackend) Unlock(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}
