package memory

import (
	"context"
	"sync"
	"time"
)

type localEntry struct {
	value     string
	expiresAt time.Time
}

// LocalEphemeral is an in-process Ephemeral implementation for local/dev runs without
// Redis: a mutex-protected map with lazy TTL expiry and an in-memory fan-out for
// publish/subscribe, grounded on the teacher's in-memory store shape (core InMemoryStore
// / the deleted memory_store.go).
type LocalEphemeral struct {
	mu      sync.Mutex
	data    map[string]localEntry
	recent  map[string][]string
	subs    map[string][]chan map[string]any
}

// NewLocalEphemeral creates an empty in-process store.
func NewLocalEphemeral() *LocalEphemeral {
	return &LocalEphemeral{
		data:   make(map[string]localEntry),
		recent: make(map[string][]string),
		subs:   make(map[string][]chan map[string]any),
	}
}

func (l *LocalEphemeral) Set(ctx context.Context, key, value string, ttlSeconds int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := localEntry{value: value}
	if ttlSeconds > 0 {
		entry.expiresAt = time.Now().Add(time.Duration(ttlSeconds) * time.Second)
	}
	l.data[key] = entry
	return nil
}

func (l *LocalEphemeral) Get(ctx context.Context, key string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.data[key]
	if !ok {
		return "", false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(l.data, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (l *LocalEphemeral) Recent(ctx context.Context, namespace string, n int) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	vals := l.recent[namespace]
	if n >= 0 && n < len(vals) {
		vals = vals[:n]
	}
	out := make([]string, len(vals))
	copy(out, vals)
	return out, nil
}

// PushRecent records value at the head of namespace's recent-entries list, trimmed to
// recentListCap, mirroring RedisEphemeral.PushRecent.
func (l *LocalEphemeral) PushRecent(ctx context.Context, namespace, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	list := append([]string{value}, l.recent[namespace]...)
	if len(list) > recentListCap {
		list = list[:recentListCap]
	}
	l.recent[namespace] = list
	return nil
}

func (l *LocalEphemeral) Publish(ctx context.Context, stream string, event map[string]any) error {
	l.mu.Lock()
	subs := append([]chan map[string]any{}, l.subs[stream]...)
	l.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (l *LocalEphemeral) Subscribe(ctx context.Context, stream string) (<-chan map[string]any, error) {
	ch := make(chan map[string]any, 32)

	l.mu.Lock()
	l.subs[stream] = append(l.subs[stream], ch)
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		defer l.mu.Unlock()
		subs := l.subs[stream]
		for i, c := range subs {
			if c == ch {
				l.subs[stream] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

var _ Ephemeral = (*LocalEphemeral)(nil)
