package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gokaycavdar/go-nightguard/pkg/models"
	"github.com/gokaycavdar/go-nightguard/pkg/window"
)

type storedEvent struct {
	at time.Time
	ev models.ConnectionEvent
}

// MemoryStore, bağlantı olaylarını bellekte (RAM) tutan thread-safe bir yapıdır.
// Test, geliştirme ve tek süreçli HTTP sunucusu içindir.
type MemoryStore struct {
	keys   map[models.EventKey]struct{} // Key: (timestamp, mac, type)
	events []storedEvent
	mu     sync.RWMutex // Eşzamanlı erişim (concurrency) için kilit
}

// NewMemoryStore yeni bir bellek deposu oluşturur.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys:   make(map[models.EventKey]struct{}),
		events: make([]storedEvent, 0),
	}
}

// Save, yeni olayları belleğe yazar. Aynı anahtara sahip olaylar tekrar
// yazılmaz.
func (m *MemoryStore) Save(ctx context.Context, events []models.ConnectionEvent) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	batch := make([]storedEvent, 0, len(events))
	for _, ev := range events {
		at, err := window.ParseTimestamp(ev.Timestamp)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidEvent, ev.Timestamp)
		}
		batch = append(batch, storedEvent{at: at, ev: ev})
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	added := 0
	for _, se := range batch {
		key := se.ev.Key()
		if _, exists := m.keys[key]; exists {
			continue
		}
		m.keys[key] = struct{}{}
		m.events = append(m.events, se)
		added++
	}
	return added, nil
}

// Range, [start, end) aralığındaki olayları zamana göre sıralı döner.
func (m *MemoryStore) Range(ctx context.Context, start, end time.Time) ([]models.ConnectionEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	matched := make([]storedEvent, 0)
	for _, se := range m.events {
		if !se.at.Before(start) && se.at.Before(end) {
			matched = append(matched, se)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].at.Before(matched[j].at) })

	out := make([]models.ConnectionEvent, len(matched))
	for i, se := range matched {
		out[i] = se.ev
	}
	return out, nil
}

// Len returns the number of archived events.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

var _ ConnectionStore = (*MemoryStore)(nil)
