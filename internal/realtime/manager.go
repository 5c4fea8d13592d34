// Package realtime keeps a client-side query cache converged with the
// server's change feed. It is best-effort acceleration: any failure here
// degrades to a stale cache that the owning query's next fetch corrects, never
// to a user-visible error.
package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/cache"
)

type Config struct {
	// DebounceWindow coalesces update events per row; DedupTTL bounds how long
	// an in-flight projection fetch is shared. Both are tunables, not fixed
	// constants.
	DebounceWindow time.Duration
	DedupTTL       time.Duration
}

// Manager owns one feed connection per subscribed topic and applies incoming
// change events to the cache through the per-table handler table. It is
// constructed explicitly and passed to whoever needs it; subscriptions are
// reference-counted so independent consumers can share a topic.
type Manager struct {
	feed     Feed
	cache    *cache.Store
	backfill Backfiller
	debounce *Debouncer
	fetches  *fetchGroup

	mu        sync.Mutex
	topics    map[Topic]*topicState
	connected bool

	handlers map[string]func(ChangeEvent)
}

type topicState struct {
	refs int
	conn FeedConn
}

func NewManager(feed Feed, store *cache.Store, backfill Backfiller, cfg Config) *Manager {
	window := cfg.DebounceWindow
	if window < 0 {
		window = 0
	}
	m := &Manager{
		feed:     feed,
		cache:    store,
		backfill: backfill,
		debounce: NewDebouncer(window),
		fetches:  newFetchGroup(cfg.DedupTTL),
		topics:   make(map[Topic]*topicState),
	}
	m.handlers = map[string]func(ChangeEvent){
		"repair_tickets":   m.handleTicket,
		"time_entries":     m.handleTimeEntry,
		"customers":        m.handleCustomer,
		"customer_devices": m.handleCustomerDevice,
		"appointments":     m.handleAppointment,
		"users":            m.handleCatalog,
		"devices":          m.handleCatalogDevice,
		"services":         m.handleCatalog,
		"media_library":    m.handleCatalog,
	}
	return m
}

// Subscribe registers interest in a topic. The first subscriber opens the feed
// connection; later calls only bump the reference count, so overlapping
// interest from several consumers never opens a duplicate connection.
func (m *Manager) Subscribe(topic Topic) error {
	m.mu.Lock()
	if st, ok := m.topics[topic]; ok {
		st.refs++
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	conn, err := m.feed.Subscribe(context.Background(), topic)
	if err != nil {
		log.Printf("realtime: subscribe %s failed: %v", topic, err)
		m.mu.Lock()
		m.connected = len(m.topics) > 0
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	if st, ok := m.topics[topic]; ok {
		// Lost the race with a concurrent subscriber; keep theirs.
		st.refs++
		m.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	m.topics[topic] = &topicState{refs: 1, conn: conn}
	m.connected = true
	m.mu.Unlock()

	go m.dispatchLoop(topic, conn)
	return nil
}

// Unsubscribe drops one reference; the connection closes when the last
// interested consumer is gone.
func (m *Manager) Unsubscribe(topic Topic) {
	m.mu.Lock()
	st, ok := m.topics[topic]
	if !ok {
		m.mu.Unlock()
		return
	}
	st.refs--
	if st.refs > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.topics, topic)
	m.connected = len(m.topics) > 0
	m.mu.Unlock()
	_ = st.conn.Close()
}

// UnsubscribeAll tears down every connection and clears pending debounce
// timers and in-flight fetch entries, so nothing leaks across a reconnect.
func (m *Manager) UnsubscribeAll() {
	m.mu.Lock()
	states := make([]*topicState, 0, len(m.topics))
	for topic, st := range m.topics {
		states = append(states, st)
		delete(m.topics, topic)
	}
	m.connected = false
	m.mu.Unlock()

	for _, st := range states {
		_ = st.conn.Close()
	}
	m.debounce.CancelAll()
	m.fetches.Flush()
}

func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Manager) dispatchLoop(topic Topic, conn FeedConn) {
	for ev := range conn.Events() {
		m.Handle(ev)
	}
	m.mu.Lock()
	if st, ok := m.topics[topic]; ok && st.conn == conn {
		delete(m.topics, topic)
		m.connected = len(m.topics) > 0
		log.Printf("realtime: feed for %s closed", topic)
	}
	m.mu.Unlock()
}

// Handle routes one change event through the dispatch table. Exported so the
// hosting process can replay events it obtained out of band.
func (m *Manager) Handle(ev ChangeEvent) {
	handler, ok := m.handlers[ev.Table]
	if !ok {
		return
	}
	handler(ev)
}

// projection resolves the row to insert: the joined projection when the table
// has one, deduplicated per row id, falling back to the raw payload when the
// fetch fails. The fetch is awaited so the cache write always happens after it
// settles.
func (m *Manager) projection(ev ChangeEvent) cache.Row {
	if m.backfill == nil || !needsBackfill(ev.Table) {
		return ev.New
	}
	id := ev.RowID()
	row, err := m.fetches.Do(ev.Type+"-"+id, func() (cache.Row, error) {
		return m.backfill.Fetch(ev.Table, id)
	})
	if err != nil {
		log.Printf("realtime: backfill %s/%s failed, inserting raw payload: %v", ev.Table, id, err)
		return ev.New
	}
	return row
}
