// Package cache holds query results for the dashboard client, keyed by the
// semantic identity of the query that produced them. All mutation goes through
// one mutex so writes from the realtime handlers and from local mutation
// callbacks are applied in a single serialized order.
package cache

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type Row map[string]any

type Key string

func ListKey(entity string, filters map[string]string) Key {
	if len(filters) == 0 {
		return Key("list:" + entity)
	}
	parts := make([]string, 0, len(filters))
	for k, v := range filters {
		if v == "" {
			continue
		}
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	if len(parts) == 0 {
		return Key("list:" + entity)
	}
	return Key("list:" + entity + "?" + strings.Join(parts, "&"))
}

func DetailKey(entity, id string) Key {
	return Key("detail:" + entity + ":" + id)
}

// IDFieldFunc reports the name of the identity field for an entity's rows.
type IDFieldFunc func(entity string) string

type Store struct {
	mu      sync.RWMutex
	lists   map[Key][]Row
	listIdx map[string]map[Key]struct{}
	details map[Key]Row
	stats   map[string]int
	idField IDFieldFunc
}

func New(idField IDFieldFunc) *Store {
	if idField == nil {
		idField = func(string) string { return "id" }
	}
	return &Store{
		lists:   make(map[Key][]Row),
		listIdx: make(map[string]map[Key]struct{}),
		details: make(map[Key]Row),
		stats:   make(map[string]int),
		idField: idField,
	}
}

func (s *Store) rowID(entity string, row Row) string {
	value, ok := row[s.idField(entity)]
	if !ok {
		return ""
	}
	return fmt.Sprint(value)
}

func (s *Store) SetList(entity string, filters map[string]string, rows []Row) {
	key := ListKey(entity, filters)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[key] = cloneRows(rows)
	idx, ok := s.listIdx[entity]
	if !ok {
		idx = make(map[Key]struct{})
		s.listIdx[entity] = idx
	}
	idx[key] = struct{}{}
}

func (s *Store) List(entity string, filters map[string]string) ([]Row, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, ok := s.lists[ListKey(entity, filters)]
	if !ok {
		return nil, false
	}
	return cloneRows(rows), true
}

func (s *Store) SetDetail(entity, id string, row Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.details[DetailKey(entity, id)] = cloneRow(row)
}

func (s *Store) Detail(entity, id string) (Row, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.details[DetailKey(entity, id)]
	if !ok {
		return nil, false
	}
	return cloneRow(row), true
}

func (s *Store) EvictDetail(entity, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.details, DetailKey(entity, id))
}

// PrependIfAbsent inserts the row at the front of every cached list for the
// entity. Lists that already contain the row id are left untouched, so replayed
// insert events are harmless. The return value reports whether this was the
// row's first appearance anywhere in the cache (no list and no detail entry
// held it before the call); callers gate one-shot side effects like counter
// bumps on it so a replayed event never applies them twice.
func (s *Store) PrependIfAbsent(entity string, row Row) bool {
	id := s.rowID(entity, row)
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := false
	for key := range s.listIdx[entity] {
		rows := s.lists[key]
		if indexOfRow(rows, s.idField(entity), id) >= 0 {
			seen = true
			continue
		}
		next := make([]Row, 0, len(rows)+1)
		next = append(next, cloneRow(row))
		next = append(next, rows...)
		s.lists[key] = next
	}
	if _, ok := s.details[DetailKey(entity, id)]; ok {
		seen = true
	}
	return !seen
}

// MergeRow folds the patch into every cached occurrence of the row, list
// entries and the detail entry alike. Fields the patch does not carry are
// preserved, which is what keeps denormalized display fields alive across
// update events.
func (s *Store) MergeRow(entity, id string, patch Row) {
	s.PatchRow(entity, id, func(row Row) {
		for k, v := range patch {
			row[k] = v
		}
	})
}

// PatchRow applies fn to every cached occurrence of the row inside one
// serialized pass, so cross-entity patches (aggregates and arrays) land
// together.
func (s *Store) PatchRow(entity, id string, fn func(Row)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	field := s.idField(entity)
	for key := range s.listIdx[entity] {
		rows := s.lists[key]
		if i := indexOfRow(rows, field, id); i >= 0 {
			fn(rows[i])
		}
	}
	detailKey := DetailKey(entity, id)
	if row, ok := s.details[detailKey]; ok {
		fn(row)
	}
}

// RemoveRow drops the row from every cached list and evicts its detail entry.
func (s *Store) RemoveRow(entity, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	field := s.idField(entity)
	for key := range s.listIdx[entity] {
		rows := s.lists[key]
		if i := indexOfRow(rows, field, id); i >= 0 {
			s.lists[key] = append(rows[:i:i], rows[i+1:]...)
		}
	}
	delete(s.details, DetailKey(entity, id))
}

// ListKeys reports every cached list key for an entity, plus the detail key
// for id when it is non-empty. Used to scope optimistic-mutation snapshots.
func (s *Store) ListKeys(entity, id string) []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]Key, 0, len(s.listIdx[entity])+1)
	for key := range s.listIdx[entity] {
		keys = append(keys, key)
	}
	if id != "" {
		if _, ok := s.details[DetailKey(entity, id)]; ok {
			keys = append(keys, DetailKey(entity, id))
		}
	}
	return keys
}

func (s *Store) SetStats(stats map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = make(map[string]int, len(stats))
	for k, v := range stats {
		s.stats[k] = v
	}
}

func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.stats))
	for k, v := range s.stats {
		out[k] = v
	}
	return out
}

// AdjustStat shifts a dashboard bucket by delta, clamped at zero.
func (s *Store) AdjustStat(bucket string, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjustStatLocked(bucket, delta)
}

// MoveStat transfers one count between buckets, leaving the grand total alone.
func (s *Store) MoveStat(from, to string) {
	if from == to {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjustStatLocked(from, -1)
	s.adjustStatLocked(to, 1)
}

func (s *Store) adjustStatLocked(bucket string, delta int) {
	next := s.stats[bucket] + delta
	if next < 0 {
		next = 0
	}
	s.stats[bucket] = next
}

type Snapshot struct {
	lists   map[Key][]Row
	details map[Key]Row
}

// SnapshotKeys captures the current value of the named keys so an optimistic
// mutation can roll back on failure. Stats are deliberately not captured:
// optimistic mutations never write them, and restoring the whole map would
// discard realtime adjustments that landed while the call was in flight.
func (s *Store) SnapshotKeys(keys ...Key) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		lists:   make(map[Key][]Row),
		details: make(map[Key]Row),
	}
	for _, key := range keys {
		if rows, ok := s.lists[key]; ok {
			snap.lists[key] = cloneRows(rows)
		}
		if row, ok := s.details[key]; ok {
			snap.details[key] = cloneRow(row)
		}
	}
	return snap
}

func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, rows := range snap.lists {
		s.lists[key] = cloneRows(rows)
	}
	for key, row := range snap.details {
		s.details[key] = cloneRow(row)
	}
}

func indexOfRow(rows []Row, field, id string) int {
	for i, row := range rows {
		if value, ok := row[field]; ok && fmt.Sprint(value) == id {
			return i
		}
	}
	return -1
}

func cloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, row := range rows {
		out[i] = cloneRow(row)
	}
	return out
}

func cloneRow(row Row) Row {
	out := make(Row, len(row))
	for k, v := range row {
		switch value := v.(type) {
		case []any:
			items := make([]any, len(value))
			for i, item := range value {
				if m, ok := item.(map[string]any); ok {
					items[i] = map[string]any(cloneRow(m))
					continue
				}
				items[i] = item
			}
			out[k] = items
		case map[string]any:
			out[k] = map[string]any(cloneRow(value))
		default:
			out[k] = v
		}
	}
	return out
}
