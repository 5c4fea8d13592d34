package query

import (
	"context"
	"net/http"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/cache"
)

// Mutator applies create/update/delete calls with an optimistic cache write
// first and a snapshot rollback if the call fails. On success it patches the
// cache from the response body and leaves reconciliation to the change-event
// path; it never forces a refetch.
type Mutator struct {
	client *Client
	cache  *cache.Store
	entity string
	idKey  string
}

func NewMutator(client *Client, store *cache.Store, entity, idKey string) *Mutator {
	return &Mutator{client: client, cache: store, entity: entity, idKey: idKey}
}

// Create posts body to path. The optimistic row (typically carrying a
// temporary id) is prepended immediately and swapped for the server row on
// success.
func (m *Mutator) Create(ctx context.Context, path string, body any, optimistic cache.Row) (cache.Row, error) {
	snap := m.cache.SnapshotKeys(m.cache.ListKeys(m.entity, "")...)
	tempID := ""
	if optimistic != nil {
		tempID = rowID(optimistic, m.idKey)
		m.cache.PrependIfAbsent(m.entity, optimistic)
	}

	var created cache.Row
	if err := m.client.Do(ctx, http.MethodPost, path, nil, body, &created); err != nil {
		m.cache.Restore(snap)
		return nil, err
	}
	if tempID != "" {
		m.cache.RemoveRow(m.entity, tempID)
	}
	if created != nil {
		m.cache.PrependIfAbsent(m.entity, created)
	}
	return created, nil
}

// Update patches the row at path/id, merging the optimistic patch into every
// cached occurrence before the call resolves.
func (m *Mutator) Update(ctx context.Context, path, id string, body any, optimistic cache.Row) (cache.Row, error) {
	snap := m.cache.SnapshotKeys(m.cache.ListKeys(m.entity, id)...)
	if optimistic != nil {
		m.cache.MergeRow(m.entity, id, optimistic)
	}

	var updated cache.Row
	if err := m.client.Do(ctx, http.MethodPatch, path+"/"+id, nil, body, &updated); err != nil {
		m.cache.Restore(snap)
		return nil, err
	}
	if updated != nil {
		m.cache.MergeRow(m.entity, id, updated)
	}
	return updated, nil
}

// Delete removes the row optimistically and restores it if the call fails.
func (m *Mutator) Delete(ctx context.Context, path, id string) error {
	snap := m.cache.SnapshotKeys(m.cache.ListKeys(m.entity, id)...)
	m.cache.RemoveRow(m.entity, id)

	if err := m.client.Do(ctx, http.MethodDelete, path+"/"+id, nil, nil, nil); err != nil {
		m.cache.Restore(snap)
		return err
	}
	return nil
}

func rowID(row cache.Row, idKey string) string {
	value, ok := row[idKey]
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}
