// Package query gives dashboard consumers cache-backed query handles and
// optimistic mutators over the CRM API. The handles' own fetches stay the
// correctness path; the realtime layer only accelerates convergence.
package query

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/cache"
	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/realtime"
)

// Query declares one list query identity (entity + filters), binds it to the
// cache, and registers topic interest with the subscription manager.
type Query struct {
	client  *Client
	cache   *cache.Store
	manager *realtime.Manager
	topic   realtime.Topic
	entity  string
	path    string
	filters map[string]string

	mu         sync.Mutex
	loadedOnce bool
	fetching   bool
	bound      bool
}

type Result struct {
	Data       []cache.Row
	IsLoading  bool
	IsFetching bool
	// ShowSkeleton stays true until this handle has observed one successful
	// fetch, so cache-hit re-reads never flash a placeholder.
	ShowSkeleton bool
}

func New(client *Client, store *cache.Store, manager *realtime.Manager, topic realtime.Topic, entity, path string, filters map[string]string) *Query {
	return &Query{
		client:  client,
		cache:   store,
		manager: manager,
		topic:   topic,
		entity:  entity,
		path:    path,
		filters: filters,
	}
}

// Bind registers interest in the query's topic. Refcounting in the manager
// keeps the feed open for other handles when this one closes.
func (q *Query) Bind() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.bound || q.manager == nil {
		return
	}
	q.bound = true
	if err := q.manager.Subscribe(q.topic); err != nil {
		// Stale-cache risk only; Refresh remains the correctness path.
		return
	}
}

func (q *Query) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.bound || q.manager == nil {
		return
	}
	q.bound = false
	q.manager.Unsubscribe(q.topic)
}

// Refresh fetches the list from the API and replaces the cached value.
func (q *Query) Refresh(ctx context.Context) error {
	q.mu.Lock()
	q.fetching = true
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.fetching = false
		q.mu.Unlock()
	}()

	params := url.Values{}
	for k, v := range q.filters {
		if v != "" {
			params.Set(k, v)
		}
	}
	var rows []cache.Row
	if err := q.client.Do(ctx, http.MethodGet, q.path, params, nil, &rows); err != nil {
		return err
	}
	q.cache.SetList(q.entity, q.filters, rows)
	q.mu.Lock()
	q.loadedOnce = true
	q.mu.Unlock()
	return nil
}

func (q *Query) Result() Result {
	q.mu.Lock()
	loaded := q.loadedOnce
	fetching := q.fetching
	q.mu.Unlock()
	rows, _ := q.cache.List(q.entity, q.filters)
	return Result{
		Data:         rows,
		IsLoading:    fetching && !loaded,
		IsFetching:   fetching,
		ShowSkeleton: !loaded,
	}
}

// DetailQuery is the single-row counterpart.
type DetailQuery struct {
	client  *Client
	cache   *cache.Store
	manager *realtime.Manager
	topic   realtime.Topic
	entity  string
	path    string
	id      string

	mu         sync.Mutex
	loadedOnce bool
	fetching   bool
	bound      bool
}

func NewDetail(client *Client, store *cache.Store, manager *realtime.Manager, topic realtime.Topic, entity, path, id string) *DetailQuery {
	return &DetailQuery{
		client:  client,
		cache:   store,
		manager: manager,
		topic:   topic,
		entity:  entity,
		path:    path,
		id:      id,
	}
}

func (q *DetailQuery) Bind() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.bound || q.manager == nil {
		return
	}
	q.bound = true
	_ = q.manager.Subscribe(q.topic)
}

func (q *DetailQuery) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.bound || q.manager == nil {
		return
	}
	q.bound = false
	q.manager.Unsubscribe(q.topic)
}

func (q *DetailQuery) Refresh(ctx context.Context) error {
	q.mu.Lock()
	q.fetching = true
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.fetching = false
		q.mu.Unlock()
	}()

	var row cache.Row
	if err := q.client.Do(ctx, http.MethodGet, q.path+"/"+q.id, nil, nil, &row); err != nil {
		return err
	}
	q.cache.SetDetail(q.entity, q.id, row)
	q.mu.Lock()
	q.loadedOnce = true
	q.mu.Unlock()
	return nil
}

type DetailResult struct {
	Data         cache.Row
	Found        bool
	IsLoading    bool
	IsFetching   bool
	ShowSkeleton bool
}

func (q *DetailQuery) Result() DetailResult {
	q.mu.Lock()
	loaded := q.loadedOnce
	fetching := q.fetching
	q.mu.Unlock()
	row, ok := q.cache.Detail(q.entity, q.id)
	return DetailResult{
		Data:         row,
		Found:        ok,
		IsLoading:    fetching && !loaded,
		IsFetching:   fetching,
		ShowSkeleton: !loaded,
	}
}
