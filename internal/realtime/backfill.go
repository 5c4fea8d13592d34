package realtime

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/cache"
)

// Backfiller fetches the fully-joined projection for a single row, used on
// insert when the raw change payload lacks denormalized fields.
type Backfiller interface {
	Fetch(table, id string) (cache.Row, error)
}

// needsBackfill reports whether a table's raw payload is missing joined
// display fields that the list caches carry.
func needsBackfill(table string) bool {
	switch table {
	case "repair_tickets", "customers", "customer_devices", "appointments":
		return true
	}
	return false
}

// HTTPBackfiller reads joined projections from the CRM API.
type HTTPBackfiller struct {
	BaseURL string
	Session string
	Client  *http.Client
}

func (b *HTTPBackfiller) Fetch(table, id string) (cache.Row, error) {
	path, ok := detailPath(table)
	if !ok {
		return nil, fmt.Errorf("no projection endpoint for table %s", table)
	}
	client := b.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequest(http.MethodGet, b.BaseURL+path+"/"+id, nil)
	if err != nil {
		return nil, err
	}
	if b.Session != "" {
		req.Header.Set("Authorization", "Bearer "+b.Session)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("projection fetch %s/%s: status %d", table, id, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var row cache.Row
	if err := json.Unmarshal(body, &row); err != nil {
		return nil, err
	}
	return row, nil
}

func detailPath(table string) (string, bool) {
	switch table {
	case "repair_tickets":
		return "/api/tickets", true
	case "customers":
		return "/api/customers", true
	case "customer_devices":
		return "/api/customer-devices", true
	case "appointments":
		return "/api/appointments", true
	case "devices":
		return "/api/admin/devices", true
	}
	return "", false
}

// fetchGroup deduplicates concurrent projection fetches for the same row.
// Entries live for a short TTL so a replayed insert shortly after the first
// shares its result instead of fetching again.
type fetchGroup struct {
	mu    sync.Mutex
	calls *gocache.Cache
}

type fetchCall struct {
	done chan struct{}
	row  cache.Row
	err  error
}

func newFetchGroup(ttl time.Duration) *fetchGroup {
	if ttl <= 0 {
		ttl = time.Second
	}
	return &fetchGroup{calls: gocache.New(ttl, ttl)}
}

func (g *fetchGroup) Do(key string, fn func() (cache.Row, error)) (cache.Row, error) {
	g.mu.Lock()
	if value, ok := g.calls.Get(key); ok {
		call := value.(*fetchCall)
		g.mu.Unlock()
		<-call.done
		return call.row, call.err
	}
	call := &fetchCall{done: make(chan struct{})}
	g.calls.SetDefault(key, call)
	g.mu.Unlock()

	call.row, call.err = fn()
	close(call.done)
	return call.row, call.err
}

func (g *fetchGroup) Flush() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls.Flush()
}
