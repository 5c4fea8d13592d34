package query

import (
	"context"
	"net/http"
	"sync"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/cache"
	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/models"
)

// StatsQuery keeps the dashboard counter singleton populated. After the first
// fetch the realtime handlers keep the buckets current by delta.
type StatsQuery struct {
	client *Client
	cache  *cache.Store

	mu         sync.Mutex
	loadedOnce bool
}

func NewStats(client *Client, store *cache.Store) *StatsQuery {
	return &StatsQuery{client: client, cache: store}
}

func (q *StatsQuery) Refresh(ctx context.Context) error {
	var stats models.DashboardStats
	if err := q.client.Do(ctx, http.MethodGet, "/api/dashboard/stats", nil, nil, &stats); err != nil {
		return err
	}
	q.cache.SetStats(FlattenStats(stats))
	q.mu.Lock()
	q.loadedOnce = true
	q.mu.Unlock()
	return nil
}

func (q *StatsQuery) Result() (map[string]int, bool) {
	q.mu.Lock()
	loaded := q.loadedOnce
	q.mu.Unlock()
	return q.cache.Stats(), loaded
}

// FlattenStats turns the API's stats document into the bucket map the
// realtime handlers adjust.
func FlattenStats(stats models.DashboardStats) map[string]int {
	out := map[string]int{
		"tickets_total":      stats.TicketsTotal,
		"appointments_total": stats.AppointmentsTotal,
		"customers_total":    stats.CustomersTotal,
		"devices_total":      stats.DevicesTotal,
	}
	for _, status := range models.TicketStatuses {
		out["tickets_"+status] = stats.TicketBuckets[status]
	}
	for _, status := range models.AppointmentStatuses {
		out["appointments_"+status] = stats.AppointmentBuckets[status]
	}
	return out
}
