package query

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/cache"
	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/realtime"
)

func testServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, &Client{BaseURL: server.URL, HTTPClient: server.Client()}
}

func TestQueryShowSkeletonUntilFirstLoad(t *testing.T) {
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]cache.Row{{"ticket_id": "t1", "status": "new"}})
	})
	store := cache.New(realtime.IDField)
	q := New(client, store, nil, realtime.TopicTickets, "repair_tickets", "/api/tickets", nil)

	if res := q.Result(); !res.ShowSkeleton {
		t.Fatal("expected skeleton before first load")
	}
	if err := q.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	res := q.Result()
	if res.ShowSkeleton {
		t.Fatal("skeleton after successful load")
	}
	if len(res.Data) != 1 || res.Data[0]["ticket_id"] != "t1" {
		t.Fatalf("data = %v", res.Data)
	}
}

func TestQueryFailedRefreshKeepsSkeleton(t *testing.T) {
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	store := cache.New(realtime.IDField)
	q := New(client, store, nil, realtime.TopicTickets, "repair_tickets", "/api/tickets", nil)

	if err := q.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if res := q.Result(); !res.ShowSkeleton {
		t.Fatal("failed fetch must not clear the skeleton flag")
	}
}

func TestQuerySendsFiltersAsParams(t *testing.T) {
	var gotStatus atomic.Value
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotStatus.Store(r.URL.Query().Get("status"))
		_ = json.NewEncoder(w).Encode([]cache.Row{})
	})
	store := cache.New(realtime.IDField)
	q := New(client, store, nil, realtime.TopicTickets, "repair_tickets", "/api/tickets", map[string]string{"status": "new"})
	if err := q.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if gotStatus.Load() != "new" {
		t.Fatalf("status param = %v", gotStatus.Load())
	}
}

func TestMutatorUpdateRollsBackOnFailure(t *testing.T) {
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": "invalid_state", "message": "no"}})
	})
	store := cache.New(realtime.IDField)
	store.SetList("repair_tickets", nil, []cache.Row{{"ticket_id": "t1", "status": "new"}})

	m := NewMutator(client, store, "repair_tickets", "ticket_id")
	_, err := m.Update(context.Background(), "/api/tickets", "t1",
		map[string]string{"status": "completed"},
		cache.Row{"status": "completed"})
	if err == nil {
		t.Fatal("expected error")
	}

	rows, _ := store.List("repair_tickets", nil)
	if rows[0]["status"] != "new" {
		t.Fatalf("optimistic write not rolled back: %v", rows[0])
	}
}

func TestMutatorCreateSwapsOptimisticRow(t *testing.T) {
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(cache.Row{"ticket_id": "real-1", "status": "new", "ticket_number": "TK-0001"})
	})
	store := cache.New(realtime.IDField)
	store.SetList("repair_tickets", nil, []cache.Row{})

	m := NewMutator(client, store, "repair_tickets", "ticket_id")
	created, err := m.Create(context.Background(), "/api/tickets",
		map[string]string{"description": "cracked screen"},
		cache.Row{"ticket_id": "temp-1", "status": "new"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created["ticket_id"] != "real-1" {
		t.Fatalf("created = %v", created)
	}

	rows, _ := store.List("repair_tickets", nil)
	if len(rows) != 1 || rows[0]["ticket_id"] != "real-1" {
		t.Fatalf("optimistic row not swapped: %v", rows)
	}
}

func TestMutatorDeleteRestoresOnFailure(t *testing.T) {
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	store := cache.New(realtime.IDField)
	store.SetList("repair_tickets", nil, []cache.Row{{"ticket_id": "t1"}})
	store.SetDetail("repair_tickets", "t1", cache.Row{"ticket_id": "t1"})

	m := NewMutator(client, store, "repair_tickets", "ticket_id")
	if err := m.Delete(context.Background(), "/api/tickets", "t1"); err == nil {
		t.Fatal("expected error")
	}

	rows, _ := store.List("repair_tickets", nil)
	if len(rows) != 1 {
		t.Fatalf("row not restored: %v", rows)
	}
	if _, ok := store.Detail("repair_tickets", "t1"); !ok {
		t.Fatal("detail not restored")
	}
}

func TestStatsFlatten(t *testing.T) {
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tickets_total":       4,
			"ticket_buckets":      map[string]int{"new": 3, "in_progress": 1},
			"appointments_total":  2,
			"appointment_buckets": map[string]int{"scheduled": 2},
			"customers_total":     7,
			"devices_total":       9,
		})
	})
	store := cache.New(realtime.IDField)
	q := NewStats(client, store)
	if err := q.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	stats, loaded := q.Result()
	if !loaded {
		t.Fatal("expected loaded")
	}
	if stats["tickets_new"] != 3 || stats["tickets_total"] != 4 || stats["appointments_scheduled"] != 2 {
		t.Fatalf("stats = %v", stats)
	}
	if stats["tickets_completed"] != 0 {
		t.Fatalf("missing buckets should default to zero: %v", stats)
	}
}
