package main

import (
	"context"
	"encoding/json"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/cache"
	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/config"
	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/query"
	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/realtime"
)

// crm-dashboardd is the headless dashboard companion: it holds the client
// cache, keeps it converged through the realtime feed, and serves the cached
// views over a small read-only HTTP API for local consumers.
func main() {
	cfg := config.LoadSync()

	store := cache.New(realtime.IDField)
	feed := &realtime.WebsocketFeed{URL: cfg.FeedURL, Session: cfg.Session}
	backfill := &realtime.HTTPBackfiller{BaseURL: cfg.ServerURL, Session: cfg.Session}
	manager := realtime.NewManager(feed, store, backfill, realtime.Config{
		DebounceWindow: cfg.DebounceWindow,
		DedupTTL:       cfg.DedupTTL,
	})
	client := &query.Client{BaseURL: cfg.ServerURL, Session: cfg.Session}

	tickets := query.New(client, store, manager, realtime.TopicTickets, "tickets", "/api/tickets", nil)
	customers := query.New(client, store, manager, realtime.TopicCustomers, "customers", "/api/customers", nil)
	appointments := query.New(client, store, manager, realtime.TopicAppointments, "appointments", "/api/appointments", nil)
	stats := query.NewStats(client, store)

	tickets.Bind()
	customers.Bind()
	appointments.Bind()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	for name, q := range map[string]*query.Query{
		"tickets":      tickets,
		"customers":    customers,
		"appointments": appointments,
	} {
		if err := q.Refresh(ctx); err != nil {
			log.Printf("initial %s fetch failed: %v", name, err)
		}
	}
	if err := stats.Refresh(ctx); err != nil {
		log.Printf("initial stats fetch failed: %v", err)
	}
	cancel()

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/views/tickets", serveQuery(tickets))
	mux.HandleFunc("/views/customers", serveQuery(customers))
	mux.HandleFunc("/views/appointments", serveQuery(appointments))
	mux.HandleFunc("/views/stats", func(w http.ResponseWriter, r *http.Request) {
		buckets, loaded := stats.Result()
		writeView(w, map[string]interface{}{
			"data":          buckets,
			"show_skeleton": !loaded,
			"connected":     manager.Connected(),
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("crm-dashboardd listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	manager.UnsubscribeAll()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func serveQuery(q *query.Query) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Query().Get("refresh") == "true" {
			ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
			defer cancel()
			if err := q.Refresh(ctx); err != nil {
				log.Printf("refresh failed: %v", err)
			}
		}
		result := q.Result()
		writeView(w, map[string]interface{}{
			"data":          result.Data,
			"is_loading":    result.IsLoading,
			"is_fetching":   result.IsFetching,
			"show_skeleton": result.ShowSkeleton,
		})
	}
}

func writeView(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
