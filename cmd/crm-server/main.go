package main

import (
	"context"
	"encoding/json"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/config"
	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/httpapi"
	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/hub"
	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/realtime"
	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/store"
	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/store/postgres"
	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/telemetry"
)

var (
	eventsBroadcast = expvar.NewInt("events_broadcast_total")
	sweepNoShows    = expvar.NewInt("appointments_no_show_swept_total")
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("crm-server")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	db := postgres.NewStore(pool)
	h := hub.New()
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute: cfg.RateLimitPerMinute,
		IPBurst:     cfg.RateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/", httpapi.NewHandler(db).Routes())
	mux.Handle("/realtime/", sockjsHandler(db, h))

	handler := otelhttp.NewHandler(
		httpapi.LoggingMiddleware(limiter.Middleware(httpapi.AuthMiddleware(db, mux))),
		"crm-server",
	)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("crm-server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stopBroadcast := startBroadcastLoop(db, h, cfg)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		swept, err := db.SweepNoShows(ctx, time.Now().UTC(), cfg.NoShowGrace)
		if err != nil {
			log.Printf("no-show sweep error: %v", err)
			return
		}
		if swept > 0 {
			sweepNoShows.Add(int64(swept))
			log.Printf("no-show sweep marked=%d", swept)
		}
	}); err != nil {
		log.Fatalf("sweep schedule: %v", err)
	}
	if _, err := scheduler.AddFunc(cfg.CleanupSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := db.CleanupOutbox(ctx, time.Now().UTC().Add(-cfg.OutboxRetain)); err != nil {
			log.Printf("cleanup outbox error: %v", err)
		}
	}); err != nil {
		log.Fatalf("cleanup schedule: %v", err)
	}
	scheduler.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	scheduler.Stop()
	close(stopBroadcast)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// sockjsHandler authenticates the connection, then routes each subscribed
// topic's events to the client until it disconnects.
func sockjsHandler(sessions store.SessionStore, h *hub.Hub) http.Handler {
	return sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		req := session.Request()
		sessionID := sessionIDFromRequest(req)
		if sessionID == "" {
			_ = session.Close(4001, "missing session")
			return
		}
		if _, err := sessions.GetSession(context.Background(), sessionID); err != nil {
			_ = session.Close(4002, "invalid session")
			return
		}

		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.Unsubscribe(client, parsed.Topic)
			} else {
				h.Subscribe(client, parsed.Topic)
			}
		}
	})
}

// startBroadcastLoop polls the outbox and fans events out to topic
// subscribers. A CAS flag keeps slow polls from stacking up.
func startBroadcastLoop(db *postgres.Store, h *hub.Hub, cfg config.Config) chan struct{} {
	stop := make(chan struct{})

	offset, err := db.GetOffset(context.Background())
	if err != nil {
		log.Printf("load offset error: %v", err)
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var running int32
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			if !atomic.CompareAndSwapInt32(&running, 0, 1) {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			events, err := db.ListOutboxEvents(ctx, offset, cfg.BatchSize)
			cancel()
			if err != nil {
				log.Printf("list outbox error: %v", err)
				atomic.StoreInt32(&running, 0)
				continue
			}
			for _, event := range events {
				offset.LastEventTime = event.CreatedAt
				offset.LastEventID = event.EventID
				topic, ok := realtime.TopicForTable(event.Table)
				if !ok {
					continue
				}
				payload, err := json.Marshal(realtime.Envelope{
					Table:     event.Table,
					EventType: event.EventType,
					New:       event.New,
					Old:       event.Old,
					CreatedAt: event.CreatedAt,
				})
				if err != nil {
					log.Printf("marshal envelope error: %v", err)
					continue
				}
				h.Broadcast(string(topic), payload)
				eventsBroadcast.Add(1)
			}
			if len(events) > 0 {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := db.UpdateOffset(ctx, offset); err != nil {
					log.Printf("update offset error: %v", err)
				}
				cancel()
			}
			atomic.StoreInt32(&running, 0)
		}
	}()
	return stop
}

func sessionIDFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("session_id"))
}

func bearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
