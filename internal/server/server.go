// Package server assembles the scribe ops API: route wiring, the auth and
// rate-limit middleware in front of it, the websocket hub, and the listener
// lifecycle.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/carverlabs/scribe/internal/archive"
	"github.com/carverlabs/scribe/internal/config"
	"github.com/carverlabs/scribe/internal/engine"
	"github.com/carverlabs/scribe/internal/retention"
	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/web/handlers"
)

// serverVersion is reported by the health endpoint.
const serverVersion = "1.0.0"

// securityHeaders go on every response, API or not.
var securityHeaders = map[string]string{
	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "DENY",
	"X-XSS-Protection":       "1; mode=block",
	"Referrer-Policy":        "strict-origin-when-cross-origin",
}

func withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for name, value := range securityHeaders {
			w.Header().Set(name, value)
		}
		next.ServeHTTP(w, r)
	})
}

// allow guards a handler to a single HTTP method.
func allow(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

// Start wires the ops API onto a listener and serves it until ctx is
// cancelled. It returns the bound address (cfg may ask for port 0) and the
// websocket hub so callers can feed it pipeline events. eng, archiver, and
// manager may each be nil; routes needing a missing dependency are simply
// not registered.
func Start(ctx context.Context, cfg *config.Config, store storage.Store, eng *engine.Engine, archiver *archive.Archiver, manager *retention.Manager) (string, *handlers.WebSocketHub) {
	hub := handlers.NewWebSocketHub()

	// The engine doubles as the retry kicker and the stats route reporter.
	// Assign through locals so a nil engine stays a nil interface.
	var kicker handlers.Kicker
	var reporter handlers.RouteReporter
	if eng != nil {
		kicker = eng
		reporter = eng
	}

	staging := handlers.NewStagingHandlers(store, kicker)
	stats := handlers.NewStatsHandler(store, reporter)
	activity := handlers.NewActivityHandler(store)
	imports := handlers.NewImportHandlers(store)

	api := http.NewServeMux()
	api.HandleFunc("/api/staging", allow(http.MethodGet, staging.ListStaging))
	api.HandleFunc("/api/staging/{id}", allow(http.MethodGet, staging.GetStaging))
	api.HandleFunc("/api/staging/{id}/retry", allow(http.MethodPost, staging.RetryStaging))
	api.HandleFunc("/api/stats", stats.GetStats)
	api.HandleFunc("/api/activity", activity.GetActivity)
	api.HandleFunc("/api/import/staging", allow(http.MethodPost, imports.PostStagingImport))
	api.HandleFunc("/api/import/status/{job_id}", imports.GetImportStatus)

	// Pipeline triggers need both the engine and the archiver.
	if eng != nil && archiver != nil {
		pipeline := handlers.NewPipelineHandlers(eng, archiver)
		api.HandleFunc("/api/pipeline/route", allow(http.MethodPost, pipeline.PostRoute))
		api.HandleFunc("/api/pipeline/archive", allow(http.MethodPost, pipeline.PostArchive))
		api.HandleFunc("/api/pipeline/status", pipeline.GetStatus)
	}

	// Curation: duplicate scans, consolidation, phases, statuses.
	if eng != nil {
		curation := handlers.NewCurationHandlers(eng)
		api.HandleFunc("/api/curation/duplicates", curation.GetDuplicates)
		api.HandleFunc("/api/curation/consolidate", allow(http.MethodPost, curation.PostConsolidate))
		api.HandleFunc("/api/curation/phases", allow(http.MethodPost, curation.PostPhases))
		api.HandleFunc("/api/curation/normalize", allow(http.MethodPost, curation.PostNormalize))
		api.HandleFunc("/api/curation/completions", allow(http.MethodPost, curation.PostCompletions))
		api.HandleFunc("/api/curation/rollup", allow(http.MethodPost, curation.PostRollup))
	}

	// Retention: staleness scans and the purge approval gate.
	if manager != nil {
		ret := handlers.NewRetentionHandlers(manager, hub)
		api.HandleFunc("/api/retention", allow(http.MethodGet, ret.GetRetention))
		api.HandleFunc("/api/retention/flag", allow(http.MethodPost, ret.PostFlag))
		api.HandleFunc("/api/retention/requests", allow(http.MethodGet, ret.ListRequests))
		api.HandleFunc("/api/retention/requests/{id}/approve", allow(http.MethodPost, ret.PostApprove))
		api.HandleFunc("/api/retention/requests/{id}/reject", allow(http.MethodPost, ret.PostReject))
		api.HandleFunc("/api/retention/bulk-approve", allow(http.MethodPost, ret.PostBulkApprove))
	}

	root := http.NewServeMux()
	// Health sits outside the auth gate so probes work in production mode.
	root.HandleFunc("/api/health", allow(http.MethodGet, handleHealth))
	root.Handle("/api/", handlers.RequireAuth(api, cfg))
	// Websocket auth is origin validation, handled by the hub itself.
	root.Handle("/ws", hub)

	limiter := handlers.NewRateLimiter(10.0, 20)
	handler := withSecurityHeaders(handlers.RateLimitMiddleware(root, limiter))

	addr := serve(ctx, fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), handler, hub)
	return addr, hub
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"healthy","version":%q}`, serverVersion)
}

// serve binds addr, serves handler until ctx is done, then drains in-flight
// requests and stops the hub. The returned address has the real port.
func serve(ctx context.Context, addr string, handler http.Handler, hub *handlers.WebSocketHub) string {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("scribe: listen on %s: %v", addr, err)
	}

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("scribe: serve: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		drain, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(drain); err != nil {
			log.Printf("scribe: shutdown: %v", err)
		}
		hub.Stop()
	}()

	return ln.Addr().String()
}
