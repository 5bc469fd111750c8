// HTTP middleware for the contextualizer API.
//
// DESIGN: Two layers.
//   - Every route: panicRecovery -> requestID -> security
//   - API routes: observe, which owns the request's RequestEvent and feeds
//     metrics, the request log and telemetry from it. The process route
//     adds rateLimit inside observe, so rejected calls are still observed.
//
// /health and /metrics skip the API layer: liveness checks and scrapes never spend a
// client's rate budget and never land in telemetry.
package gateway

import (
	"net"
	"net/http"
	"net/netip"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/compresr/semantic-context/internal/monitoring"
)

// maxRequestIDLen bounds a client-supplied X-Request-ID; longer ones are replaced.
const maxRequestIDLen = 128

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// =============================================================================
// EVERY ROUTE
// =============================================================================

func (g *Gateway) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				g.alerts.FlagPanic(monitoring.RequestIDFromContext(r.Context()), v, string(debug.Stack()))
				g.writeError(w, errInternal, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestID adopts the caller's X-Request-ID or assigns a UUID, and echoes it.
func (g *Gateway) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(monitoring.WithRequestIDContext(r.Context(), id)))
	})
}

// security sets response hardening headers and answers CORS for configured origins.
func (g *Gateway) security(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'none'")

		if origin := r.Header.Get("Origin"); origin != "" && g.allowOrigin(origin) {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, "+HeaderRequestID)
			h.Set("Access-Control-Expose-Headers", HeaderRequestID)
			h.Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) allowOrigin(origin string) bool {
	for _, allowed := range g.config.Server.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// =============================================================================
// API ROUTES
// =============================================================================

// observe opens the request's RequestEvent, hands it to the handler through
// the context, and reports the finished request once.
func (g *Gateway) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		event := &monitoring.RequestEvent{
			RequestID: monitoring.RequestIDFromContext(r.Context()),
			Timestamp: start.UTC(),
			Method:    r.Method,
			Path:      r.URL.Path,
			ClientIP:  g.clientIP(r),
		}
		g.requestLogger.LogIncoming(event)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(monitoring.WithRequestEvent(r.Context(), event)))

		latency := time.Since(start)
		event.StatusCode = rec.status
		event.Success = rec.status < http.StatusBadRequest
		event.TotalLatencyMs = latency.Milliseconds()

		g.metrics.RecordRequest(event.Success, latency)
		g.alerts.FlagHighLatency(event.RequestID, latency, event.Path)
		g.requestLogger.LogResponse(event, latency)
		g.tracker.RecordRequest(event)
	})
}

// rateLimit enforces the per-client budget. A nil limiter disables it.
func (g *Gateway) rateLimit(next http.Handler) http.Handler {
	if g.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := g.clientIP(r)
		if !g.limiter.allow(ip, time.Now()) {
			event := monitoring.RequestEventFromContext(r.Context())
			event.Error = errRateLimited
			log.Warn().Str("request_id", event.RequestID).Str("ip", ip).Msg("rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			g.writeError(w, errRateLimited, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the peer address, or the first X-Forwarded-For hop (then
// X-Real-IP) when the peer is a configured trusted proxy.
func (g *Gateway) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !g.trustedProxy(peer.Unmap()) {
		return host
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return host
}

func (g *Gateway) trustedProxy(addr netip.Addr) bool {
	for _, p := range g.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// =============================================================================
// CLIENT LIMITER
// =============================================================================

// limiterIdleTTL is how long an idle client keeps its limiter.
const limiterIdleTTL = 10 * time.Minute

// clientLimiter holds one token bucket per client address. Bursts up to the
// per-second rate are allowed. The table is bounded: idle clients are evicted
// on insert, then the least recently seen one if still full.
type clientLimiter struct {
	mu         sync.Mutex
	limit      rate.Limit
	burst      int
	maxClients int
	clients    map[string]*clientBucket
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(perSecond, maxClients int) *clientLimiter {
	return &clientLimiter{
		limit:      rate.Limit(perSecond),
		burst:      perSecond,
		maxClients: maxClients,
		clients:    make(map[string]*clientBucket),
	}
}

func (l *clientLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.clients[ip]
	if !ok {
		if len(l.clients) >= l.maxClients {
			l.evict(now)
		}
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// evict is called with mu held.
func (l *clientLimiter) evict(now time.Time) {
	var oldestIP string
	var oldest time.Time
	for ip, b := range l.clients {
		if now.Sub(b.lastSeen) > limiterIdleTTL {
			delete(l.clients, ip)
			continue
		}
		if oldestIP == "" || b.lastSeen.Before(oldest) {
			oldestIP, oldest = ip, b.lastSeen
		}
	}
	if len(l.clients) >= l.maxClients && oldestIP != "" {
		delete(l.clients, oldestIP)
	}
}
