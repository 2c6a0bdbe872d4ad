package transport

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/alanyang/agentlink/internal/metrics"
	portidempotency "github.com/alanyang/agentlink/internal/port/idempotency"
)

// noisyPaths are high-frequency read paths logged at Debug to keep Info clean.
var noisyPaths = map[string]bool{
	"/health":              true,
	"/metrics":             true,
	"/api/agents/online":   true,
	"/api/messages/unread": true,
	"/api/ws":              true,
}

func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.Request.Method == http.MethodOptions {
			return
		}
		level := slog.LevelInfo
		if c.Request.Method == http.MethodGet && noisyPaths[c.Request.URL.Path] {
			level = slog.LevelDebug
		}

		slog.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func CORSMiddleware(origin string) gin.HandlerFunc {
	if origin == "" {
		origin = "*"
	}
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS, PUT")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key, Mcp-Session-Id")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RateLimiter applies a token bucket per client IP. Idle visitors are swept
// every minute until ctx is done.
func RateLimiter(ctx context.Context, rps float64, burst int) gin.HandlerFunc {
	type visitor struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}
	var (
		mu       sync.Mutex
		visitors = make(map[string]*visitor)
	)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mu.Lock()
				for ip, v := range visitors {
					if time.Since(v.lastSeen) > 3*time.Minute {
						delete(visitors, ip)
					}
				}
				mu.Unlock()
			}
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()
		mu.Lock()
		v, ok := visitors[ip]
		if !ok {
			v = &visitor{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
			visitors[ip] = v
		}
		v.lastSeen = time.Now()
		mu.Unlock()

		if !v.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// MetricsMiddleware records request counts and latency by route template.
func MetricsMiddleware(m *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.ObserveHTTP(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

// IdempotencyHeader names the request header carrying the client's key.
const IdempotencyHeader = "Idempotency-Key"

type capturingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *capturingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// IdempotencyMiddleware replays the stored response for a POST whose
// Idempotency-Key was seen before. The key is reserved before the handler runs,
// so a concurrent duplicate gets 409 instead of a second execution. Only
// non-5xx responses are stored, so a failed request can be retried with the
// same key.
func IdempotencyMiddleware(store portidempotency.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if c.Request.Method != http.MethodPost || key == "" {
			c.Next()
			return
		}
		key = c.Request.URL.Path + "|" + key
		ctx := c.Request.Context()

		if rec, found := lookupIdempotent(ctx, store, key); found {
			replay(c, rec)
			return
		}

		reserved, err := store.Reserve(ctx, key)
		if err != nil {
			// Serve unprotected rather than fail the request.
			slog.ErrorContext(ctx, "idempotency reserve failed", "error", err)
			reserved = true
		}
		if !reserved {
			if rec, found := lookupIdempotent(ctx, store, key); found {
				replay(c, rec)
				return
			}
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "a request with this Idempotency-Key is still in progress"})
			return
		}

		answered := false
		defer func() {
			if answered {
				return
			}
			if err := store.Release(context.WithoutCancel(ctx), key); err != nil {
				slog.ErrorContext(ctx, "idempotency release failed", "error", err)
			}
		}()

		w := &capturingWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if status >= http.StatusInternalServerError {
			return
		}
		if err := store.Put(context.WithoutCancel(ctx), portidempotency.Record{
			Key:    key,
			Status: status,
			Body:   w.body.Bytes(),
		}); err != nil {
			slog.ErrorContext(ctx, "idempotency store failed", "error", err)
			return
		}
		answered = true
	}
}

func lookupIdempotent(ctx context.Context, store portidempotency.Store, key string) (portidempotency.Record, bool) {
	rec, found, err := store.Get(ctx, key)
	if err != nil {
		slog.ErrorContext(ctx, "idempotency lookup failed", "error", err)
		return portidempotency.Record{}, false
	}
	return rec, found
}

func replay(c *gin.Context, rec portidempotency.Record) {
	c.Header("Idempotent-Replayed", "true")
	c.Data(rec.Status, "application/json; charset=utf-8", rec.Body)
	c.Abort()
}
