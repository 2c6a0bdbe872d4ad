package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/alanyang/agentlink/internal/adapter/memory"
	"github.com/alanyang/agentlink/internal/metrics"
	"github.com/alanyang/agentlink/internal/mocks"
	portidempotency "github.com/alanyang/agentlink/internal/port/idempotency"
)

func init() { gin.SetMode(gin.TestMode) }

func TestIdempotencyMiddleware_ReplaysStoredResponse(t *testing.T) {
	var calls atomic.Int32
	r := gin.New()
	r.Use(IdempotencyMiddleware(memory.NewIdempotencyStore(time.Hour)))
	r.POST("/things", func(c *gin.Context) {
		n := calls.Add(1)
		c.JSON(http.StatusCreated, gin.H{"n": n})
	})

	do := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/things", nil)
		if key != "" {
			req.Header.Set(IdempotencyHeader, key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := do("k1")
	second := do("k1")
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, int32(1), calls.Load(), "handler runs once per key")

	do("k2")
	do("")
	assert.Equal(t, int32(3), calls.Load())
}

func TestIdempotencyMiddleware_DoesNotStoreServerErrors(t *testing.T) {
	var calls atomic.Int32
	r := gin.New()
	r.Use(IdempotencyMiddleware(memory.NewIdempotencyStore(time.Hour)))
	r.POST("/flaky", func(c *gin.Context) {
		if calls.Add(1) == 1 {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "boom"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/flaky", nil)
		req.Header.Set(IdempotencyHeader, "same")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestIdempotencyMiddleware_StoreFailureStillServes(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIdempotencyStore(ctrl)
	gomock.InOrder(
		store.EXPECT().Get(gomock.Any(), "/things|k1").
			Return(portidempotency.Record{}, false, errors.New("db down")),
		store.EXPECT().Reserve(gomock.Any(), "/things|k1").Return(false, errors.New("db down")),
		store.EXPECT().Put(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, rec portidempotency.Record) error {
				assert.Equal(t, "/things|k1", rec.Key)
				assert.Equal(t, http.StatusCreated, rec.Status)
				assert.JSONEq(t, `{"ok":true}`, string(rec.Body))
				return errors.New("db down")
			}),
		store.EXPECT().Release(gomock.Any(), "/things|k1").Return(errors.New("db down")),
	)

	r := gin.New()
	r.Use(IdempotencyMiddleware(store))
	r.POST("/things", func(c *gin.Context) { c.JSON(http.StatusCreated, gin.H{"ok": true}) })

	req := httptest.NewRequest(http.MethodPost, "/things", nil)
	req.Header.Set(IdempotencyHeader, "k1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, w.Header().Get("Idempotent-Replayed"))
}

func TestIdempotencyMiddleware_ConcurrentDuplicateRunsOnce(t *testing.T) {
	var calls atomic.Int32
	entered := make(chan struct{})
	proceed := make(chan struct{})
	r := gin.New()
	r.Use(IdempotencyMiddleware(memory.NewIdempotencyStore(time.Hour)))
	r.POST("/messages", func(c *gin.Context) {
		n := calls.Add(1)
		if n == 1 {
			close(entered)
			<-proceed
		}
		c.JSON(http.StatusCreated, gin.H{"n": n})
	})

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/messages", nil)
		req.Header.Set(IdempotencyHeader, "dup")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	firstDone := make(chan *httptest.ResponseRecorder)
	go func() { firstDone <- post() }()
	<-entered

	inFlight := post()
	assert.Equal(t, http.StatusConflict, inFlight.Code)

	close(proceed)
	first := <-firstDone
	require.Equal(t, http.StatusCreated, first.Code)

	after := post()
	assert.Equal(t, http.StatusCreated, after.Code)
	assert.JSONEq(t, first.Body.String(), after.Body.String())
	assert.Equal(t, int32(1), calls.Load(), "handler runs once per key")
}

func TestIdempotencyMiddleware_PanicReleasesKey(t *testing.T) {
	var calls atomic.Int32
	r := gin.New()
	r.Use(gin.Recovery(), IdempotencyMiddleware(memory.NewIdempotencyStore(time.Hour)))
	r.POST("/things", func(c *gin.Context) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})

	var codes []int
	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/things", nil)
		req.Header.Set(IdempotencyHeader, "p")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusInternalServerError, http.StatusCreated}, codes)
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := gin.New()
	r.Use(RateLimiter(ctx, 0.001, 2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for range 3 {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware("https://app.example"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsMiddleware_RecordsRouteTemplate(t *testing.T) {
	m := metrics.NewCollector("test")
	r := gin.New()
	r.Use(MetricsMiddleware(m))
	r.GET("/api/tasks/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/tasks/task_1", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `path="/api/tasks/:id"`))
}
