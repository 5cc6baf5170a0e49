package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRateLimit_AllowsNormalTraffic(t *testing.T) {
	router := gin.New()
	// Set API key first (rate limiter reads it from context)
	router.Use(func(c *gin.Context) {
		c.Set(ContextKeyAPIKey, "test-key")
		c.Next()
	})
	router.Use(RateLimit(10, 5)) // 10 req/s, burst of 5
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	// First 5 requests should succeed (within burst)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i, w.Code)
		}
	}
}

func TestRateLimit_RejectsExcessiveTraffic(t *testing.T) {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(ContextKeyAPIKey, "test-key")
		c.Next()
	})
	router.Use(RateLimit(1, 2)) // 1 req/s, burst of 2
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	// Exhaust the burst
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}

	// Next request should be rate limited
	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", w.Code)
	}
}

func TestRateLimit_PerKeyIsolation(t *testing.T) {
	router := gin.New()
	// Dynamic API key from header
	router.Use(func(c *gin.Context) {
		c.Set(ContextKeyAPIKey, c.GetHeader("X-API-Key"))
		c.Next()
	})
	router.Use(RateLimit(1, 1)) // Very tight: 1 req/s, burst of 1
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	// Key A uses its burst
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-API-Key", "key-a")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("key-a first request: expected 200, got %d", w.Code)
	}

	// Key A is now rate limited
	req = httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-API-Key", "key-a")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("key-a second request: expected 429, got %d", w.Code)
	}

	// Key B should still work (separate bucket)
	req = httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-API-Key", "key-b")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("key-b first request: expected 200, got %d", w.Code)
	}
}

func TestRateLimit_FallsBackToClientIP(t *testing.T) {
	router := gin.New()
	router.Use(RateLimit(1, 1))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	send := func(addr string) int {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("10.0.0.1:1234"); code != http.StatusOK {
		t.Errorf("first request: expected 200, got %d", code)
	}
	if code := send("10.0.0.1:5678"); code != http.StatusTooManyRequests {
		t.Errorf("same IP: expected 429, got %d", code)
	}
	if code := send("10.0.0.2:1234"); code != http.StatusOK {
		t.Errorf("other IP: expected 200, got %d", code)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	router := gin.New()
	router.Use(RateLimit(0, 0))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
}

func TestLimiterSet_EvictsIdleClients(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	set := newLimiterSet(1, 2, func() time.Time { return now })

	for i := 0; i < 100; i++ {
		set.allow(fmt.Sprintf("ip:10.0.0.%d", i))
	}
	if len(set.clients) != 100 {
		t.Fatalf("expected 100 tracked clients, got %d", len(set.clients))
	}

	now = now.Add(limiterIdleTTL / 2)
	set.allow("key:active")

	now = now.Add(limiterIdleTTL / 2)
	set.allow("key:active")

	if len(set.clients) != 1 {
		t.Errorf("expected only the active client to remain, got %d", len(set.clients))
	}
	if _, ok := set.clients["key:active"]; !ok {
		t.Error("active client was evicted")
	}
}

func TestLimiterSet_KeepsLimitingRecentClients(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	set := newLimiterSet(1, 2, func() time.Time { return now })

	if !set.allow("key:k") || !set.allow("key:k") {
		t.Fatal("burst should be allowed")
	}
	if set.allow("key:k") {
		t.Error("expected the third request to be limited")
	}

	now = now.Add(time.Second)
	if !set.allow("key:k") {
		t.Error("expected one token after a second")
	}
}

func TestLimiterSet_IdleTTLCoversRefill(t *testing.T) {
	set := newLimiterSet(0.001, 10, time.Now)
	if set.idleTTL < 10000*time.Second {
		t.Errorf("idle TTL %v is shorter than the refill time", set.idleTTL)
	}
}
