package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"nestlist/internal/api/middleware"
	"nestlist/internal/config"
)

func TestRateLimiterMiddleware_AllowsWithinBucket(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{RateLimitBucketSize: 3, RateLimitRefillRate: 1}
	rm := middleware.NewRateLimiterMiddleware(cfg)

	r := gin.New()
	r.Use(rm.Limit())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/", nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i)
	}
}

func TestRateLimiterMiddleware_RejectsWhenExhausted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{RateLimitBucketSize: 2, RateLimitRefillRate: 0}
	rm := middleware.NewRateLimiterMiddleware(cfg)

	r := gin.New()
	r.Use(rm.Limit())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/", nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "Rate limit exceeded")
}
