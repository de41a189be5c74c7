package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is a dependency the health check probes
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthChecker struct {
	deps map[string]Pinger
}

func NewHealthChecker(infra Infrastructure) *HealthChecker {
	return &HealthChecker{
		deps: map[string]Pinger{
			"postgres": infra.Postgres(),
			"redis":    infra.Redis(),
		},
	}
}

// check pings every dependency concurrently and reports each result
func (h *HealthChecker) check(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		healthy = true
		results = make(map[string]string, len(h.deps))
	)

	for name, dep := range h.deps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := "pass"
			if err := dep.Ping(ctx); err != nil {
				status = "fail: " + err.Error()
			}
			mu.Lock()
			defer mu.Unlock()
			results[name] = status
			if status != "pass" {
				healthy = false
			}
		}()
	}
	wg.Wait()

	return results, healthy
}

func (h *HealthChecker) Handler(c *gin.Context) {
	results, healthy := h.check(c.Request.Context())
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "fail",
			"checks": results,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "pass",
		"checks": results,
	})
}
