package server

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const actorKey = "actor_id"

// requireActor pulls the authenticated actor from the X-Actor-ID header.
// Session establishment happens upstream; here the identity is trusted.
func requireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-Actor-ID")
		id, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid actor identity"})
			return
		}
		c.Set(actorKey, id)
		c.Next()
	}
}

// actorID returns the actor established by requireActor.
func actorID(c *gin.Context) int64 {
	return c.GetInt64(actorKey)
}

// maxTrackedClients bounds the per-client limiter table. When the cap is
// hit the table is dropped and rebuilt, which at worst refreshes some
// clients' burst allowance.
const maxTrackedClients = 4096

// clientLimiters hands out one token bucket per client address, capped in
// size.
type clientLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	max      int
}

func newClientLimiters(max int) *clientLimiters {
	return &clientLimiters{
		limiters: make(map[string]*rate.Limiter),
		max:      max,
	}
}

func (c *clientLimiters) get(client string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[client]
	if !ok {
		if len(c.limiters) >= c.max {
			c.limiters = make(map[string]*rate.Limiter)
		}
		l = rate.NewLimiter(rate.Limit(20), 40)
		c.limiters[client] = l
	}
	return l
}

func (c *clientLimiters) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.limiters)
}

// rateLimit caps request throughput per client address.
func rateLimit() gin.HandlerFunc {
	limiters := newClientLimiters(maxTrackedClients)
	return func(c *gin.Context) {
		if !limiters.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
