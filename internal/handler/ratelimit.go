package handler

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// maxTrackedLimiters 超过该数量时清空限流表，避免长期运行时无限增长
const maxTrackedLimiters = 10000

// RateLimiter 按用户维度限制追踪写入频率
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	logger   logrus.FieldLogger
}

// NewRateLimiter 创建限流器，perSecond 为每个用户每秒允许的写入次数
func NewRateLimiter(perSecond float64, burst int, logger logrus.FieldLogger) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		logger:   logger,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		if len(rl.limiters) >= maxTrackedLimiters {
			rl.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

// Allow 判断 key 当前是否还有配额
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// Middleware 以 user_id 查询参数为 key 限流，缺失时退回客户端 IP
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.Query("user_id"))
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		if !rl.Allow(key) {
			rl.logger.WithFields(logrus.Fields{
				"key":    key,
				"path":   c.FullPath(),
				"method": c.Request.Method,
			}).Warn("tracking rate limit exceeded")
			respondErrorCode(c, http.StatusTooManyRequests, "rate_limited", "记录过于频繁，请稍后再试")
			c.Abort()
			return
		}
		c.Next()
	}
}

// TrackingRateLimit 返回追踪写入的限流中间件，未配置限流器时直接放行
func (a *API) TrackingRateLimit() gin.HandlerFunc {
	if a.limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return a.limiter.Middleware()
}
