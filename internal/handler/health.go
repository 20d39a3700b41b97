package handler

import (
	"context"
	"net/http"
	"time"

	"tillbox/internal/infra"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Health reports the state of the dependencies a drawer operation touches:
// postgres (sessions and ledger) and redis (alert queue, drawer locks), plus
// the SMTP breaker as an informational field. The breaker being open degrades
// alerting only, so it never flips the overall status.
func Health(db *gorm.DB, rdb *redis.Client, smtpCB *infra.CircuitBreaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		postgres := "up"
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(ctx) != nil {
			postgres = "down"
		}

		redisState := "up"
		if rdb.Ping(ctx).Err() != nil {
			redisState = "down"
		}

		status := http.StatusOK
		if postgres == "down" || redisState == "down" {
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"ok":          status == http.StatusOK,
			"postgres":    postgres,
			"redis":       redisState,
			"smtpBreaker": smtpCB.State().String(),
		})
	}
}
