package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/qianniu/llmbot/internal/common"
)

// CORS allows browser clients to call the API and read the refresh
// token header set on demotion.
func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:   []string{"Authorization", "X-Refresh-Token", "X-Request-ID"},
		MaxAge:          12 * time.Hour,
	})
}

// RequestID tags every request with a sortable id for log correlation.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := common.NewULID()
		if err == nil {
			c.Set("request_id", id)
			c.Header("X-Request-ID", id)
		}
		c.Next()
	}
}

// RequestLogger emits one structured line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"elapsed":    time.Since(start).String(),
			"request_id": c.GetString("request_id"),
		}).Info("request")
	}
}
