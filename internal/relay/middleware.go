package relay

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/1ureka/rtcall/internal/util"
)

// RequestIDHeader is echoed on every response.
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware tags each request with an id, keeping one supplied by
// the client.
func RequestIDMiddleware(c *gin.Context) {
	id := c.GetHeader(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set("request_id", id)
	c.Header(RequestIDHeader, id)

	c.Next()
}

// AccessLogMiddleware logs each request at debug level. WebSocket requests are
// logged when the connection ends.
func AccessLogMiddleware(c *gin.Context) {
	start := time.Now()
	c.Next()

	util.LogDebug("%s %s %d %s rid=%s",
		c.Request.Method,
		c.Request.URL.Path,
		c.Writer.Status(),
		time.Since(start).Round(time.Millisecond),
		c.GetString("request_id"),
	)
}
