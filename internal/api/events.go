// internal/api/events.go
package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Corphon/LectureCompanion/internal/models"
	"github.com/gin-gonic/gin"
)

var sseHeartbeat = 15 * time.Second

// streamJobEvents writes job updates as server-sent events until the job
// ends or the client goes away.
func streamJobEvents(c *gin.Context, updates <-chan models.Job) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	clientGone := c.Request.Context().Done()
	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"request_id\":%q}\n\n", getRequestID(c))
	c.Writer.Flush()

	for {
		select {
		case <-clientGone:
			return
		case job, ok := <-updates:
			if !ok {
				fmt.Fprint(c.Writer, "event: end\ndata: {}\n\n")
				c.Writer.Flush()
				return
			}
			data, err := json.Marshal(job)
			if err != nil {
				return
			}
			fmt.Fprintf(c.Writer, "event: progress\ndata: %s\n\n", data)
			c.Writer.Flush()
		case <-ticker.C:
			fmt.Fprintf(c.Writer, "event: heartbeat\ndata: {\"time\":%d}\n\n", time.Now().Unix())
			c.Writer.Flush()
		}
	}
}
