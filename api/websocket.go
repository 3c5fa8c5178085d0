package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type progressMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// streamProgress upgrades GET /ws/analyze/:job_id to a websocket and
// relays the cube analyzer's per-subset progress events until the job
// completes or fails, then sends the final result (or error) once.
func (s *Server) streamProgress(c *gin.Context) {
	jobID := c.Param("job_id")
	events, ok := s.jobs.subscribe(jobID)
	if !ok {
		HandleNotFoundError(c, "job", jobID)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", map[string]interface{}{"error": err.Error(), "job_id": jobID})
		return
	}
	defer conn.Close()

	for ev := range events {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(progressMessage{Type: "progress", Payload: ev}); err != nil {
			return
		}
	}

	j, ok := s.jobs.get(jobID)
	if !ok {
		return
	}
	j.mu.Lock()
	status, result, jobErr := j.status, j.result, j.err
	j.mu.Unlock()

	if status == jobFailed {
		conn.WriteJSON(progressMessage{Type: "error", Payload: jobErr.Error()})
		return
	}
	conn.WriteJSON(progressMessage{Type: "done", Payload: result})
}
