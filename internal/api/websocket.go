// internal/api/websocket.go
package api

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Corphon/LectureCompanion/internal/models"
	"github.com/Corphon/LectureCompanion/internal/services"
	"github.com/Corphon/LectureCompanion/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// JobMessage is one websocket frame.
type JobMessage struct {
	Type      string      `json:"type"` // "job" or "error"
	Job       *models.Job `json:"job,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// JobStreamer pushes job updates to websocket clients.
type JobStreamer struct {
	jobs     *services.JobService
	upgrader websocket.Upgrader
	active   atomic.Int32
}

// NewJobStreamer accepts connections from the given origins; "*" accepts any.
func NewJobStreamer(jobs *services.JobService, origins []string) *JobStreamer {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return &JobStreamer{
		jobs: jobs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || allowed["*"] || allowed[origin] {
					return true
				}
				u, err := url.Parse(origin)
				return err == nil && u.Host == r.Host
			},
		},
	}
}

// Active reports the number of open connections.
func (s *JobStreamer) Active() int {
	return int(s.active.Load())
}

// Serve upgrades the request and streams the job until it ends or the client
// disconnects. Unknown jobs get a JSON 404 before any upgrade.
func (s *JobStreamer) Serve(c *gin.Context, response *ResponseHelper) {
	jobID := c.Param("id")
	updates, unsubscribe, err := s.jobs.Subscribe(c.Request.Context(), jobID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		utils.GetLogger().Warn("websocket upgrade failed", map[string]interface{}{
			"job_id": jobID,
			"code":   ErrorUpgradeFailed,
			"error":  err.Error(),
		})
		return
	}
	s.active.Add(1)
	defer s.active.Add(-1)

	client := &jobClient{conn: conn}
	defer client.Close()

	gone := make(chan struct{})
	go client.readLoop(gone)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return
		case job, ok := <-updates:
			if !ok {
				client.closeNormally()
				return
			}
			if err := client.send(JobMessage{Type: "job", Job: &job, Timestamp: time.Now()}); err != nil {
				return
			}
		case <-ticker.C:
			if err := client.ping(); err != nil {
				return
			}
		}
	}
}

// jobClient wraps one connection. Writes happen on the serving goroutine only.
type jobClient struct {
	conn   *websocket.Conn
	closed int32
	once   sync.Once
}

func (jc *jobClient) readLoop(gone chan<- struct{}) {
	defer close(gone)
	jc.conn.SetReadLimit(512)
	_ = jc.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	jc.conn.SetPongHandler(func(string) error {
		return jc.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		// Clients only send control frames; anything else is discarded.
		if _, _, err := jc.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (jc *jobClient) send(msg JobMessage) error {
	if atomic.LoadInt32(&jc.closed) == 1 {
		return websocket.ErrCloseSent
	}
	_ = jc.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return jc.conn.WriteJSON(msg)
}

func (jc *jobClient) ping() error {
	_ = jc.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return jc.conn.WriteMessage(websocket.PingMessage, nil)
}

func (jc *jobClient) closeNormally() {
	_ = jc.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"),
		time.Now().Add(wsWriteWait))
}

// Close is safe to call more than once.
func (jc *jobClient) Close() {
	jc.once.Do(func() {
		atomic.StoreInt32(&jc.closed, 1)
		jc.conn.Close()
	})
}
