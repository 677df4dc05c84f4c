package ws

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"slideSync/backend/internal/collab"
)

// upgrader allows local development origins; environments without an Origin
// header (native clients) pass as well.
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return true
	}
	allowedPrefixes := []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

type Manager struct {
	hub      *Hub
	svc      collab.Service
	sessions SessionStore
	projects ProjectStore
	sem      *collab.SemaphoreControl
}

func NewManager(hub *Hub, svc collab.Service, sessions SessionStore, projects ProjectStore, sem *collab.SemaphoreControl) *Manager {
	return &Manager{hub: hub, svc: svc, sessions: sessions, projects: projects, sem: sem}
}

// WebSocketConnect upgrades the request and runs the connection until the
// device goes away. The authenticated userId comes from the auth middleware;
// the device still has to register before joining or submitting.
func (m *Manager) WebSocketConnect(c *gin.Context) {
	userID := c.GetString("userId")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	wsConn := NewConn(conn, m.hub, userID, m.svc, m.sessions, m.projects, m.sem)

	// the write loop must be draining before anything lands in send
	go wsConn.writeLoop()

	// readLoop owns teardown: it leaves the hub and closes the outbound
	// channel before returning
	wsConn.readLoop(c.Request.Context())
}
