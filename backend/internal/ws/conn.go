package ws

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"slideSync/backend/internal/collab"
	"slideSync/backend/internal/store"
)

const presenceTTL = 600 * time.Second

// SessionStore is the persistent device-session record keeper; implemented
// by store.SessionStore.
type SessionStore interface {
	Upsert(ctx context.Context, sess *store.DeviceSession) error
	TouchVersion(ctx context.Context, deviceID, projectID string, version uint64) error
	MarkOffline(ctx context.Context, deviceID string) error
}

// ProjectStore resolves project metadata for the join access check.
type ProjectStore interface {
	GetProject(ctx context.Context, projectID string) (store.Project, error)
}

// Conn is one device's bidirectional channel. Its lifecycle follows
// disconnected -> registered -> joined -> active, enforced in readLoop:
// joining requires register, submitting requires join.
type Conn struct {
	ws  *websocket.Conn
	hub *Hub

	userID     string
	deviceID   string
	platform   string
	deviceName string
	projectID  string
	registered bool
	joined     bool

	sendMu     sync.Mutex
	sendClosed bool
	send       chan OutboundMessage

	svc      collab.Service
	sessions SessionStore
	projects ProjectStore
	sem      *collab.SemaphoreControl
}

func NewConn(ws *websocket.Conn, hub *Hub, userID string, svc collab.Service, sessions SessionStore, projects ProjectStore, sem *collab.SemaphoreControl) *Conn {
	return &Conn{
		ws:       ws,
		hub:      hub,
		userID:   userID,
		send:     make(chan OutboundMessage, 32),
		svc:      svc,
		sessions: sessions,
		projects: projects,
		sem:      sem,
	}
}

// Enqueue queues msg for delivery, dropping it when the outbound buffer is
// full or the connection is already torn down. Catch-up through the log
// covers anything a slow device misses.
func (c *Conn) Enqueue(msg OutboundMessage) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// closeSend ends the write loop. Safe against concurrent Enqueue and
// idempotent.
func (c *Conn) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

func (c *Conn) fail(message string) {
	c.Enqueue(ErrorMessage{Type: "error", Message: message})
}

func (c *Conn) readLoop(ctx context.Context) {
	defer func() {
		// leave the room before the outbound channel closes, so a broadcast
		// racing the teardown never hits a dead connection. The request
		// context dies with the socket; teardown gets its own.
		c.disconnect(context.Background())
		c.closeSend()
	}()
	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("read json error (device=%s, project=%s): %v", c.deviceID, c.projectID, err)
			}
			return
		}

		switch msg.Type {
		case "register":
			c.handleRegister(ctx, msg)
		case "joinProject":
			c.handleJoinProject(ctx, msg)
		case "operations":
			c.handleOperations(ctx, msg)
		case "requestSync":
			c.handleRequestSync(ctx, msg)
		case "resolveConflict":
			c.handleResolveConflict(ctx, msg)
		case "presence":
			c.handlePresence(ctx, msg)
		case "heartbeat":
			c.handleHeartbeat(ctx)
		default:
			c.fail("unknown message type: " + msg.Type)
		}
	}
}

func (c *Conn) writeLoop() {
	for msg := range c.send {
		_ = c.ws.WriteJSON(msg)
	}
}

// handleRegister binds a device identity to this connection. Idempotent:
// registering again refreshes platform and name.
func (c *Conn) handleRegister(ctx context.Context, msg ClientMessage) {
	if msg.DeviceID == "" || msg.UserID == "" {
		c.fail("register requires userId and deviceId")
		return
	}
	if c.userID != "" && c.userID != msg.UserID {
		c.fail("userId does not match the authenticated user")
		return
	}
	c.userID = msg.UserID
	c.deviceID = msg.DeviceID
	c.platform = msg.Platform
	c.deviceName = msg.DeviceName
	c.registered = true

	c.Enqueue(RegisteredMessage{Type: "registered", Device: DeviceInfo{
		DeviceID:   c.deviceID,
		UserID:     c.userID,
		Platform:   c.platform,
		DeviceName: c.deviceName,
		Online:     true,
	}})
}

func (c *Conn) handleJoinProject(ctx context.Context, msg ClientMessage) {
	if !c.registered {
		c.fail("DEVICE_NOT_REGISTERED")
		return
	}
	if msg.ProjectID == "" {
		c.fail("joinProject requires projectId")
		return
	}

	// access check happens before any session state exists
	proj, err := c.projects.GetProject(ctx, msg.ProjectID)
	if errors.Is(err, sql.ErrNoRows) {
		c.fail("PROJECT_NOT_FOUND")
		return
	}
	if err != nil {
		log.Printf("get project error (project=%s): %v", msg.ProjectID, err)
		c.fail("PROJECT_LOOKUP_FAILED")
		return
	}
	if !proj.Shared && proj.OwnerID != c.userID {
		c.fail("PROJECT_ACCESS_DENIED")
		return
	}

	if c.joined && c.projectID != msg.ProjectID {
		c.leaveProject(ctx)
	}
	c.projectID = msg.ProjectID
	c.joined = true
	c.hub.Join(c.projectID, c)

	if err := c.sessions.Upsert(ctx, &store.DeviceSession{
		DeviceID:         c.deviceID,
		ProjectID:        c.projectID,
		UserID:           c.userID,
		Platform:         c.platform,
		DeviceName:       c.deviceName,
		LastKnownVersion: msg.CurrentVersion,
	}); err != nil {
		log.Printf("session upsert error (device=%s, project=%s): %v", c.deviceID, c.projectID, err)
	}
	if c.hub.presence != nil {
		_ = c.hub.presence.AddDevice(ctx, c.projectID, c.deviceID, c.userID, presenceTTL)
	}

	version, err := c.svc.CurrentVersion(ctx, c.projectID)
	if err != nil {
		c.fail(err.Error())
		return
	}

	// a device that fell behind gets the catch-up stream instead of a plain
	// join acknowledgment
	if msg.CurrentVersion < version {
		ops, serverVersion, err := c.svc.OpsSince(ctx, c.projectID, msg.CurrentVersion)
		if err != nil {
			c.fail(err.Error())
			return
		}
		c.Enqueue(SyncUpdateMessage{Type: "syncUpdate", Operations: ops, ServerVersion: serverVersion})
		_ = c.sessions.TouchVersion(ctx, c.deviceID, c.projectID, serverVersion)
		return
	}
	c.Enqueue(JoinedMessage{Type: "joined", Project: c.projectID, Version: version})
}

func (c *Conn) handleOperations(ctx context.Context, msg ClientMessage) {
	if !c.registered {
		c.fail("DEVICE_NOT_REGISTERED")
		return
	}
	if !c.joined {
		c.fail("PROJECT_NOT_JOINED")
		return
	}

	submitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	if err := c.sem.Acquire(submitCtx); err != nil {
		c.fail(err.Error())
		return
	}
	defer c.sem.Release()

	res, err := c.svc.Submit(submitCtx, c.projectID, c.deviceID, msg.BaseVersion, msg.Operations)
	if err != nil {
		c.fail(err.Error())
		return
	}

	c.Enqueue(OperationsAckMessage{Type: "operationsAck", Applied: res.Applied, ServerVersion: res.ServerVersion})
	if len(res.Conflicts) > 0 {
		c.Enqueue(ConflictsMessage{Type: "conflicts", Conflicting: res.Conflicts, Applied: res.Applied})
	}
	if len(res.Applied) > 0 {
		c.hub.BroadcastExcept(c.projectID, c, RemoteOperationsMessage{
			Type:          "remoteOperations",
			Operations:    res.Applied,
			FromDevice:    c.deviceID,
			ServerVersion: res.ServerVersion,
		})
	}
	if err := c.sessions.TouchVersion(ctx, c.deviceID, c.projectID, res.ServerVersion); err != nil {
		log.Printf("session touch error (device=%s, project=%s): %v", c.deviceID, c.projectID, err)
	}
}

func (c *Conn) handleRequestSync(ctx context.Context, msg ClientMessage) {
	if !c.registered {
		c.fail("DEVICE_NOT_REGISTERED")
		return
	}
	if !c.joined {
		c.fail("PROJECT_NOT_JOINED")
		return
	}
	ops, serverVersion, err := c.svc.OpsSince(ctx, c.projectID, msg.SinceVersion)
	if err != nil {
		c.fail(err.Error())
		return
	}
	c.Enqueue(SyncUpdateMessage{Type: "syncUpdate", Operations: ops, ServerVersion: serverVersion})
	_ = c.sessions.TouchVersion(ctx, c.deviceID, c.projectID, serverVersion)
}

func (c *Conn) handleResolveConflict(ctx context.Context, msg ClientMessage) {
	if !c.registered {
		c.fail("DEVICE_NOT_REGISTERED")
		return
	}
	if !c.joined {
		c.fail("PROJECT_NOT_JOINED")
		return
	}
	op, version, err := c.svc.ResolveConflict(ctx, c.projectID, c.deviceID, msg.Strategy, msg.ResolvedContent)
	if err != nil {
		c.fail(err.Error())
		return
	}
	c.hub.Broadcast(c.projectID, ConflictResolvedMessage{
		Type:       "conflictResolved",
		ResolvedBy: c.deviceID,
		Version:    version,
		Content:    op.Content,
	})
}

// handlePresence relays cursor/selection to the rest of the room. Nothing is
// persisted and the project version is untouched; Redis keeps a short-lived
// copy so late joiners can render remote cursors.
func (c *Conn) handlePresence(ctx context.Context, msg ClientMessage) {
	if !c.registered {
		c.fail("DEVICE_NOT_REGISTERED")
		return
	}
	if !c.joined {
		c.fail("PROJECT_NOT_JOINED")
		return
	}
	c.hub.BroadcastExcept(c.projectID, c, PresenceMessage{
		Type:      "presence",
		DeviceID:  c.deviceID,
		Cursor:    msg.Cursor,
		Selection: msg.Selection,
	})
	if c.hub.presence != nil {
		if b, err := json.Marshal(map[string]any{"cursor": msg.Cursor, "selection": msg.Selection}); err == nil {
			_ = c.hub.presence.SetCursor(ctx, c.projectID, c.deviceID, b, presenceTTL)
		}
	}
}

func (c *Conn) handleHeartbeat(ctx context.Context) {
	if !c.joined || c.hub.presence == nil {
		return
	}
	if err := c.hub.presence.AddDevice(ctx, c.projectID, c.deviceID, c.userID, presenceTTL); err != nil {
		log.Printf("presence refresh error (device=%s): %v", c.deviceID, err)
	}
}

// leaveProject detaches the connection from its room and tells the others.
// The session record survives, it is only marked offline.
func (c *Conn) leaveProject(ctx context.Context) {
	if !c.joined {
		return
	}
	c.hub.Leave(c.projectID, c)
	c.hub.BroadcastExcept(c.projectID, c, DeviceOfflineMessage{Type: "deviceOffline", DeviceID: c.deviceID})
	if c.hub.presence != nil {
		_ = c.hub.presence.RemoveDevice(ctx, c.projectID, c.deviceID)
	}
	c.joined = false
}

func (c *Conn) disconnect(ctx context.Context) {
	c.leaveProject(ctx)
	if c.registered && c.deviceID != "" {
		if err := c.sessions.MarkOffline(ctx, c.deviceID); err != nil {
			log.Printf("session offline error (device=%s): %v", c.deviceID, err)
		}
	}
}
