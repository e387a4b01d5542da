package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// catchupLimit is the maximum number of ride events returned when a
// connection joins a journey room. If more were missed, a catchup.overflow
// message tells the client to fall back to GET /group-journey/{id}/events.
const catchupLimit = 200

// listenTimeout bounds how long a LISTEN command may block when subscribing
// to a new PG channel.
const listenTimeout = 10 * time.Second

// CatchupEvent holds one row returned by a catchup query.
type CatchupEvent struct {
	Seq     int64
	Payload map[string]interface{}
}

// CatchupQuerier fetches ride events since a sequence cursor for a journey
// room. Implemented by the events package's RideEventAdapter.
type CatchupQuerier interface {
	GetCatchupEvents(ctx context.Context, journeyChannel string, sinceSeq int64, limit int) ([]CatchupEvent, error)
}

// ConnectionManager manages WebSocket connections and room memberships. Each
// server process has one ConnectionManager instance; cross-process delivery
// is handled by NotifyListener forwarding PostgreSQL NOTIFYs into Broadcast.
type ConnectionManager struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	channels  map[string]map[string]bool
	channelMu sync.RWMutex

	catchupQuerier CatchupQuerier

	postEventer   PostEventer
	postEventerMu sync.RWMutex

	listener   *NotifyListener
	listenerMu sync.RWMutex

	writeTimeout time.Duration
}

// Connection represents a single WebSocket client, already authenticated and
// joined to its own user-{id} room.
//
// subscriptions and joinedJourneys are accessed WITHOUT a lock: all reads and
// writes happen on the single goroutine that owns the connection
// (HandleConnection's read loop and its deferred cleanup).
type Connection struct {
	ID             string
	UserID         string
	Auth           AuthIdentity
	Conn           *websocket.Conn
	subscriptions  map[string]bool // room -> joined
	joinedJourneys map[string]bool // journeyID -> joined, for membership-scoped fan-out checks
	ctx            context.Context
	cancel         context.CancelFunc
}

// NewConnectionManager creates a new ConnectionManager.
func NewConnectionManager(catchupQuerier CatchupQuerier, writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		connections:    make(map[string]*Connection),
		channels:       make(map[string]map[string]bool),
		catchupQuerier: catchupQuerier,
		writeTimeout:   writeTimeout,
	}
}

// SetListener wires the NotifyListener for dynamic LISTEN/UNLISTEN. Called
// once during startup after both are constructed.
func (m *ConnectionManager) SetListener(l *NotifyListener) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listener = l
}

// SetPostEventer wires the optional group-journey:post-event handler (spec
// §6.2). If never set, post-event messages are rejected with a
// post-event.error acknowledgement; clients always have the REST endpoint
// as a fallback.
func (m *ConnectionManager) SetPostEventer(p PostEventer) {
	m.postEventerMu.Lock()
	defer m.postEventerMu.Unlock()
	m.postEventer = p
}

// MembershipChecker verifies a user belongs to the group owning a journey,
// used before honoring a join request (spec §4.3, P8).
type MembershipChecker interface {
	IsMemberOfJourneyGroup(ctx context.Context, userID, journeyID string) (groupID string, ok bool, err error)
}

// HandleConnection manages the lifecycle of a single authenticated WebSocket
// connection. Called by the HTTP handler after upgrade and identity
// verification. Blocks until the connection closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn, auth AuthIdentity, membership MembershipChecker) {
	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)

	c := &Connection{
		ID:             connID,
		UserID:         auth.UserID,
		Auth:           auth,
		Conn:           conn,
		subscriptions:  make(map[string]bool),
		joinedJourneys: make(map[string]bool),
		ctx:            ctx,
		cancel:         cancel,
	}

	m.registerConnection(c)
	defer m.unregisterConnection(c)

	// Every connection auto-joins its own user room (spec §4.3).
	_ = m.subscribe(c, UserChannel(auth.UserID))

	m.sendJSON(c, map[string]string{
		"type":          "connection.established",
		"connection_id": connID,
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("invalid websocket message", "connection_id", connID, "error", err)
			continue
		}

		m.handleClientMessage(ctx, c, &msg, membership)
	}
}

// Broadcast sends an event payload to all connections subscribed to the
// given room.
func (m *ConnectionManager) Broadcast(room string, event []byte) {
	m.channelMu.RLock()
	connIDs, exists := m.channels[room]
	if !exists {
		m.channelMu.RUnlock()
		return
	}
	ids := make([]string, 0, len(connIDs))
	for id := range connIDs {
		ids = append(ids, id)
	}
	m.channelMu.RUnlock()

	// Snapshot connection pointers under the lock, release before sending,
	// so slow writes don't stall register/unregister.
	m.mu.RLock()
	conns := make([]*Connection, 0, len(ids))
	for _, id := range ids {
		if conn, ok := m.connections[id]; ok {
			conns = append(conns, conn)
		}
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		if err := m.sendRaw(conn, event); err != nil {
			slog.Warn("failed to send to websocket client", "connection_id", conn.ID, "error", err)
		}
	}
}

// ActiveConnections returns the count of active WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// subscriberCount returns the number of subscribers for a room. Unexported —
// used by tests to poll instead of sleeping.
func (m *ConnectionManager) subscriberCount(room string) int {
	m.channelMu.RLock()
	defer m.channelMu.RUnlock()
	return len(m.channels[room])
}

func (m *ConnectionManager) handleClientMessage(ctx context.Context, c *Connection, msg *ClientMessage, membership MembershipChecker) {
	switch msg.Action {
	case "group-journey:join":
		if msg.JourneyID == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "journeyId is required"})
			return
		}
		groupID, ok, err := membership.IsMemberOfJourneyGroup(ctx, c.UserID, msg.JourneyID)
		if err != nil || !ok {
			m.sendJSON(c, map[string]string{
				"type":      "subscription.error",
				"journeyId": msg.JourneyID,
				"message":   "not a member of this journey's group",
			})
			return
		}

		if err := m.subscribe(c, GroupChannel(groupID)); err != nil {
			m.sendJSON(c, map[string]string{"type": "subscription.error", "journeyId": msg.JourneyID})
			return
		}
		journeyRoom := JourneyChannel(msg.JourneyID)
		if err := m.subscribe(c, journeyRoom); err != nil {
			m.sendJSON(c, map[string]string{"type": "subscription.error", "journeyId": msg.JourneyID})
			return
		}
		c.joinedJourneys[msg.JourneyID] = true

		m.sendJSON(c, map[string]string{
			"type":      "subscription.confirmed",
			"journeyId": msg.JourneyID,
		})
		m.handleCatchup(ctx, c, journeyRoom, 0)

	case "group-journey:leave":
		if msg.JourneyID == "" {
			return
		}
		m.unsubscribe(c, JourneyChannel(msg.JourneyID))
		delete(c.joinedJourneys, msg.JourneyID)

	case "group-journey:post-event":
		m.handlePostEvent(ctx, c, msg)

	case "ping":
		m.sendJSON(c, map[string]string{"type": "pong"})
	}
}

// subscribe registers a connection for a room and starts LISTEN if it is the
// first subscriber. LISTEN runs synchronously so it completes before
// subscribe returns, closing the gap where events published between
// catchup and LISTEN would be lost.
func (m *ConnectionManager) subscribe(c *Connection, room string) error {
	m.channelMu.Lock()
	needsListen := false
	if _, exists := m.channels[room]; !exists {
		m.channels[room] = make(map[string]bool)
		needsListen = true
	}
	m.channels[room][c.ID] = true
	m.channelMu.Unlock()

	if needsListen {
		m.listenerMu.RLock()
		l := m.listener
		m.listenerMu.RUnlock()
		if l != nil {
			listenCtx, listenCancel := context.WithTimeout(context.Background(), listenTimeout)
			defer listenCancel()
			if err := l.Subscribe(listenCtx, room); err != nil {
				slog.Error("failed to LISTEN on channel", "channel", room, "error", err)
				m.cleanupFailedChannel(c, room)
				return fmt.Errorf("LISTEN on channel %s: %w", room, err)
			}
		}
	}

	c.subscriptions[room] = true
	return nil
}

// cleanupFailedChannel removes all subscribers from a room after a LISTEN
// failure and notifies every affected connection except the trigger, which
// is notified by the caller's returned error.
func (m *ConnectionManager) cleanupFailedChannel(triggering *Connection, room string) {
	m.channelMu.Lock()
	affectedIDs := make([]string, 0, len(m.channels[room]))
	for connID := range m.channels[room] {
		if connID != triggering.ID {
			affectedIDs = append(affectedIDs, connID)
		}
	}
	delete(m.channels, room)
	m.channelMu.Unlock()

	if len(affectedIDs) == 0 {
		return
	}

	m.mu.RLock()
	conns := make([]*Connection, 0, len(affectedIDs))
	for _, id := range affectedIDs {
		if conn, ok := m.connections[id]; ok {
			conns = append(conns, conn)
		}
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		slog.Warn("removing orphaned subscriber after LISTEN failure", "connection_id", conn.ID, "channel", room)
		m.sendJSON(conn, map[string]string{
			"type":    "subscription.error",
			"channel": room,
			"message": "channel listen failed; subscription removed",
		})
	}
}

// unsubscribe removes a connection from a room and stops LISTEN if it was
// the last subscriber.
func (m *ConnectionManager) unsubscribe(c *Connection, room string) {
	m.channelMu.Lock()
	if subs, exists := m.channels[room]; exists {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(m.channels, room)
			m.listenerMu.RLock()
			l := m.listener
			m.listenerMu.RUnlock()
			if l != nil {
				go func() {
					m.channelMu.RLock()
					_, resubscribed := m.channels[room]
					m.channelMu.RUnlock()
					if resubscribed {
						return
					}
					if err := l.Unsubscribe(context.Background(), room); err != nil {
						slog.Error("failed to UNLISTEN channel", "channel", room, "error", err)
					}
				}()
			}
		}
	}
	m.channelMu.Unlock()

	delete(c.subscriptions, room)
}

// handlePostEvent handles an optional group-journey:post-event message, the
// socket alternative to POST /group-journey/{id}/events (spec §6.2).
// Persistence and broadcast happen inside the wired PostEventer; this method
// only translates the client frame and reports the outcome back to the
// sender, since everyone else learns about the new event from the ordinary
// group-journey:event broadcast.
func (m *ConnectionManager) handlePostEvent(ctx context.Context, c *Connection, msg *ClientMessage) {
	if msg.JourneyID == "" || msg.Type == "" {
		m.sendJSON(c, map[string]string{"type": "error", "message": "journeyId and type are required"})
		return
	}

	m.postEventerMu.RLock()
	poster := m.postEventer
	m.postEventerMu.RUnlock()
	if poster == nil {
		m.sendJSON(c, map[string]string{
			"type":      "post-event.error",
			"journeyId": msg.JourneyID,
			"message":   "post-event is not available over this connection; use the REST endpoint",
		})
		return
	}

	in := PostEventInput{Type: msg.Type, Latitude: msg.Latitude, Longitude: msg.Longitude}
	if msg.Message != "" {
		in.Message = &msg.Message
	}
	if msg.MediaRef != "" {
		in.MediaRef = &msg.MediaRef
	}
	if msg.Data != nil {
		in.Data = msg.Data
	}

	if err := poster.PostEvent(ctx, c.Auth, msg.JourneyID, in); err != nil {
		m.sendJSON(c, map[string]string{
			"type":      "post-event.error",
			"journeyId": msg.JourneyID,
			"message":   "failed to post event",
		})
		return
	}
	m.sendJSON(c, map[string]string{"type": "post-event.accepted", "journeyId": msg.JourneyID})
}

// handleCatchup sends ride events missed since sinceSeq to the client.
func (m *ConnectionManager) handleCatchup(ctx context.Context, c *Connection, room string, sinceSeq int64) {
	if m.catchupQuerier == nil {
		return
	}

	events, err := m.catchupQuerier.GetCatchupEvents(ctx, room, sinceSeq, catchupLimit+1)
	if err != nil {
		slog.Error("catchup query failed", "room", room, "error", err)
		return
	}

	hasMore := len(events) > catchupLimit
	if hasMore {
		events = events[:catchupLimit]
	}

	for _, evt := range events {
		payload, err := json.Marshal(evt.Payload)
		if err != nil {
			continue
		}
		if err := m.sendRaw(c, payload); err != nil {
			slog.Warn("failed to send catchup event", "connection_id", c.ID, "error", err)
			return
		}
	}

	if hasMore {
		m.sendJSON(c, map[string]interface{}{
			"type":     "catchup.overflow",
			"room":     room,
			"has_more": true,
		})
	}
}

func (m *ConnectionManager) registerConnection(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = c
}

func (m *ConnectionManager) unregisterConnection(c *Connection) {
	for room := range c.subscriptions {
		m.unsubscribe(c, room)
	}

	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()

	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}

func (m *ConnectionManager) sendJSON(c *Connection, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("failed to marshal websocket message", "connection_id", c.ID, "error", err)
		return
	}
	if err := m.sendRaw(c, data); err != nil {
		slog.Warn("failed to send websocket message", "connection_id", c.ID, "error", err)
	}
}

func (m *ConnectionManager) sendRaw(c *Connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}
