package docserver

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/holdemtable/internal/auth"
	"github.com/lox/holdemtable/internal/store"
)

// Connection serves one client: it answers reads and commits against the
// shared store and forwards subscription notifications.
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	identity  *auth.Identity
	store     store.Store
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	subs      map[string]store.Unsubscribe
	closeOnce sync.Once
}

// NewConnection wraps an upgraded websocket.
func NewConnection(conn *websocket.Conn, identity *auth.Identity, s store.Store, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	l := logger.WithPrefix("conn")
	if identity != nil {
		l = l.With("uid", identity.UID)
	}
	return &Connection{
		conn:     conn,
		send:     make(chan *Message, 256),
		identity: identity,
		store:    s,
		logger:   l,
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[string]store.Unsubscribe),
	}
}

// Start greets the client and begins the read and write pumps.
func (c *Connection) Start() {
	hello := HelloData{}
	if c.identity != nil {
		hello = HelloData{UID: c.identity.UID, Name: c.identity.Name}
	}
	if msg, err := NewMessage(MessageTypeHello, hello); err == nil {
		_ = c.SendMessage(msg)
	}
	go c.writePump()
	go c.readPump()
}

// Done is closed when the connection ends.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close tears down the connection and its subscriptions.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		c.mu.Lock()
		subs := c.subs
		c.subs = make(map[string]store.Unsubscribe)
		c.mu.Unlock()
		for _, unsub := range subs {
			unsub()
		}
		err = c.conn.Close()
	})
	return err
}

// ErrConnectionClosed is returned when sending on a closed connection.
var ErrConnectionClosed = errors.New("docserver: connection closed")

// SendMessage queues msg. A client that cannot keep up is disconnected.
func (c *Connection) SendMessage(msg *Message) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		_ = c.Close()
		return ErrConnectionClosed
	}
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		c.handleMessage(&msg)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type, "request", msg.RequestID)

	switch msg.Type {
	case MessageTypeRead:
		var data ReadData
		if !c.decode(msg, &data) {
			return
		}
		doc, err := c.store.Read(c.ctx, data.Path, data.ID)
		c.reply(msg, ResultData{Doc: doc}, err)

	case MessageTypeQuery:
		var data QueryData
		if !c.decode(msg, &data) {
			return
		}
		docs, err := c.store.Query(c.ctx, data.Path)
		c.reply(msg, ResultData{Docs: docs}, err)

	case MessageTypeCommit:
		var data CommitData
		if !c.decode(msg, &data) {
			return
		}
		err := c.store.Commit(c.ctx, data.Ops)
		if err != nil && !errors.Is(err, store.ErrPreconditionFailed) {
			c.logger.Warn("Commit failed", "ops", len(data.Ops), "error", err)
		}
		c.reply(msg, ResultData{}, err)

	case MessageTypeSubscribe, MessageTypeSubscribeCollection:
		var data SubscribeData
		if !c.decode(msg, &data) {
			return
		}
		c.handleSubscribe(msg, data)

	case MessageTypeUnsubscribe:
		var data UnsubscribeData
		if !c.decode(msg, &data) {
			return
		}
		c.mu.Lock()
		unsub := c.subs[data.SubID]
		delete(c.subs, data.SubID)
		c.mu.Unlock()
		if unsub != nil {
			unsub()
		}
		c.reply(msg, ResultData{}, nil)

	default:
		c.sendError(msg.RequestID, CodeInvalidMessage, "Unknown message type: "+msg.Type.String())
	}
}

func (c *Connection) handleSubscribe(msg *Message, data SubscribeData) {
	if data.SubID == "" {
		c.sendError(msg.RequestID, CodeInvalidMessage, "subscription id required")
		return
	}

	var (
		unsub store.Unsubscribe
		err   error
	)
	if msg.Type == MessageTypeSubscribe {
		unsub, err = c.store.Subscribe(c.ctx, data.Path, data.ID, func(snap store.Snapshot) {
			c.push(MessageTypeSnapshot, SnapshotData{SubID: data.SubID, Snapshot: snap})
		}, nil)
	} else {
		unsub, err = c.store.SubscribeCollection(c.ctx, data.Path, func(docs map[string]store.Document) {
			c.push(MessageTypeCollection, CollectionData{SubID: data.SubID, Docs: docs})
		}, nil)
	}
	if err != nil {
		c.reply(msg, ResultData{}, err)
		return
	}

	c.mu.Lock()
	if old := c.subs[data.SubID]; old != nil {
		old()
	}
	c.subs[data.SubID] = unsub
	c.mu.Unlock()
	c.reply(msg, ResultData{}, nil)
}

func (c *Connection) push(t MessageType, data any) {
	msg, err := NewMessage(t, data)
	if err != nil {
		c.logger.Error("Failed to encode notification", "type", t, "error", err)
		return
	}
	_ = c.SendMessage(msg)
}

func (c *Connection) decode(msg *Message, v any) bool {
	if err := json.Unmarshal(msg.Data, v); err != nil {
		c.sendError(msg.RequestID, CodeInvalidMessage, "Failed to parse "+msg.Type.String()+" data")
		return false
	}
	return true
}

func (c *Connection) reply(req *Message, data ResultData, err error) {
	if err != nil {
		c.sendError(req.RequestID, ErrorCode(err), err.Error())
		return
	}
	msg, encErr := NewMessage(MessageTypeResult, data)
	if encErr != nil {
		c.sendError(req.RequestID, CodeInternal, encErr.Error())
		return
	}
	msg.RequestID = req.RequestID
	_ = c.SendMessage(msg)
}

func (c *Connection) sendError(requestID, code, message string) {
	msg, err := NewMessage(MessageTypeError, ErrorData{Code: code, Message: message})
	if err != nil {
		c.logger.Error("Failed to create error message", "error", err)
		return
	}
	msg.RequestID = requestID
	_ = c.SendMessage(msg)
}
