// Package remote implements store.Store against a docserver over a websocket.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/holdemtable/internal/auth"
	"github.com/lox/holdemtable/internal/docserver"
	"github.com/lox/holdemtable/internal/store"
)

// ErrClosed is returned for requests on a closed client.
var ErrClosed = errors.New("remote: connection closed")

const (
	writeWait      = 10 * time.Second
	helloTimeout   = 5 * time.Second
	maxMessageSize = 1 << 20
)

type remoteSub struct {
	serial       *store.Serial
	onDoc        func(store.Snapshot)
	onCollection func(map[string]store.Document)
	onError      func(error)
}

// Client is a store.Store backed by a remote docserver.
type Client struct {
	conn     *websocket.Conn
	identity *auth.Identity
	logger   *log.Logger

	send chan *docserver.Message
	done chan struct{}

	mu      sync.Mutex
	pending map[string]chan *docserver.Message
	subs    map[string]*remoteSub
	err     error

	nextID    atomic.Uint64
	closeOnce sync.Once
}

var _ store.Store = (*Client)(nil)

// Dial connects to a docserver websocket URL ("ws://host:port/ws") and waits
// for the server's greeting.
func Dial(ctx context.Context, url, token string, logger *log.Logger) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dial %s: %w", url, auth.ErrInvalidToken)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(maxMessageSize)

	_ = conn.SetReadDeadline(time.Now().Add(helloTimeout))
	var hello docserver.Message
	if err := conn.ReadJSON(&hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read hello: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if hello.Type != docserver.MessageTypeHello {
		_ = conn.Close()
		return nil, fmt.Errorf("expected hello, got %s", hello.Type)
	}
	var data docserver.HelloData
	if err := json.Unmarshal(hello.Data, &data); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("decode hello: %w", err)
	}

	c := &Client{
		conn:    conn,
		logger:  logger.WithPrefix("remote"),
		send:    make(chan *docserver.Message, 64),
		done:    make(chan struct{}),
		pending: make(map[string]chan *docserver.Message),
		subs:    make(map[string]*remoteSub),
	}
	if data.UID != "" {
		c.identity = &auth.Identity{UID: data.UID, Name: data.Name}
		c.logger = c.logger.With("uid", data.UID)
	}

	go c.writePump()
	go c.readPump()
	return c, nil
}

// Identity returns the identity the server authenticated, or nil.
func (c *Client) Identity() *auth.Identity {
	return c.identity
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close ends the connection. Pending requests fail with ErrClosed and every
// subscription's onError is called.
func (c *Client) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

func (c *Client) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = cause
		subs := c.subs
		c.subs = make(map[string]*remoteSub)
		c.mu.Unlock()

		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = c.conn.Close()

		for _, sub := range subs {
			if sub.onError != nil {
				onError := sub.onError
				sub.serial.Push(func() { onError(cause) })
			}
			// Let the queued error run before the queue is dropped.
			serial := sub.serial
			serial.Push(serial.Stop)
		}
	})
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrClosed
}

func (c *Client) writePump() {
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				c.shutdown(fmt.Errorf("%w: %v", ErrClosed, err))
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) readPump() {
	for {
		var msg docserver.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Debug("Connection lost", "error", err)
			}
			c.shutdown(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}

		switch msg.Type {
		case docserver.MessageTypeResult, docserver.MessageTypeError:
			c.mu.Lock()
			ch := c.pending[msg.RequestID]
			delete(c.pending, msg.RequestID)
			c.mu.Unlock()
			if ch != nil {
				ch <- &msg
			}
		case docserver.MessageTypeSnapshot:
			var data docserver.SnapshotData
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				c.logger.Warn("Bad snapshot frame", "error", err)
				continue
			}
			if sub := c.sub(data.SubID); sub != nil && sub.onDoc != nil {
				snap := data.Snapshot
				sub.serial.Push(func() { sub.onDoc(snap) })
			}
		case docserver.MessageTypeCollection:
			var data docserver.CollectionData
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				c.logger.Warn("Bad collection frame", "error", err)
				continue
			}
			if sub := c.sub(data.SubID); sub != nil && sub.onCollection != nil {
				docs := data.Docs
				if docs == nil {
					docs = map[string]store.Document{}
				}
				sub.serial.Push(func() { sub.onCollection(docs) })
			}
		default:
			c.logger.Debug("Ignoring message", "type", msg.Type)
		}
	}
}

func (c *Client) sub(id string) *remoteSub {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[id]
}

// request sends a frame and waits for its reply.
func (c *Client) request(ctx context.Context, t docserver.MessageType, data any) (docserver.ResultData, error) {
	msg, err := docserver.NewMessage(t, data)
	if err != nil {
		return docserver.ResultData{}, err
	}
	msg.RequestID = strconv.FormatUint(c.nextID.Add(1), 10)
	reply := make(chan *docserver.Message, 1)

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return docserver.ResultData{}, c.err
	}
	c.pending[msg.RequestID] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.RequestID)
		c.mu.Unlock()
	}()

	select {
	case c.send <- msg:
	case <-ctx.Done():
		return docserver.ResultData{}, ctx.Err()
	case <-c.done:
		return docserver.ResultData{}, c.closedErr()
	}

	select {
	case resp := <-reply:
		if resp.Type == docserver.MessageTypeError {
			var e docserver.ErrorData
			_ = json.Unmarshal(resp.Data, &e)
			return docserver.ResultData{}, decodeError(e)
		}
		var result docserver.ResultData
		if len(resp.Data) > 0 {
			if err := json.Unmarshal(resp.Data, &result); err != nil {
				return docserver.ResultData{}, fmt.Errorf("decode %s result: %w", t, err)
			}
		}
		return result, nil
	case <-ctx.Done():
		return docserver.ResultData{}, ctx.Err()
	case <-c.done:
		return docserver.ResultData{}, c.closedErr()
	}
}

func decodeError(e docserver.ErrorData) error {
	switch e.Code {
	case docserver.CodeNotFound:
		return fmt.Errorf("%s: %w", e.Message, store.ErrNotFound)
	case docserver.CodePreconditionFailed:
		return fmt.Errorf("%s: %w", e.Message, store.ErrPreconditionFailed)
	default:
		return fmt.Errorf("remote %s: %s", e.Code, e.Message)
	}
}

func (c *Client) Read(ctx context.Context, path, id string) (store.Document, error) {
	result, err := c.request(ctx, docserver.MessageTypeRead, docserver.ReadData{Path: path, ID: id})
	if err != nil {
		return nil, err
	}
	if result.Doc == nil {
		return store.Document{}, nil
	}
	return result.Doc, nil
}

func (c *Client) Query(ctx context.Context, path string) (map[string]store.Document, error) {
	result, err := c.request(ctx, docserver.MessageTypeQuery, docserver.QueryData{Path: path})
	if err != nil {
		return nil, err
	}
	if result.Docs == nil {
		return map[string]store.Document{}, nil
	}
	return result.Docs, nil
}

func (c *Client) Commit(ctx context.Context, ops []store.Op) error {
	_, err := c.request(ctx, docserver.MessageTypeCommit, docserver.CommitData{Ops: ops})
	return err
}

func (c *Client) Write(ctx context.Context, path, id string, fields store.Document) error {
	return c.Commit(ctx, []store.Op{{Kind: store.OpWrite, Path: path, ID: id, Fields: fields}})
}

func (c *Client) WriteIf(ctx context.Context, path, id string, cond store.Precondition, fields store.Document) error {
	return c.Commit(ctx, []store.Op{{Kind: store.OpWrite, Path: path, ID: id, Fields: fields, Cond: &cond}})
}

func (c *Client) Replace(ctx context.Context, path, id string, doc store.Document) error {
	return c.Commit(ctx, []store.Op{{Kind: store.OpReplace, Path: path, ID: id, Fields: doc}})
}

func (c *Client) Delete(ctx context.Context, path, id string) error {
	return c.Commit(ctx, []store.Op{{Kind: store.OpDelete, Path: path, ID: id}})
}

func (c *Client) Batch() *store.Batch {
	return store.NewBatch(c)
}

func (c *Client) Subscribe(ctx context.Context, path, id string, onChange func(store.Snapshot), onError func(error)) (store.Unsubscribe, error) {
	sub := &remoteSub{serial: store.NewSerial(), onDoc: onChange, onError: onError}
	return c.subscribe(ctx, docserver.MessageTypeSubscribe, docserver.SubscribeData{Path: path, ID: id}, sub)
}

func (c *Client) SubscribeCollection(ctx context.Context, path string, onChange func(map[string]store.Document), onError func(error)) (store.Unsubscribe, error) {
	sub := &remoteSub{serial: store.NewSerial(), onCollection: onChange, onError: onError}
	return c.subscribe(ctx, docserver.MessageTypeSubscribeCollection, docserver.SubscribeData{Path: path}, sub)
}

func (c *Client) subscribe(ctx context.Context, t docserver.MessageType, data docserver.SubscribeData, sub *remoteSub) (store.Unsubscribe, error) {
	data.SubID = "s" + strconv.FormatUint(c.nextID.Add(1), 10)

	// Register before asking so the initial snapshot is not dropped.
	c.mu.Lock()
	c.subs[data.SubID] = sub
	c.mu.Unlock()

	if _, err := c.request(ctx, t, data); err != nil {
		c.mu.Lock()
		delete(c.subs, data.SubID)
		c.mu.Unlock()
		sub.serial.Stop()
		return nil, err
	}

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			c.mu.Lock()
			_, live := c.subs[data.SubID]
			delete(c.subs, data.SubID)
			c.mu.Unlock()
			sub.serial.Stop()
			if !live {
				return
			}
			msg, err := docserver.NewMessage(docserver.MessageTypeUnsubscribe, docserver.UnsubscribeData{SubID: data.SubID})
			if err != nil {
				return
			}
			select {
			case c.send <- msg:
			case <-c.done:
			}
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			unsub()
		case <-sub.serial.Done():
		}
	}()
	return unsub, nil
}
