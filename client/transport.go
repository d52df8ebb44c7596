package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/campushub/chatcore/internal/types"
	"github.com/gorilla/websocket"
)

const (
	tokenCookieKey = "token"

	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10

	reconnectBase = 500 * time.Millisecond
	reconnectMax  = 8 * time.Second
	maxReconnects = 5
)

// Envelope is the outbound payload for one message send.
type Envelope struct {
	RoomId        string
	Body          string
	Attachments   []types.Attachment
	Kind          types.MessageKind
	CorrelationId string
}

// Handler receives the transport's inbound events. Confirm and SaveFailed
// are sender-only; Message is the room's fan-out stream. Nil callbacks are
// skipped.
type Handler struct {
	OnMessage         func(msg types.Message)
	OnConfirmed       func(correlationId string, msg types.Message)
	OnSaveFailed      func(correlationId, reason string)
	OnResponse        func(id, code int, errMsg string)
	OnConnectionState func(connected bool)
}

type clientMessage struct {
	Id      int          `json:"id,omitempty"`
	Publish *publishBody `json:"publish,omitempty"`
	Join    *joinBody    `json:"join,omitempty"`
	Leave   *leaveBody   `json:"leave,omitempty"`
}

type publishBody struct {
	RoomId        string             `json:"room_id"`
	Body          string             `json:"body,omitempty"`
	Attachments   []types.Attachment `json:"attachments,omitempty"`
	Kind          types.MessageKind  `json:"kind"`
	CorrelationId string             `json:"correlation_id"`
}

type joinBody struct {
	RoomId string `json:"room_id"`
}

type leaveBody struct {
	RoomId string `json:"room_id"`
}

type serverMessage struct {
	Id         int            `json:"id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Response   *responseBody  `json:"response,omitempty"`
	Message    *types.Message `json:"message,omitempty"`
	Confirm    *confirmBody   `json:"confirm,omitempty"`
	SaveFailed *failedBody    `json:"save_failed,omitempty"`
}

type responseBody struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
}

type confirmBody struct {
	CorrelationId string        `json:"correlation_id"`
	Message       types.Message `json:"message"`
}

type failedBody struct {
	CorrelationId string `json:"correlation_id"`
	Reason        string `json:"reason"`
}

// Transport is one authenticated websocket connection to the chat server. It
// is owned explicitly by its creator and injected wherever sending is
// needed; its lifetime is bound to the authenticated session. The connection
// recovers transparently with bounded exponential backoff, re-declaring room
// interest on reconnect. Outbound envelopes are fire-and-forget: frames
// queued while disconnected may be dropped, and the store's pending entries
// are only ever resent by an explicit user retry.
type Transport struct {
	url        string
	credential string
	handler    Handler
	log        *log.Logger
	dialer     *websocket.Dialer

	mu     sync.Mutex
	rooms  map[string]struct{}
	nextId int

	send      chan *clientMessage
	done      chan struct{}
	closeOnce sync.Once
}

func NewTransport(url, credential string, handler Handler, logger *log.Logger) *Transport {
	return &Transport{
		url:        url,
		credential: credential,
		handler:    handler,
		log:        logger,
		dialer:     websocket.DefaultDialer,
		rooms:      make(map[string]struct{}),
		send:       make(chan *clientMessage, 256),
		done:       make(chan struct{}),
	}
}

// Dial establishes the connection, authenticating once at handshake. An
// invalid credential fails the whole connection, not an individual
// operation.
func (t *Transport) Dial(ctx context.Context) error {
	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}

	t.startPumps(conn)
	t.notifyConnState(true)
	return nil
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	hdr := http.Header{}
	hdr.Set("Cookie", tokenCookieKey+"="+t.credential)

	conn, resp, err := t.dialer.DialContext(ctx, t.url, hdr)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake rejected (%d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", t.url, err)
	}

	return conn, nil
}

// JoinRoom declares interest in a room's broadcast stream. Idempotent; the
// declaration is replayed automatically after a reconnect.
func (t *Transport) JoinRoom(roomId string) {
	t.mu.Lock()
	t.rooms[roomId] = struct{}{}
	id := t.requestId()
	t.mu.Unlock()

	t.enqueue(&clientMessage{Id: id, Join: &joinBody{RoomId: roomId}})
}

// LeaveRoom revokes interest in a room. Idempotent.
func (t *Transport) LeaveRoom(roomId string) {
	t.mu.Lock()
	delete(t.rooms, roomId)
	id := t.requestId()
	t.mu.Unlock()

	t.enqueue(&clientMessage{Id: id, Leave: &leaveBody{RoomId: roomId}})
}

// Send dispatches an outbound message envelope. Fire-and-forget: the result
// arrives asynchronously through the handler callbacks.
func (t *Transport) Send(env Envelope) {
	t.enqueue(&clientMessage{
		Publish: &publishBody{
			RoomId:        env.RoomId,
			Body:          env.Body,
			Attachments:   env.Attachments,
			Kind:          env.Kind,
			CorrelationId: env.CorrelationId,
		},
	})
}

func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		close(t.done)
	})
}

// requestId must be called with t.mu held.
func (t *Transport) requestId() int {
	t.nextId++
	return t.nextId
}

func (t *Transport) enqueue(msg *clientMessage) {
	select {
	case t.send <- msg:
	default:
		t.log.Println("send queue full, dropping frame")
	}
}

func (t *Transport) startPumps(conn *websocket.Conn) {
	stop := make(chan struct{})
	go t.writePump(conn, stop)
	go t.readPump(conn, stop)
}

func (t *Transport) writePump(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-t.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				t.log.Println("write:", err)
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		case <-stop:
			return
		case <-t.done:
			conn.Close()
			return
		}
	}
}

func (t *Transport) readPump(conn *websocket.Conn, stop chan struct{}) {
	defer close(stop)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				t.log.Printf("ws: read: %v", err)
			}
			break
		}

		t.dispatch(raw)
	}

	conn.Close()

	select {
	case <-t.done:
		return
	default:
	}

	t.notifyConnState(false)
	go t.reconnect()
}

// reconnect retries the handshake with exponential backoff up to
// maxReconnects attempts, then gives up. On success it re-declares interest
// in every open room; it never resends message envelopes, whose fate is
// unknown.
func (t *Transport) reconnect() {
	backoff := reconnectBase
	for attempt := 1; attempt <= maxReconnects; attempt++ {
		select {
		case <-t.done:
			return
		case <-time.After(backoff):
		}

		conn, err := t.dial(context.Background())
		if err != nil {
			t.log.Printf("reconnect attempt %d: %v", attempt, err)
			backoff *= 2
			if backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}

		t.startPumps(conn)
		t.rejoinRooms()
		t.notifyConnState(true)
		return
	}

	t.log.Printf("giving up after %d reconnect attempts", maxReconnects)
}

func (t *Transport) rejoinRooms() {
	t.mu.Lock()
	rooms := make([]string, 0, len(t.rooms))
	for roomId := range t.rooms {
		rooms = append(rooms, roomId)
	}
	ids := make([]int, len(rooms))
	for i := range rooms {
		ids[i] = t.requestId()
	}
	t.mu.Unlock()

	for i, roomId := range rooms {
		t.enqueue(&clientMessage{Id: ids[i], Join: &joinBody{RoomId: roomId}})
	}
}

func (t *Transport) dispatch(raw []byte) {
	var msg serverMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.log.Println("error parsing message:", err)
		return
	}

	switch {
	case msg.Confirm != nil:
		if t.handler.OnConfirmed != nil {
			t.handler.OnConfirmed(msg.Confirm.CorrelationId, msg.Confirm.Message)
		}
	case msg.SaveFailed != nil:
		if t.handler.OnSaveFailed != nil {
			t.handler.OnSaveFailed(msg.SaveFailed.CorrelationId, msg.SaveFailed.Reason)
		}
	case msg.Message != nil:
		if t.handler.OnMessage != nil {
			t.handler.OnMessage(*msg.Message)
		}
	case msg.Response != nil:
		if t.handler.OnResponse != nil {
			t.handler.OnResponse(msg.Id, msg.Response.ResponseCode, msg.Response.Error)
		}
	}
}

func (t *Transport) notifyConnState(connected bool) {
	if t.handler.OnConnectionState != nil {
		t.handler.OnConnectionState(connected)
	}
}
