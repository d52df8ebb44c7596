package client

import (
	"context"
	"log"
	"sync"

	"github.com/campushub/chatcore/internal/types"
)

// Session is one user's live connection plus the per-room message stores
// behind it. It routes the transport's inbound events to the right store:
// broadcasts by room, confirms by room, failures to every store (correlation
// ids are unique across a session, so non-matching stores ignore them; the
// failure event itself does not name a room).
type Session struct {
	transport *Transport
	log       *log.Logger

	mu    sync.Mutex
	rooms map[string]*Store
}

func NewSession(url, credential string, logger *log.Logger) *Session {
	s := &Session{
		log:   logger,
		rooms: make(map[string]*Store),
	}

	s.transport = NewTransport(url, credential, Handler{
		OnMessage:    s.routeBroadcast,
		OnConfirmed:  s.routeConfirm,
		OnSaveFailed: s.routeFailure,
		OnResponse: func(id, code int, errMsg string) {
			if errMsg != "" {
				logger.Printf("request %d failed (%d): %s", id, code, errMsg)
			}
		},
		OnConnectionState: func(connected bool) {
			logger.Println("connected:", connected)
		},
	}, logger)

	return s
}

func (s *Session) Connect(ctx context.Context) error {
	return s.transport.Dial(ctx)
}

func (s *Session) Close() {
	s.transport.Close()
}

// OpenRoom joins a room and returns its store. Reopening an already open
// room returns the existing store.
func (s *Session) OpenRoom(roomId string) *Store {
	s.mu.Lock()
	store, ok := s.rooms[roomId]
	if !ok {
		store = NewStore(roomId, s.transport)
		s.rooms[roomId] = store
	}
	s.mu.Unlock()

	s.transport.JoinRoom(roomId)
	return store
}

// CloseRoom leaves the room and discards its store.
func (s *Session) CloseRoom(roomId string) {
	s.mu.Lock()
	delete(s.rooms, roomId)
	s.mu.Unlock()

	s.transport.LeaveRoom(roomId)
}

func (s *Session) store(roomId string) (*Store, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	store, ok := s.rooms[roomId]
	return store, ok
}

func (s *Session) routeBroadcast(msg types.Message) {
	if store, ok := s.store(msg.RoomId); ok {
		store.OnBroadcast(msg)
	}
}

func (s *Session) routeConfirm(correlationId string, msg types.Message) {
	if store, ok := s.store(msg.RoomId); ok {
		store.OnConfirmed(correlationId, msg)
		return
	}

	s.log.Println("confirm for unknown room", msg.RoomId)
}

func (s *Session) routeFailure(correlationId, reason string) {
	s.mu.Lock()
	stores := make([]*Store, 0, len(s.rooms))
	for _, store := range s.rooms {
		stores = append(stores, store)
	}
	s.mu.Unlock()

	for _, store := range stores {
		store.OnFailed(correlationId, reason)
	}
}
