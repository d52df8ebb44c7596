package server

import (
	"context"
	"log"
	"sync"

	"github.com/campushub/chatcore/internal/database"
	"github.com/campushub/chatcore/internal/stats"
)

type stopRequest struct {
	done chan struct{}
}

type unloadRoomRequest struct {
	roomId  string
	deleted bool
	done    chan string
}

// ChatServer owns the set of live connections and the set of loaded rooms.
// Each loaded room runs its own goroutine, which is the serialization point
// for that room's persist and fan-out; rooms make progress independently of
// one another.
type ChatServer struct {
	log            *log.Logger
	db             database.ChatRepository
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	joinChan       chan *ClientMessage
	registerChan   chan *Client
	deRegisterChan chan *Client
	unloadRoomChan chan unloadRoomRequest
	rooms          map[string]*Room
	stop           chan stopRequest
}

func NewChatServer(logger *log.Logger, db database.ChatRepository, sp stats.StatsProvider) (*ChatServer, error) {
	cs := &ChatServer{
		log:            logger,
		db:             db,
		stats:          sp,
		joinChan:       make(chan *ClientMessage, 256),
		clients:        make(map[*Client]struct{}),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		unloadRoomChan: make(chan unloadRoomRequest, 256),
		stop:           make(chan stopRequest),
		rooms:          make(map[string]*Room),
	}

	sp.RegisterMetric("NumClients")
	sp.RegisterMetric("NumActiveRooms")
	sp.RegisterMetric("MessagesPersisted")
	sp.RegisterMetric("MessagesFailed")

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case joinMsg := <-cs.joinChan:
			cs.handleJoinRequest(joinMsg)
		case client := <-cs.registerChan:
			cs.log.Printf("adding connection from %q", client.user.Username)
			cs.addClient(client)
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection from %q", client.user.Username)
			cs.removeClient(client)
		case req := <-cs.unloadRoomChan:
			r, ok := cs.rooms[req.roomId]
			if ok {
				delete(cs.rooms, r.externalId)
				done := make(chan string)
				r.exit <- exitReq{deleted: req.deleted, done: done}
				<-done
			}
			if req.done != nil {
				req.done <- req.roomId
			}
		case req := <-cs.stop:
			cs.log.Println("shutting down rooms")
			for _, r := range cs.rooms {
				done := make(chan string)
				r.exit <- exitReq{done: done}
				<-done
			}
			cs.rooms = make(map[string]*Room)

			close(req.done)
			return
		}
	}
}

// handleJoinRequest routes a join to the loaded room, loading it from the
// database first if necessary.
func (cs *ChatServer) handleJoinRequest(joinMsg *ClientMessage) {
	if room, ok := cs.rooms[joinMsg.Join.RoomId]; ok {
		select {
		case room.joinChan <- joinMsg:
		default:
			cs.log.Printf("join channel full on room %q", room.externalId)
			joinMsg.client.queueMessage(ErrServiceUnavailable(joinMsg.Id))
		}
		return
	}

	room, err := cs.loadRoom(joinMsg.Join.RoomId)
	if err != nil {
		cs.log.Printf("load room %q: %v", joinMsg.Join.RoomId, err)
		joinMsg.client.queueMessage(ErrRoomNotFound(joinMsg.Id))
		return
	}

	cs.rooms[room.externalId] = room
	room.joinChan <- joinMsg

	go room.start()
}

func (cs *ChatServer) loadRoom(externalId string) (*Room, error) {
	dbRoom, err := cs.db.GetRoomByExternalId(externalId)
	if err != nil {
		return nil, err
	}

	members, err := cs.db.GetMembersByRoomId(dbRoom.Id)
	if err != nil {
		return nil, err
	}

	room := newRoom(cs, dbRoom, members)
	return room, nil
}

// RegisterClient hands a freshly upgraded connection to the server loop.
func (cs *ChatServer) RegisterClient(c *Client) {
	cs.registerChan <- c
}

// UnloadRoom removes a room from the server, notifying its clients when the
// room was deleted.
func (cs *ChatServer) UnloadRoom(ctx context.Context, roomId string, deleted bool) error {
	done := make(chan string, 1)
	select {
	case cs.unloadRoomChan <- unloadRoomRequest{roomId: roomId, deleted: deleted, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
	cs.stats.Incr("NumClients")
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	if _, ok := cs.clients[c]; ok {
		delete(cs.clients, c)
		cs.stats.Decr("NumClients")
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	cs.clientsLock.Lock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.Unlock()

	done := make(chan struct{})
	select {
	case cs.stop <- stopRequest{done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
