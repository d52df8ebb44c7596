package server

import (
	"log"
	"sync"
	"time"

	"github.com/campushub/chatcore/internal/database"
	"github.com/campushub/chatcore/internal/types"
)

const idleRoomTimeout = time.Second * 30

type exitReq struct {
	deleted bool
	done    chan string
}

// Room is the per-room serialization point. All persist and fan-out work for
// a room happens on its goroutine, so the order messages are persisted in is
// the order every participant observes. Rooms never block each other.
type Room struct {
	id            int
	externalId    string
	name          string
	cs            *ChatServer
	joinChan      chan *ClientMessage
	leaveChan     chan *ClientMessage
	clientMsgChan chan *ClientMessage
	seqId         int
	members       map[int]types.User
	clients       map[*Client]struct{}
	userMap       map[int]map[*Client]struct{}
	clientLock    sync.RWMutex
	log           *log.Logger
	// killTimer is used to automatically unload the room when it is no longer active
	killTimer *time.Timer
	// exit is used to signal the room to exit
	exit chan exitReq
}

func newRoom(cs *ChatServer, dbRoom database.Room, members []database.Account) *Room {
	r := &Room{
		id:            dbRoom.Id,
		externalId:    dbRoom.ExternalId,
		name:          dbRoom.Name,
		cs:            cs,
		joinChan:      make(chan *ClientMessage, 256),
		leaveChan:     make(chan *ClientMessage, 256),
		clientMsgChan: make(chan *ClientMessage, 256),
		seqId:         dbRoom.SeqId,
		members:       make(map[int]types.User, len(members)),
		clients:       make(map[*Client]struct{}),
		userMap:       make(map[int]map[*Client]struct{}),
		log:           cs.log,
		exit:          make(chan exitReq),
	}

	for _, m := range members {
		r.members[m.Id] = types.User{
			Id:       m.Id,
			Username: m.Username,
			Role:     m.Role,
		}
	}

	return r
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.externalId)
	r.cs.stats.Incr("NumActiveRooms")
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leaveMsg := <-r.leaveChan:
			r.handleLeave(leaveMsg)
		case msg := <-r.clientMsgChan:
			if msg.Publish != nil {
				r.handlePublish(msg)
			}
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			r.handleRoomExit(e)
			r.cs.stats.Decr("NumActiveRooms")
			return
		}
	}
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room %q timed out", r.externalId)
	select {
	case r.cs.unloadRoomChan <- unloadRoomRequest{roomId: r.externalId}:
	default:
		// retry on the next tick rather than block the room loop
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %q is exiting", r.externalId)
	if e.deleted {
		// notify all clients that the room is deleted
		r.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{
				Timestamp: Now(),
			},
			Notification: &Notification{
				RoomDeleted: &RoomDeleted{RoomId: r.externalId},
			},
		})
	}

	// remove the room for all clients
	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.externalId)
	}
	r.clientLock.Unlock()

	// notify the chat server the room is done cleaning up
	if e.done != nil {
		e.done <- r.externalId
	}
}

// handleJoin authorizes the joining client against the room's membership set
// and registers its connection for fan-out. Joining twice is a no-op beyond
// the acknowledgment.
func (r *Room) handleJoin(join *ClientMessage) {
	// stop the kill timer since we have a new client
	r.killTimer.Stop()

	c := join.client
	if _, ok := r.members[c.user.Id]; !ok {
		// membership may have been granted since the room was loaded
		if !r.cs.db.IsMember(c.user.Id, r.id) {
			r.log.Printf("user %q is not a member of room %q", c.user.Username, r.externalId)
			if len(r.clients) == 0 {
				r.killTimer.Reset(idleRoomTimeout)
			}
			c.queueMessage(ErrNotAMember(join.Id))
			return
		}

		r.members[c.user.Id] = c.user
	}

	dbRoom, err := r.cs.db.GetRoomWithMembers(r.id)
	if err != nil {
		r.log.Println("GetRoomWithMembers:", err)
		if len(r.clients) == 0 {
			r.killTimer.Reset(idleRoomTimeout)
		}
		c.queueMessage(ErrInternalError(join.Id))
		return
	}

	r.addClient(c)

	roomInfo := types.Room{
		Id:         dbRoom.Id,
		Name:       dbRoom.Name,
		ExternalId: dbRoom.ExternalId,
		SeqId:      r.seqId,
		OwnerId:    dbRoom.OwnerId,
		Members: func() []types.User {
			members := make([]types.User, len(dbRoom.Members))
			for i, m := range dbRoom.Members {
				members[i] = types.User{
					Id:        m.AccountId,
					Username:  m.Username,
					Role:      m.Role,
					IsPresent: r.userMap[m.AccountId] != nil,
				}
			}
			return members
		}(),
		CreatedAt: dbRoom.CreatedAt,
		UpdatedAt: dbRoom.UpdatedAt,
	}

	// send the room info to the client
	c.queueMessage(NoErrOK(join.Id, roomInfo))

	// notify clients that the user has joined
	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Presence: &Presence{
				Present: true,
				RoomId:  r.externalId,
				UserId:  c.user.Id,
			},
		},
		SkipClient: c,
	})
}

func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	client := leaveMsg.client
	r.removeClient(client)

	if leaveMsg.GetUserId() != 0 {
		// if the leave message is from a user, notify the user that they left the room
		client.queueMessage(NoErrOK(leaveMsg.Id, nil))
	}

	// notify all clients user is offline
	// if no sessions for user in the room
	if r.userMap[client.user.Id] == nil {
		r.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{
				Timestamp: Now(),
			},
			Notification: &Notification{
				Presence: &Presence{
					Present: false,
					RoomId:  r.externalId,
					UserId:  client.user.Id,
				},
			},
			SkipClient: client,
		})
	}
}

// handlePublish is the persist-then-fan-out path. The persist happens on the
// room goroutine, so messages for one room resolve in the order their writes
// complete. Failures are strictly sender-scoped: the room never observes a
// message that did not persist.
func (r *Room) handlePublish(msg *ClientMessage) {
	pub := msg.Publish

	sender, ok := r.members[msg.GetUserId()]
	if !ok {
		r.log.Printf("user %d is not a member of room %q", msg.GetUserId(), r.externalId)
		msg.client.queueMessage(NewSaveFailed(pub.CorrelationId, "not a room member"))
		return
	}

	if pub.Body == "" && len(pub.Attachments) == 0 {
		r.cs.stats.Incr("MessagesFailed")
		msg.client.queueMessage(NewSaveFailed(pub.CorrelationId, "empty message"))
		return
	}

	kind := pub.Kind
	if kind == "" {
		kind = types.KindText
	}

	attachments := make([]database.Attachment, len(pub.Attachments))
	for i, att := range pub.Attachments {
		attachments[i] = database.Attachment{
			Name:      att.Name,
			Size:      att.Size,
			MediaType: att.MediaType,
			URL:       att.URL,
		}
	}

	dbMsg, err := r.cs.db.CreateMessage(database.CreateMessageParams{
		SeqId:       r.seqId + 1,
		RoomId:      r.id,
		UserId:      sender.Id,
		Username:    sender.Username,
		Role:        sender.Role,
		Body:        pub.Body,
		Kind:        string(kind),
		Attachments: attachments,
	})
	if err != nil {
		r.log.Println("error saving message:", err)
		r.cs.stats.Incr("MessagesFailed")
		msg.client.queueMessage(NewSaveFailed(pub.CorrelationId, "storage error"))
		return
	}

	// advance the sequence only once the message is durably stored
	r.seqId = dbMsg.SeqId
	r.cs.stats.Incr("MessagesPersisted")

	canonical := types.Message{
		Id:          dbMsg.Id,
		RoomId:      r.externalId,
		SeqId:       dbMsg.SeqId,
		Sender:      sender,
		Body:        dbMsg.Body,
		Attachments: pub.Attachments,
		Kind:        kind,
		CreatedAt:   dbMsg.CreatedAt,
	}

	// sender-only confirmation carrying the correlation id; the correlation
	// id never travels on the room broadcast
	msg.client.queueMessage(NewConfirm(pub.CorrelationId, canonical))

	// broadcast the canonical message to all clients in the room, the
	// sender's connection included
	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: dbMsg.CreatedAt,
		},
		Message: &canonical,
	})
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	if r.userMap[c.user.Id] == nil {
		r.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	r.userMap[c.user.Id][c] = struct{}{}

	c.addRoom(r)
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	// check if the client is in the room
	if _, ok := r.clients[c]; !ok {
		r.log.Printf("client %q not found in room %q", c.user.Username, r.externalId)
		return
	}

	delete(r.clients, c)
	c.delRoom(r.externalId)

	// remove the client from the userMap
	if userClients, ok := r.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(r.userMap, c.user.Id)
		}
	}

	r.log.Printf("removed client %q from room %q", c.user.Username, r.externalId)

	// if the client is the last one in the room, start the kill timer
	if len(r.clients) == 0 {
		r.log.Printf("no clients in %q, starting kill timer", r.externalId)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) broadcast(msg *ServerMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = Now()
	}

	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}

		client.queueMessage(msg)
	}
}
