package server

import (
	"net/http"
	"time"

	"github.com/campushub/chatcore/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is the envelope received from a connection. Exactly one of
// Publish, Join or Leave is set.
type ClientMessage struct {
	BaseMessage
	Publish *Publish `json:"publish,omitempty"`
	Join    *Join    `json:"join,omitempty"`
	Leave   *Leave   `json:"leave,omitempty"`
	UserId  int      `json:"-"`
	client  *Client
}

func (cm *ClientMessage) GetUserId() int {
	if cm.UserId != 0 {
		return cm.UserId
	}

	if cm.client != nil {
		return cm.client.user.Id
	}

	return 0
}

// Publish carries one outbound message. CorrelationId is minted by the
// sending client and echoed back only on the sender's confirm or failure
// event, never on the room broadcast.
type Publish struct {
	RoomId        string             `json:"room_id"`
	Body          string             `json:"body,omitempty"`
	Attachments   []types.Attachment `json:"attachments,omitempty"`
	Kind          types.MessageKind  `json:"kind"`
	CorrelationId string             `json:"correlation_id"`
}

type Join struct {
	RoomId string `json:"room_id"`
}

type Leave struct {
	RoomId string `json:"room_id"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response      `json:"response,omitempty"`
	Message      *types.Message `json:"message,omitempty"`
	Confirm      *Confirm       `json:"confirm,omitempty"`
	SaveFailed   *SaveFailed    `json:"save_failed,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
	SkipClient   *Client        `json:"-"`
}

// Confirm is the sender-only acknowledgment carrying the canonical message so
// the sender can reconcile its pending entry without relying on the room
// broadcast.
type Confirm struct {
	CorrelationId string        `json:"correlation_id"`
	Message       types.Message `json:"message"`
}

// SaveFailed is the sender-only failure event. Nothing is broadcast to the
// room when a persist fails.
type SaveFailed struct {
	CorrelationId string `json:"correlation_id"`
	Reason        string `json:"reason"`
}

type Notification struct {
	Presence    *Presence    `json:"presence,omitempty"`
	RoomDeleted *RoomDeleted `json:"room_deleted,omitempty"`
}

type Presence struct {
	Present bool   `json:"present"`
	UserId  int    `json:"user_id,omitempty"`
	RoomId  string `json:"room_id"`
}

type RoomDeleted struct {
	RoomId string `json:"room_id"`
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

func NewConfirm(correlationId string, msg types.Message) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Confirm: &Confirm{
			CorrelationId: correlationId,
			Message:       msg,
		},
	}
}

func NewSaveFailed(correlationId, reason string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		SaveFailed: &SaveFailed{
			CorrelationId: correlationId,
			Reason:        reason,
		},
	}
}

func ErrRoomNotFound(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "room not found",
		},
	}
}

func ErrNotAMember(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusForbidden,
			Error:        "not a room member",
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
