package types

import (
	"time"
)

type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindFile  MessageKind = "file"
)

type User struct {
	Id        int       `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role,omitempty"`
	IsPresent bool      `json:"is_present,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type Attachment struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	MediaType string `json:"media_type"`
	URL       string `json:"url"`
}

// Message is the canonical, server-persisted representation of a chat
// message. Id and CreatedAt are assigned at persist time; SeqId is assigned
// by the room's serialization point and is strictly increasing per room.
type Message struct {
	Id          string       `json:"id"`
	RoomId      string       `json:"room_id"`
	SeqId       int          `json:"seq_id"`
	Sender      User         `json:"sender"`
	Body        string       `json:"body,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Kind        MessageKind  `json:"kind"`
	CreatedAt   time.Time    `json:"created_at"`
}

type Room struct {
	Id         int       `json:"id"`
	ExternalId string    `json:"external_id"`
	Name       string    `json:"name"`
	SeqId      int       `json:"seq_id"`
	OwnerId    int       `json:"owner_id,omitempty"`
	Members    []User    `json:"members,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}
