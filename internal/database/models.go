package database

import "time"

type Account struct {
	Id        int
	Username  string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Room struct {
	Id         int
	ExternalId string
	Name       string
	SeqId      int
	OwnerId    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Members    []Membership
}

type Membership struct {
	Id        int
	AccountId int
	Username  string
	Role      string
	RoomId    int
	CreatedAt time.Time
}

type Attachment struct {
	Name      string
	Size      int64
	MediaType string
	URL       string
}

// Message is a persisted message record. Id is a server-assigned UUID and
// CreatedAt is assigned at insert time, never taken from the client.
type Message struct {
	Id          string
	SeqId       int
	RoomId      int
	UserId      int
	Username    string
	Role        string
	Body        string
	Kind        string
	Attachments []Attachment
	CreatedAt   time.Time
}

type CreateMessageParams struct {
	SeqId       int
	RoomId      int
	UserId      int
	Username    string
	Role        string
	Body        string
	Kind        string
	Attachments []Attachment
}

type CreateRoomParams struct {
	Name       string
	OwnerId    int
	ExternalId string
}
