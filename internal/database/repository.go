package database

type ChatRepository interface {
	Ping() error
	GetAccountById(accountId int) (Account, error)
	GetRoomByExternalId(externalId string) (Room, error)
	GetRoomWithMembers(roomId int) (*Room, error)
	CreateRoom(params CreateRoomParams) (Room, error)
	DeleteRoom(id int) error
	IsMember(accountId, roomId int) bool
	GetMembersByRoomId(roomId int) ([]Account, error)
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessages(roomId, since, before, limit int) ([]Message, error)
}
