package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const createMembershipQuery = "INSERT INTO memberships (account_id, room_id, created_at) " +
	"VALUES ($1, $2, $3) RETURNING id, account_id, room_id"

func (db *PgChatRepository) GetAccountById(id int) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, role FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var account Account
	err := row.Scan(
		&account.Id,
		&account.Username,
		&account.Role,
	)

	return account, err
}

func (db *PgChatRepository) GetRoomByExternalId(externalId string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, name, seq_id, owner_id FROM rooms "+
			"WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Name,
		&room.SeqId,
		&room.OwnerId,
	)

	return room, err
}

func (db *PgChatRepository) GetRoomWithMembers(roomId int) (*Room, error) {
	query := `
		SELECT
				r.id AS room_id,
				r.external_id,
				r.name AS room_name,
				r.seq_id,
				r.owner_id,
				r.created_at AS room_created_at,
				r.updated_at AS room_updated_at,
				m.id,
				m.account_id,
				a.username,
				a.role,
				m.created_at AS membership_created_at
		FROM rooms r
		LEFT JOIN memberships m ON r.id = m.room_id
		LEFT JOIN accounts a ON m.account_id = a.id
		WHERE r.id = $1;
`

	rows, err := db.conn.Query(query, roomId)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch room with members: %w", err)
	}
	defer rows.Close()

	var room *Room
	for rows.Next() {
		var (
			id                  int
			externalId          string
			roomName            string
			seqId               int
			ownerId             int
			roomCreatedAt       time.Time
			roomUpdatedAt       time.Time
			membershipId        sql.NullInt64
			accountId           sql.NullInt64
			username            sql.NullString
			role                sql.NullString
			membershipCreatedAt sql.NullTime
		)

		err := rows.Scan(
			&id,
			&externalId,
			&roomName,
			&seqId,
			&ownerId,
			&roomCreatedAt,
			&roomUpdatedAt,
			&membershipId,
			&accountId,
			&username,
			&role,
			&membershipCreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		if room == nil {
			room = &Room{
				Id:         id,
				ExternalId: externalId,
				Name:       roomName,
				SeqId:      seqId,
				OwnerId:    ownerId,
				CreatedAt:  roomCreatedAt,
				UpdatedAt:  roomUpdatedAt,
				Members:    make([]Membership, 0),
			}
		}

		if accountId.Valid && username.Valid {
			room.Members = append(room.Members, Membership{
				Id:        int(membershipId.Int64),
				AccountId: int(accountId.Int64),
				Username:  username.String,
				Role:      role.String,
				RoomId:    id,
				CreatedAt: membershipCreatedAt.Time,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if room == nil {
		return nil, fmt.Errorf("room with id %d not found", roomId)
	}

	return room, nil
}

func (db *PgChatRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO rooms (name, external_id, owner_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, name, external_id, seq_id, owner_id, created_at, updated_at",
		params.Name,
		params.ExternalId,
		params.OwnerId,
		time.Now().UTC(),
		time.Now().UTC(),
	)

	var room Room
	err = res.Scan(
		&room.Id,
		&room.Name,
		&room.ExternalId,
		&room.SeqId,
		&room.OwnerId,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return Room{}, err
	}

	// the owner is always a member of their own room
	_, err = tx.Exec(
		createMembershipQuery,
		params.OwnerId,
		room.Id,
		time.Now().UTC(),
	)
	if err != nil {
		return Room{}, err
	}

	if err = tx.Commit(); err != nil {
		return Room{}, err
	}

	return room, err
}

func (db *PgChatRepository) DeleteRoom(id int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec("DELETE FROM memberships WHERE room_id = $1", id)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM attachments WHERE message_id IN (SELECT id FROM messages WHERE room_id = $1)", id)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM messages WHERE room_id = $1", id)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM rooms WHERE id = $1", id)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgChatRepository) IsMember(accountId, roomId int) bool {
	res := db.conn.QueryRow(
		"SELECT id FROM memberships WHERE account_id = $1 AND room_id = $2 LIMIT 1",
		accountId,
		roomId,
	)

	var id int
	err := res.Scan(&id)

	return err == nil
}

func (db *PgChatRepository) GetMembersByRoomId(roomId int) ([]Account, error) {
	rows, err := db.conn.Query(
		"SELECT a.id, a.username, a.role FROM memberships AS m "+
			"JOIN accounts AS a ON m.account_id = a.id WHERE m.room_id = $1",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members = make([]Account, 0)
	for rows.Next() {
		var member Account
		if err = rows.Scan(&member.Id, &member.Username, &member.Role); err != nil {
			break
		}

		members = append(members, member)
	}

	return members, err
}

// CreateMessage durably stores a new message record, assigning its UUID and
// created_at timestamp at write time. The room's seq_id is advanced in the
// same transaction so the persisted sequence matches persist-completion
// order.
func (db *PgChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec("UPDATE rooms SET seq_id = $1, updated_at = $2 WHERE id = $3",
		params.SeqId,
		time.Now().UTC(),
		params.RoomId,
	)
	if err != nil {
		return Message{}, err
	}

	msg := Message{
		Id:          uuid.NewString(),
		SeqId:       params.SeqId,
		RoomId:      params.RoomId,
		UserId:      params.UserId,
		Username:    params.Username,
		Role:        params.Role,
		Body:        params.Body,
		Kind:        params.Kind,
		Attachments: params.Attachments,
		CreatedAt:   time.Now().UTC(),
	}

	_, err = tx.Exec(
		"INSERT INTO messages (id, seq_id, room_id, user_id, body, kind, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7)",
		msg.Id,
		msg.SeqId,
		msg.RoomId,
		msg.UserId,
		msg.Body,
		msg.Kind,
		msg.CreatedAt,
	)
	if err != nil {
		return Message{}, err
	}

	for _, att := range msg.Attachments {
		_, err = tx.Exec(
			"INSERT INTO attachments (message_id, name, size, media_type, url) "+
				"VALUES ($1, $2, $3, $4, $5)",
			msg.Id,
			att.Name,
			att.Size,
			att.MediaType,
			att.URL,
		)
		if err != nil {
			return Message{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return Message{}, err
	}

	return msg, nil
}

func (db *PgChatRepository) GetMessages(roomId, since, before, limit int) ([]Message, error) {
	var upper, lower int = 1<<31 - 1, 0
	if before > 0 {
		upper = before - 1
	}

	if since > 0 {
		lower = since
	}

	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.Query(
		"SELECT m.id, m.seq_id, m.room_id, m.user_id, a.username, a.role, m.body, m.kind, m.created_at "+
			"FROM messages m JOIN accounts a ON m.user_id = a.id "+
			"WHERE m.room_id = $1 AND m.seq_id BETWEEN $2 AND $3 ORDER BY m.seq_id DESC LIMIT $4",
		roomId,
		lower,
		upper,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(&msg.Id, &msg.SeqId, &msg.RoomId, &msg.UserId, &msg.Username, &msg.Role,
			&msg.Body, &msg.Kind, &msg.CreatedAt); err != nil {
			break
		}

		messages = append(messages, msg)
	}
	if err != nil {
		return nil, err
	}

	for i := range messages {
		atts, err := db.getAttachments(messages[i].Id)
		if err != nil {
			return nil, err
		}
		messages[i].Attachments = atts
	}

	return messages, nil
}

func (db *PgChatRepository) getAttachments(messageId string) ([]Attachment, error) {
	rows, err := db.conn.Query(
		"SELECT name, size, media_type, url FROM attachments WHERE message_id = $1 ORDER BY id",
		messageId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var atts []Attachment
	for rows.Next() {
		var att Attachment
		if err = rows.Scan(&att.Name, &att.Size, &att.MediaType, &att.URL); err != nil {
			return nil, err
		}

		atts = append(atts, att)
	}

	return atts, rows.Err()
}
