package server

import (
	"net/http"
	"testing"

	"github.com/campushub/chatcore/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestNoErrOK(t *testing.T) {
	msg := NoErrOK(3, "payload")
	assert.Equal(t, 3, msg.Id, "expected id to be echoed")
	assert.NotNil(t, msg.Response, "expected response to be set")
	assert.Equal(t, http.StatusOK, msg.Response.ResponseCode, "expected 200 response code")
	assert.Equal(t, "payload", msg.Response.Data, "expected data to be set")
	assert.Empty(t, msg.Response.Error, "expected no error")
	assert.False(t, msg.Timestamp.IsZero(), "expected timestamp to be set")
}

func TestNewConfirm(t *testing.T) {
	canonical := types.Message{
		Id:     "b9f2c1a4-0000-0000-0000-000000000001",
		RoomId: "test-room",
		SeqId:  7,
		Body:   "hello",
	}

	msg := NewConfirm("corr-1", canonical)
	assert.NotNil(t, msg.Confirm, "expected confirm to be set")
	assert.Equal(t, "corr-1", msg.Confirm.CorrelationId, "expected correlation id to be echoed")
	assert.Equal(t, canonical, msg.Confirm.Message, "expected canonical message to be carried")
	assert.Nil(t, msg.Message, "expected no broadcast payload on a confirm")
	assert.False(t, msg.Timestamp.IsZero(), "expected timestamp to be set")
}

func TestNewSaveFailed(t *testing.T) {
	msg := NewSaveFailed("corr-2", "storage error")
	assert.NotNil(t, msg.SaveFailed, "expected save_failed to be set")
	assert.Equal(t, "corr-2", msg.SaveFailed.CorrelationId, "expected correlation id to be echoed")
	assert.Equal(t, "storage error", msg.SaveFailed.Reason, "expected reason to be set")
	assert.Nil(t, msg.Message, "expected no broadcast payload on a failure")
}

func TestErrResponses(t *testing.T) {
	tests := []struct {
		name string
		msg  *ServerMessage
		code int
	}{
		{"room not found", ErrRoomNotFound(1), http.StatusNotFound},
		{"not a member", ErrNotAMember(2), http.StatusForbidden},
		{"internal error", ErrInternalError(3), http.StatusInternalServerError},
		{"service unavailable", ErrServiceUnavailable(4), http.StatusServiceUnavailable},
		{"invalid message", ErrInvalidMessage(5), http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotNil(t, tc.msg.Response, "expected response to be set")
			assert.Equal(t, tc.code, tc.msg.Response.ResponseCode, "expected response code to match")
			assert.NotEmpty(t, tc.msg.Response.Error, "expected error message to be set")
		})
	}
}

func TestGetUserId(t *testing.T) {
	msg := &ClientMessage{UserId: 42}
	assert.Equal(t, 42, msg.GetUserId(), "expected explicit user id")

	msg = &ClientMessage{client: &Client{user: types.User{Id: 7}}}
	assert.Equal(t, 7, msg.GetUserId(), "expected user id from client")

	msg = &ClientMessage{}
	assert.Equal(t, 0, msg.GetUserId(), "expected zero user id with no client")
}
