package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/campushub/chatcore/internal/config"
	"github.com/campushub/chatcore/internal/database"
	"github.com/campushub/chatcore/internal/server"
	"github.com/campushub/chatcore/internal/stats"
	"github.com/campushub/chatcore/internal/testutil"
	"github.com/campushub/chatcore/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestApp(t *testing.T, db database.ChatRepository, cfg *config.Config) *App {
	if cfg == nil {
		cfg = &config.Config{}
	}
	return NewApp(http.NewServeMux(), testutil.TestLogger(t), nil, db, cfg)
}

func Test_health(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
		code    int
	}{
		{
			name:    "successful health check",
			mockErr: nil,
			code:    http.StatusOK,
		},
		{
			name:    "failed health check",
			mockErr: assert.AnError,
			code:    http.StatusInternalServerError,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockChatRepository{}
			defer db.AssertExpectations(t)
			db.On("Ping").Return(tc.mockErr).Once()

			app := newTestApp(t, db, nil)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
			app.health(rr, req)

			assert.Equal(t, tc.code, rr.Code, "expected status code to match")
		})
	}
}

func Test_createRoom(t *testing.T) {
	t.Run("creates room with generated external id", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)

		created := database.Room{Id: 1, ExternalId: "r1-ext", Name: "Study Group", OwnerId: 7}
		db.On("CreateRoom", mock.MatchedBy(func(p database.CreateRoomParams) bool {
			return p.Name == "Study Group" && p.OwnerId == 7 && p.ExternalId != ""
		})).Return(created, nil).Once()

		app := newTestApp(t, db, nil)

		body, _ := json.Marshal(CreateRoomRequest{Name: "Study Group"})
		req := httptest.NewRequest(http.MethodPost, "/api/rooms", bytes.NewReader(body))
		req = req.WithContext(WithUserId(req.Context(), 7))

		rr := httptest.NewRecorder()
		app.createRoom(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code, "expected 201 status code")

		var room types.Room
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&room), "expected valid room payload")
		assert.Equal(t, "r1-ext", room.ExternalId, "expected external id in response")
		assert.Equal(t, 7, room.OwnerId, "expected owner id in response")
	})

	t.Run("rejects empty name", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{}, nil)

		body, _ := json.Marshal(CreateRoomRequest{})
		req := httptest.NewRequest(http.MethodPost, "/api/rooms", bytes.NewReader(body))
		req = req.WithContext(WithUserId(req.Context(), 7))

		rr := httptest.NewRecorder()
		app.createRoom(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected 400 status code")
	})

	t.Run("rejects missing user", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{}, nil)

		body, _ := json.Marshal(CreateRoomRequest{Name: "Study Group"})
		req := httptest.NewRequest(http.MethodPost, "/api/rooms", bytes.NewReader(body))

		rr := httptest.NewRecorder()
		app.createRoom(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected 401 status code")
	})
}

func Test_deleteRoom(t *testing.T) {
	room := database.Room{Id: 1, ExternalId: "r1-ext", Name: "Study Group", OwnerId: 7}

	t.Run("owner deletes room", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetRoomByExternalId", "r1-ext").Return(room, nil).Once()
		db.On("DeleteRoom", 1).Return(nil).Once()

		su := &stats.MockStatsUpdater{}
		su.On("RegisterMetric", mock.Anything).Return().Times(4)
		cs, err := server.NewChatServer(testutil.TestLogger(t), db, su)
		assert.NoError(t, err, "expected chat server to be created")
		go cs.Run()

		app := NewApp(http.NewServeMux(), testutil.TestLogger(t), cs, db, &config.Config{})

		req := httptest.NewRequest(http.MethodDelete, "/api/rooms?id=r1-ext", nil)
		req = req.WithContext(WithUserId(req.Context(), 7))

		rr := httptest.NewRecorder()
		app.deleteRoom(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code, "expected 204 status code")
	})

	t.Run("rejects non-owner", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetRoomByExternalId", "r1-ext").Return(room, nil).Once()

		app := newTestApp(t, db, nil)
		req := httptest.NewRequest(http.MethodDelete, "/api/rooms?id=r1-ext", nil)
		req = req.WithContext(WithUserId(req.Context(), 9))

		rr := httptest.NewRecorder()
		app.deleteRoom(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code, "expected 403 status code")
	})

	t.Run("returns 404 for unknown room", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetRoomByExternalId", "missing").Return(database.Room{}, sql.ErrNoRows).Once()

		app := newTestApp(t, db, nil)
		req := httptest.NewRequest(http.MethodDelete, "/api/rooms?id=missing", nil)
		req = req.WithContext(WithUserId(req.Context(), 7))

		rr := httptest.NewRecorder()
		app.deleteRoom(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code, "expected 404 status code")
	})
}

func Test_getRoom(t *testing.T) {
	t.Run("returns room by external id", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetRoomByExternalId", "r1-ext").Return(database.Room{
			Id: 1, ExternalId: "r1-ext", Name: "Study Group", SeqId: 12,
		}, nil).Once()

		app := newTestApp(t, db, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/rooms?id=r1-ext", nil)

		rr := httptest.NewRecorder()
		app.getRoom(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected 200 status code")

		var room types.Room
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&room), "expected valid room payload")
		assert.Equal(t, 12, room.SeqId, "expected room sequence in response")
	})

	t.Run("returns 404 for unknown room", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetRoomByExternalId", "missing").Return(database.Room{}, sql.ErrNoRows).Once()

		app := newTestApp(t, db, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/rooms?id=missing", nil)

		rr := httptest.NewRecorder()
		app.getRoom(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code, "expected 404 status code")
	})

	t.Run("requires id parameter", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{}, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)

		rr := httptest.NewRecorder()
		app.getRoom(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected 400 status code")
	})
}

func Test_getMessages(t *testing.T) {
	room := database.Room{Id: 1, ExternalId: "r1-ext", Name: "Study Group"}

	t.Run("returns history for a member", func(t *testing.T) {
		createdAt := time.Now().UTC().Round(time.Millisecond)
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetRoomByExternalId", "r1-ext").Return(room, nil).Once()
		db.On("IsMember", 7, 1).Return(true).Once()
		db.On("GetMessages", 1, 0, 20, 50).Return([]database.Message{
			{
				Id:        "a3a0a35c-0000-0000-0000-000000000001",
				SeqId:     11,
				RoomId:    1,
				UserId:    2,
				Username:  "alice",
				Role:      "member",
				Body:      "hi",
				Kind:      "text",
				CreatedAt: createdAt,
				Attachments: []database.Attachment{
					{Name: "notes.pdf", Size: 4096, MediaType: "application/pdf", URL: "https://cdn.example.com/notes.pdf"},
				},
			},
		}, nil).Once()

		app := newTestApp(t, db, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/messages?room_id=r1-ext&before=20&limit=50", nil)
		req = req.WithContext(WithUserId(req.Context(), 7))

		rr := httptest.NewRecorder()
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected 200 status code")

		var messages []types.Message
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&messages), "expected valid message payload")
		assert.Len(t, messages, 1, "expected one message")
		assert.Equal(t, "r1-ext", messages[0].RoomId, "expected external room id on message")
		assert.Equal(t, "alice", messages[0].Sender.Username, "expected sender identity")
		assert.Len(t, messages[0].Attachments, 1, "expected attachment metadata")
	})

	t.Run("rejects non-member", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetRoomByExternalId", "r1-ext").Return(room, nil).Once()
		db.On("IsMember", 9, 1).Return(false).Once()

		app := newTestApp(t, db, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/messages?room_id=r1-ext", nil)
		req = req.WithContext(WithUserId(req.Context(), 9))

		rr := httptest.NewRecorder()
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code, "expected 403 status code")
	})

	t.Run("rejects malformed pagination", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetRoomByExternalId", "r1-ext").Return(room, nil).Once()
		db.On("IsMember", 7, 1).Return(true).Once()

		app := newTestApp(t, db, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/messages?room_id=r1-ext&before=abc", nil)
		req = req.WithContext(WithUserId(req.Context(), 7))

		rr := httptest.NewRecorder()
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected 400 status code")
	})

	t.Run("requires room_id parameter", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{}, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
		req = req.WithContext(WithUserId(req.Context(), 7))

		rr := httptest.NewRecorder()
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected 400 status code")
	})
}
