package client

import (
	"slices"
	"sync"
	"time"

	"github.com/campushub/chatcore/internal/types"
	"github.com/google/uuid"
)

// EnvelopeSender dispatches an outbound message envelope. Satisfied by
// *Transport; tests substitute their own.
type EnvelopeSender interface {
	Send(env Envelope)
}

// Store holds the ordered message view of one room. Locally originated
// messages appear immediately as Pending and are later reconciled in place
// against the server's resolution events; messages from other participants
// arrive via OnBroadcast. Every method is safe for concurrent use.
type Store struct {
	roomId string
	sender EnvelopeSender

	mu      sync.Mutex
	entries []Entry
	// ids tracks the persisted message ids present in entries, making
	// duplicate deliveries of the same canonical message no-ops
	ids map[string]struct{}
}

func NewStore(roomId string, sender EnvelopeSender) *Store {
	return &Store{
		roomId: roomId,
		sender: sender,
		ids:    make(map[string]struct{}),
	}
}

// Submit appends a Pending entry for the draft and hands the envelope to the
// transport. It never blocks on network I/O: the pending message is visible
// in the room view before any round trip completes, and all failure is
// reported asynchronously via OnFailed.
func (s *Store) Submit(draft Draft) string {
	correlationId := uuid.NewString()

	s.mu.Lock()
	s.entries = append(s.entries, Pending{
		CorrelationId: correlationId,
		Draft:         draft,
		SubmittedAt:   time.Now(),
	})
	s.mu.Unlock()

	s.sender.Send(Envelope{
		RoomId:        s.roomId,
		Body:          draft.Body,
		Attachments:   draft.Attachments,
		Kind:          draft.Kind,
		CorrelationId: correlationId,
	})

	return correlationId
}

// OnConfirmed resolves the pending entry matching correlationId with the
// canonical message, keeping its submission position. If the room broadcast
// delivered the same message first, the broadcast's copy is dropped so
// exactly one entry remains. An unknown correlation id is a no-op; the
// broadcast path covers insertion in that case.
func (s *Store) OnConfirmed(correlationId string, msg types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findPending(correlationId)
	if idx < 0 {
		return
	}

	if _, ok := s.ids[msg.Id]; ok {
		if dup := s.findById(msg.Id); dup >= 0 && dup != idx {
			s.entries = slices.Delete(s.entries, dup, dup+1)
			if dup < idx {
				idx--
			}
		}
	}

	s.entries[idx] = Confirmed{Message: msg}
	s.ids[msg.Id] = struct{}{}
}

// OnBroadcast appends a canonical message delivered on the room's fan-out
// stream. Idempotent on the persisted message id: duplicates, including the
// sender's own copy already settled via OnConfirmed, are no-ops.
func (s *Store) OnBroadcast(msg types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[msg.Id]; ok {
		return
	}

	s.entries = append(s.entries, Confirmed{Message: msg})
	s.ids[msg.Id] = struct{}{}
}

// OnFailed marks the pending entry matching correlationId as Failed in
// place. The entry is never removed here; that is the user's call via Retry.
func (s *Store) OnFailed(correlationId, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findPending(correlationId)
	if idx < 0 {
		return
	}

	p := s.entries[idx].(Pending)
	s.entries[idx] = Failed{
		CorrelationId: correlationId,
		Draft:         p.Draft,
		Reason:        reason,
	}
}

// Retry removes the failed entry matching correlationId and submits an
// equivalent draft as a new send: a fresh correlation id, appended at the
// tail. Returns false if no failed entry matches.
func (s *Store) Retry(correlationId string) (string, bool) {
	s.mu.Lock()
	found := -1
	var draft Draft
	for i, e := range s.entries {
		if f, ok := e.(Failed); ok && f.CorrelationId == correlationId {
			found = i
			draft = f.Draft
			break
		}
	}
	if found < 0 {
		s.mu.Unlock()
		return "", false
	}
	s.entries = slices.Delete(s.entries, found, found+1)
	s.mu.Unlock()

	return s.Submit(draft), true
}

// Messages returns a snapshot of the room's ordered view.
func (s *Store) Messages() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.entries)
}

func (s *Store) RoomId() string {
	return s.roomId
}

func (s *Store) findPending(correlationId string) int {
	for i, e := range s.entries {
		if p, ok := e.(Pending); ok && p.CorrelationId == correlationId {
			return i
		}
	}
	return -1
}

func (s *Store) findById(id string) int {
	for i, e := range s.entries {
		if c, ok := e.(Confirmed); ok && c.Message.Id == id {
			return i
		}
	}
	return -1
}
