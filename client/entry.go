// Package client implements the connection and local message state used by
// chat frontends: a websocket transport with automatic reconnection, and a
// per-room message store that reconciles optimistic local sends with the
// server's canonical copies.
package client

import (
	"time"

	"github.com/campushub/chatcore/internal/types"
)

// Draft is the locally authored content of a message before the server has
// assigned it an identity.
type Draft struct {
	Body        string
	Attachments []types.Attachment
	Kind        types.MessageKind
}

// Entry is one position in a room's ordered message view. It is a closed set
// of variants: Pending, Confirmed and Failed. Only the author of a message
// ever holds it as Pending or Failed; other participants only see Confirmed
// entries.
type Entry interface {
	isEntry()
}

// Pending is a locally originated message awaiting the server's resolution.
// SubmittedAt is display-only; the authoritative timestamp is assigned by the
// server at persist time.
type Pending struct {
	CorrelationId string
	Draft         Draft
	SubmittedAt   time.Time
}

// Confirmed is the canonical, server-persisted form of a message.
type Confirmed struct {
	Message types.Message
}

// Failed is a message whose persist was rejected. It stays in place until the
// user retries it.
type Failed struct {
	CorrelationId string
	Draft         Draft
	Reason        string
}

func (Pending) isEntry()   {}
func (Confirmed) isEntry() {}
func (Failed) isEntry()    {}
