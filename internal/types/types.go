package types

import (
	"context"
	"io"

	"github.com/xhad/thinktank/internal/models"
)

// Core interfaces

// Gateway is the only component that talks to the backend.
type Gateway interface {
	SendIndexedChat(ctx context.Context, message string) (string, error)
	ExtractDocument(ctx context.Context, file io.Reader, filename string) (string, error)
	SendFollowup(ctx context.Context, doc string, history models.Transcript) (string, error)
}

// SessionStore holds the state of one user session.
type SessionStore interface {
	ID() string
	Mode() models.Mode
	SetMode(mode models.Mode)
	AppendTurn(id models.TranscriptID, turn models.ChatTurn)
	AppendDocumentTurn(generation uint64, turn models.ChatTurn) bool
	SetDocumentContext(doc models.DocumentContext)
	DocumentSnapshot() (models.DocumentContext, models.Transcript, uint64)
	Transcript(id models.TranscriptID) models.Transcript
	Reset()
}

// Presenter receives progress of an exchange so a front end can show the
// waiting indicator while a gateway call is outstanding.
type Presenter interface {
	Waiting(label string)
	Done()
}
