package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/memory"
	"github.com/xhad/thinktank/internal/models"
)

// Session is the in-memory state of one connected client: the indexed chat
// transcript, the loaded document and the document chat transcript. It lives
// as long as the client and is never persisted.
//
// All methods are safe for concurrent use. Mutations are serialized by a
// single lock so transcripts keep the order in which turns were appended.
type Session struct {
	id string

	mu         sync.Mutex
	mode       models.Mode
	indexed    *memory.ChatMessageHistory
	document   *memory.ChatMessageHistory
	doc        models.DocumentContext
	generation uint64
}

func New() *Session {
	return &Session{
		id:       uuid.NewString(),
		indexed:  memory.NewChatMessageHistory(),
		document: memory.NewChatMessageHistory(),
	}
}

// ID identifies the session in logs only.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) Mode() models.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches the visible branch of the session. It has no other effect.
func (s *Session) SetMode(mode models.Mode) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
}

// AppendTurn appends turn to the named transcript. There is no size bound and
// no deduplication.
func (s *Session) AppendTurn(id models.TranscriptID, turn models.ChatTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(s.history(id), turn)
}

// AppendDocumentTurn appends turn to the document transcript if the document
// loaded at generation is still the current one. It reports whether the turn
// was appended.
func (s *Session) AppendDocumentTurn(generation uint64, turn models.ChatTurn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return false
	}
	s.append(s.document, turn)
	return true
}

// SetDocumentContext replaces the loaded document and clears the document
// transcript in one step.
func (s *Session) SetDocumentContext(doc models.DocumentContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	s.document = memory.NewChatMessageHistory()
	s.generation++
}

// DocumentSnapshot returns the loaded document together with the transcript
// built against it and the document generation, all read under one lock.
func (s *Session) DocumentSnapshot() (models.DocumentContext, models.Transcript, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc, toTranscript(s.document), s.generation
}

// Transcript returns a copy of the named transcript.
func (s *Session) Transcript(id models.TranscriptID) models.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return toTranscript(s.history(id))
}

// Reset clears the session as a page reload would. The mode is kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexed = memory.NewChatMessageHistory()
	s.document = memory.NewChatMessageHistory()
	s.doc = models.DocumentContext{}
	s.generation++
}

func (s *Session) history(id models.TranscriptID) *memory.ChatMessageHistory {
	if id == models.TranscriptDocument {
		return s.document
	}
	return s.indexed
}

// append never fails: the in-memory history only returns errors for
// persistent backends.
func (s *Session) append(h *memory.ChatMessageHistory, turn models.ChatTurn) {
	ctx := context.Background()
	if turn.Role == models.RoleAssistant {
		_ = h.AddAIMessage(ctx, turn.Content)
		return
	}
	_ = h.AddUserMessage(ctx, turn.Content)
}

func toTranscript(h *memory.ChatMessageHistory) models.Transcript {
	msgs, _ := h.Messages(context.Background())
	out := make(models.Transcript, 0, len(msgs))
	for _, msg := range msgs {
		role := models.RoleUser
		if msg.GetType() == schema.ChatMessageTypeAI {
			role = models.RoleAssistant
		}
		out = append(out, models.ChatTurn{Role: role, Content: msg.GetContent()})
	}
	return out
}
