package models

import "fmt"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatTurn is one message of a conversation. Turns are values and are never
// modified after they are appended to a transcript.
type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func UserTurn(content string) ChatTurn {
	return ChatTurn{Role: RoleUser, Content: content}
}

func AssistantTurn(content string) ChatTurn {
	return ChatTurn{Role: RoleAssistant, Content: content}
}

// Transcript is an ordered conversation. It may end on a user turn when the
// assistant reply failed.
type Transcript []ChatTurn

// Clone returns a copy that shares no backing array with t. A nil or empty
// transcript clones to an empty, non-nil one so it encodes as [].
func (t Transcript) Clone() Transcript {
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}

// TranscriptID names one of the two transcripts a session holds.
type TranscriptID int

const (
	TranscriptIndexed TranscriptID = iota
	TranscriptDocument
)

func (id TranscriptID) String() string {
	switch id {
	case TranscriptIndexed:
		return "indexed"
	case TranscriptDocument:
		return "document"
	default:
		return fmt.Sprintf("transcript(%d)", int(id))
	}
}

// Mode selects which transcript and context the user is talking to.
type Mode int

const (
	ModeIndexed Mode = iota
	ModeDocument
)

func (m Mode) String() string {
	switch m {
	case ModeIndexed:
		return "indexed"
	case ModeDocument:
		return "document"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Transcript returns the transcript the mode reads and writes.
func (m Mode) Transcript() TranscriptID {
	if m == ModeDocument {
		return TranscriptDocument
	}
	return TranscriptIndexed
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "indexed", "index", "1":
		return ModeIndexed, nil
	case "document", "doc", "2":
		return ModeDocument, nil
	default:
		return ModeIndexed, fmt.Errorf("unknown mode %q (want indexed or document)", s)
	}
}
