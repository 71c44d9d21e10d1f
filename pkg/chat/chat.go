package chat

import (
	"context"
	"errors"
	"io"

	"github.com/xhad/thinktank/internal/models"
	"github.com/xhad/thinktank/internal/types"
	"github.com/xhad/thinktank/pkg/logger"
	"go.uber.org/zap"
)

// ErrNoDocument is returned when a document question is asked before any
// document was loaded.
var ErrNoDocument = errors.New("no document loaded, upload a document first")

// ErrEmptyMessage is returned for blank input.
var ErrEmptyMessage = errors.New("message is empty")

// Reply is the outcome of one exchange. Exactly one of Content and Err is
// meaningful: when Err is set Content is empty and nothing was appended on
// behalf of the assistant.
type Reply struct {
	Content string
	Err     error
}

func (r Reply) OK() bool {
	return r.Err == nil
}

// Render returns the text shown in the assistant's message slot.
func (r Reply) Render() string {
	if r.Err != nil {
		return "Error: " + r.Err.Error()
	}
	return r.Content
}

func failed(err error) Reply {
	return Reply{Err: err}
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(log *zap.Logger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// WithValidator sets a check run on every upload before it is sent.
func WithValidator(validate func(filename string, size int64) error) Option {
	return func(c *Controller) {
		c.validate = validate
	}
}

// WithPresenter sets the receiver of waiting notifications.
func WithPresenter(p types.Presenter) Option {
	return func(c *Controller) {
		c.presenter = p
	}
}

// Controller drives one session: it records user turns, calls the backend and
// records the assistant turns that come back. Failures are returned as
// Replies and never escape as errors.
type Controller struct {
	session   types.SessionStore
	gateway   types.Gateway
	log       *zap.Logger
	validate  func(filename string, size int64) error
	presenter types.Presenter
}

func New(session types.SessionStore, gateway types.Gateway, opts ...Option) *Controller {
	c := &Controller{
		session: session,
		gateway: gateway,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(zap.String("session", session.ID()))
	return c
}

func (c *Controller) Session() types.SessionStore {
	return c.session
}

// Ask sends msg in the session's current mode.
func (c *Controller) Ask(ctx context.Context, msg string) Reply {
	if c.session.Mode() == models.ModeDocument {
		return c.AskDocument(ctx, msg)
	}
	return c.AskIndexed(ctx, msg)
}

// AskIndexed asks a question against the indexed corpus.
func (c *Controller) AskIndexed(ctx context.Context, msg string) Reply {
	if msg == "" {
		return failed(ErrEmptyMessage)
	}
	c.session.AppendTurn(models.TranscriptIndexed, models.UserTurn(msg))

	answer, err := c.call(ctx, "Thinking...", func(ctx context.Context) (string, error) {
		return c.gateway.SendIndexedChat(ctx, msg)
	})
	if err != nil {
		c.log.Warn("indexed chat failed", zap.Error(err))
		return failed(err)
	}
	if err := ctx.Err(); err != nil {
		return failed(err)
	}

	c.session.AppendTurn(models.TranscriptIndexed, models.AssistantTurn(answer))
	c.log.Debug("indexed chat answered", zap.Int("answer_len", len(answer)))
	return Reply{Content: answer}
}

// LoadDocument uploads a document and makes its extracted text the session's
// document context. The document transcript starts over. On failure the
// previous document stays loaded. A document with no text unloads the previous
// one and returns an empty Content.
func (c *Controller) LoadDocument(ctx context.Context, file io.Reader, filename string, size int64) Reply {
	if c.validate != nil {
		if err := c.validate(filename, size); err != nil {
			return failed(err)
		}
	}

	text, err := c.call(ctx, "Uploading and analyzing...", func(ctx context.Context) (string, error) {
		return c.gateway.ExtractDocument(ctx, file, filename)
	})
	if err != nil {
		c.log.Warn("document extraction failed", zap.String("filename", filename), zap.Error(err))
		return failed(err)
	}
	if err := ctx.Err(); err != nil {
		return failed(err)
	}

	// An empty extraction still replaces the document, which leaves the
	// session with nothing loaded. Callers warn on empty Content.
	c.session.SetDocumentContext(models.DocumentContext{Filename: filename, Text: text})
	if text == "" {
		c.log.Warn("document has no extractable text", zap.String("filename", filename))
		return Reply{}
	}
	c.log.Info("document loaded", zap.String("filename", filename), zap.Int("text_len", len(text)))
	return Reply{Content: text}
}

// AskDocument asks a question about the loaded document. The question is
// appended to the document transcript first, so the history sent to the
// backend ends with it.
func (c *Controller) AskDocument(ctx context.Context, question string) Reply {
	if question == "" {
		return failed(ErrEmptyMessage)
	}
	doc, _, gen := c.session.DocumentSnapshot()
	if !doc.Loaded() {
		return failed(ErrNoDocument)
	}
	if !c.session.AppendDocumentTurn(gen, models.UserTurn(question)) {
		return failed(ErrNoDocument)
	}

	doc, history, snapGen := c.session.DocumentSnapshot()
	if snapGen != gen {
		return failed(errors.New("document changed while sending, ask again"))
	}

	answer, err := c.call(ctx, "Thinking...", func(ctx context.Context) (string, error) {
		return c.gateway.SendFollowup(ctx, doc.Text, history)
	})
	if err != nil {
		c.log.Warn("followup chat failed", zap.Error(err))
		return failed(err)
	}
	if err := ctx.Err(); err != nil {
		return failed(err)
	}

	if !c.session.AppendDocumentTurn(gen, models.AssistantTurn(answer)) {
		c.log.Info("dropping answer for replaced document", zap.String("filename", doc.Filename))
		return failed(errors.New("document was replaced before the answer arrived"))
	}
	c.log.Debug("followup answered", zap.Int("history_len", len(history)))
	return Reply{Content: answer}
}

func (c *Controller) call(ctx context.Context, label string, fn func(context.Context) (string, error)) (string, error) {
	if c.presenter != nil {
		c.presenter.Waiting(label)
		defer c.presenter.Done()
	}
	return fn(ctx)
}
