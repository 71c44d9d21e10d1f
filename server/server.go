package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xhad/thinktank/internal/models"
	"github.com/xhad/thinktank/internal/types"
	"github.com/xhad/thinktank/pkg/chat"
	"github.com/xhad/thinktank/pkg/document"
	"github.com/xhad/thinktank/pkg/logger"
	"github.com/xhad/thinktank/pkg/scraper"
	"github.com/xhad/thinktank/pkg/session"
	"go.uber.org/zap"
)

//go:embed static
var static embed.FS

const maxFrameBytes = 64 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the page is served by this same process
	},
}

// Request is a frame sent by the page.
type Request struct {
	Type     string `json:"type"`
	Content  string `json:"content,omitempty"`
	Filename string `json:"filename,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// Message is a frame sent to the page.
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// HistoryView is the session state the page renders after a reconnect,
// mode switch or reset.
type HistoryView struct {
	Mode           string            `json:"mode"`
	Indexed        models.Transcript `json:"indexed"`
	Document       models.Transcript `json:"document"`
	DocumentName   string            `json:"document_name,omitempty"`
	DocumentLoaded bool              `json:"document_loaded"`
}

type DocumentView struct {
	Filename string         `json:"filename"`
	Preview  string         `json:"preview"`
	Stats    document.Stats `json:"stats"`
}

type Config struct {
	Addr        string
	DefaultMode models.Mode
}

// WSServer serves the chat page. Every WebSocket connection gets its own
// session, which ends when the connection closes.
type WSServer struct {
	config    Config
	gateway   types.Gateway
	processor document.Processor
	scraper   *scraper.Scraper
	log       *zap.Logger
}

func NewWSServer(config Config, gateway types.Gateway, processor document.Processor, pages *scraper.Scraper, log *zap.Logger) *WSServer {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &WSServer{
		config:    config,
		gateway:   gateway,
		processor: processor,
		scraper:   pages,
		log:       log,
	}
}

// Handler returns the routes of the server.
func (s *WSServer) Handler() http.Handler {
	page, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(page)))
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *WSServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting chat server", zap.String("addr", s.config.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// conn is one connected page and the session it owns.
type conn struct {
	ws         *websocket.Conn
	writeMu    sync.Mutex
	controller *chat.Controller
	processor  document.Processor
	scraper    *scraper.Scraper
	log        *zap.Logger
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()
	ws.SetReadLimit(maxFrameBytes)

	sess := session.New()
	sess.SetMode(s.config.DefaultMode)
	log := s.log.With(zap.String("session", sess.ID()))

	c := &conn{
		ws:        ws,
		processor: s.processor,
		scraper:   s.scraper,
		log:       log,
	}
	c.controller = chat.New(sess, s.gateway,
		chat.WithLogger(s.log),
		chat.WithValidator(s.processor.Validate),
		chat.WithPresenter(c),
	)

	log.Info("session started", zap.String("remote", r.RemoteAddr))
	defer log.Info("session ended")

	c.sendHistory()

	// Frames are handled one at a time so transcript updates keep the order
	// in which the user sent them.
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("read failed", zap.Error(err))
			}
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.send("error", "Error: malformed frame", nil)
			continue
		}

		c.handle(r.Context(), req)
	}
}

func (c *conn) handle(ctx context.Context, req Request) {
	sess := c.controller.Session()

	switch req.Type {
	case "mode":
		mode, err := models.ParseMode(req.Content)
		if err != nil {
			c.send("error", "Error: "+err.Error(), nil)
			return
		}
		sess.SetMode(mode)
		c.sendHistory()

	case "chat":
		c.send("user", req.Content, nil)
		reply := c.controller.Ask(ctx, req.Content)
		if !reply.OK() {
			c.send("error", reply.Render(), nil)
			return
		}
		c.send("assistant", reply.Content, nil)

	case "upload":
		reply := c.controller.LoadDocument(ctx, bytes.NewReader(req.Data), req.Filename, int64(len(req.Data)))
		c.loaded(req.Filename, reply)

	case "fetch":
		if c.scraper == nil {
			c.send("error", "Error: loading web pages is disabled", nil)
			return
		}
		c.Waiting("Fetching " + req.Content)
		page, err := c.scraper.Fetch(ctx, req.Content)
		c.Done()
		if err != nil {
			c.send("error", "Error: "+err.Error(), nil)
			return
		}
		text := page.Text()
		reply := c.controller.LoadDocument(ctx, strings.NewReader(text), page.Filename(), int64(len(text)))
		c.loaded(page.Filename(), reply)

	case "history":
		c.sendHistory()

	case "reset":
		sess.Reset()
		c.sendHistory()

	default:
		c.send("error", fmt.Sprintf("Error: unknown frame type %q", req.Type), nil)
	}
}

func (c *conn) loaded(filename string, reply chat.Reply) {
	if !reply.OK() {
		c.send("error", reply.Render(), nil)
		return
	}
	if reply.Content == "" {
		c.send("error", "Error: no text was found in "+filename, nil)
		c.sendHistory()
		return
	}
	c.send("document", "Document loaded. You can now ask questions.", DocumentView{
		Filename: filename,
		Preview:  c.processor.Preview(reply.Content),
		Stats:    c.processor.Stats(reply.Content),
	})
	c.sendHistory()
}

func (c *conn) sendHistory() {
	sess := c.controller.Session()
	doc, docHistory, _ := sess.DocumentSnapshot()
	c.send("history", "", HistoryView{
		Mode:           sess.Mode().String(),
		Indexed:        sess.Transcript(models.TranscriptIndexed),
		Document:       docHistory,
		DocumentName:   doc.Filename,
		DocumentLoaded: doc.Loaded(),
	})
}

// Waiting shows the page's waiting indicator.
func (c *conn) Waiting(label string) {
	c.send("status", label, nil)
}

func (c *conn) Done() {
	c.send("status", "", nil)
}

func (c *conn) send(msgType, content string, data interface{}) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	msg := Message{
		Type:    msgType,
		Content: content,
		Data:    data,
	}
	if err := c.ws.WriteJSON(msg); err != nil {
		c.log.Debug("write failed", zap.String("type", msgType), zap.Error(err))
	}
}
