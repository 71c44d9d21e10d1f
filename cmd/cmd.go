package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/thinktank/internal/models"
	"github.com/xhad/thinktank/pkg/chat"
	"github.com/xhad/thinktank/pkg/document"
	"github.com/xhad/thinktank/pkg/scraper"
)

const helpText = `Commands:
  /mode indexed|document   switch between indexed docs and the uploaded document
  /upload <path|url>       extract a PDF, text file or web page and chat about it
  /history                 show the transcript of the current mode
  /reset                   clear both transcripts and the loaded document
  /help                    show this help
  exit                     quit`

// terminal is the interactive front end for one session.
type terminal struct {
	in         io.Reader
	out        io.Writer
	controller *chat.Controller
	processor  document.Processor
	scraper    *scraper.Scraper

	spinner  *progressbar.ProgressBar
	stopTick chan struct{}
	tickDone chan struct{}
}

func newTerminal(in io.Reader, out io.Writer, processor document.Processor, pages *scraper.Scraper) *terminal {
	return &terminal{
		in:        in,
		out:       out,
		processor: processor,
		scraper:   pages,
	}
}

func getSpinner(out io.Writer, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
}

// Waiting starts the spinner shown while a backend call is outstanding.
func (t *terminal) Waiting(label string) {
	t.spinner = getSpinner(t.out, " "+label)
	t.stopTick = make(chan struct{})
	t.tickDone = make(chan struct{})

	go func(bar *progressbar.ProgressBar, stop, done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				bar.Add(1)
			}
		}
	}(t.spinner, t.stopTick, t.tickDone)
}

func (t *terminal) Done() {
	if t.spinner == nil {
		return
	}
	close(t.stopTick)
	<-t.tickDone
	t.spinner.Finish()
	t.spinner = nil
	fmt.Fprint(t.out, "\r")
}

func (t *terminal) Run(ctx context.Context) error {
	color.New(color.FgCyan).Fprintln(t.out, "\nThink Tank AI Enterprise Chatbot (type /help for commands, 'exit' to quit)")
	t.printMode()

	done := make(chan struct{})
	defer close(done)
	lines, scanErr := t.readLines(done)

	userPrompt := color.New(color.FgGreen)

	for {
		userPrompt.Fprint(t.out, "\nYou: ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(t.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			line = l
		}

		if quit := t.handleLine(ctx, strings.TrimSpace(line)); quit {
			return nil
		}
	}
}

// readLines feeds input lines to the returned channel until the input ends
// or done is closed. The line channel is closed when the reader stops.
func (t *terminal) readLines(done <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(t.in)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
	}()
	return lines, scanErr
}

// handleLine runs one line of input and reports whether the user asked to
// quit.
func (t *terminal) handleLine(ctx context.Context, line string) bool {
	sess := t.controller.Session()

	switch {
	case line == "":
		return false

	case strings.ToLower(line) == "exit" || line == "/quit":
		return true

	case line == "/help":
		fmt.Fprintln(t.out, helpText)

	case strings.HasPrefix(line, "/mode"):
		arg := strings.TrimSpace(strings.TrimPrefix(line, "/mode"))
		mode, err := models.ParseMode(arg)
		if err != nil {
			t.printError(err.Error())
			return false
		}
		sess.SetMode(mode)
		t.printMode()

	case strings.HasPrefix(line, "/upload"):
		path := strings.TrimSpace(strings.TrimPrefix(line, "/upload"))
		if path == "" {
			t.printError("usage: /upload <path>")
			return false
		}
		t.upload(ctx, path)

	case line == "/history":
		t.printHistory()

	case line == "/reset":
		sess.Reset()
		color.New(color.FgYellow).Fprintln(t.out, "Session cleared.")

	case strings.HasPrefix(line, "/"):
		t.printError(fmt.Sprintf("unknown command %s, type /help", strings.Fields(line)[0]))

	default:
		t.ask(ctx, line)
	}
	return false
}

func (t *terminal) ask(ctx context.Context, msg string) {
	reply := t.controller.Ask(ctx, msg)
	if !reply.OK() {
		t.printError(reply.Render())
		return
	}
	color.New(color.FgCyan).Fprint(t.out, "\nAssistant: ")
	fmt.Fprintln(t.out, reply.Content)
}

func (t *terminal) upload(ctx context.Context, path string) {
	var reply chat.Reply
	if scraper.IsURL(path) {
		t.Waiting("Fetching " + path)
		page, err := t.scraper.Fetch(ctx, path)
		t.Done()
		if err != nil {
			t.printError(err.Error())
			return
		}
		text := page.Text()
		reply = t.controller.LoadDocument(ctx, strings.NewReader(text), page.Filename(), int64(len(text)))
	} else {
		f, upload, err := t.processor.Open(path)
		if err != nil {
			t.printError(err.Error())
			return
		}
		defer f.Close()
		reply = t.controller.LoadDocument(ctx, f, upload.Filename, upload.Size)
	}
	if !reply.OK() {
		t.printError(reply.Render())
		return
	}
	if reply.Content == "" {
		color.New(color.FgYellow).Fprintln(t.out, "! No text was found in the document. Upload another one to ask questions.")
		return
	}

	stats := t.processor.Stats(reply.Content)
	color.New(color.FgGreen).Fprintf(t.out, "✓ Document loaded. You can now ask questions. (%d words)\n", stats.Words)
	fmt.Fprintln(t.out, t.processor.Preview(reply.Content))

	if t.controller.Session().Mode() != models.ModeDocument {
		t.controller.Session().SetMode(models.ModeDocument)
		t.printMode()
	}
}

func (t *terminal) printMode() {
	sess := t.controller.Session()
	mode := sess.Mode()
	switch mode {
	case models.ModeDocument:
		doc, _, _ := sess.DocumentSnapshot()
		if doc.Loaded() {
			color.New(color.FgBlue).Fprintf(t.out, "Mode: ask questions about %s\n", doc.Filename)
		} else {
			color.New(color.FgBlue).Fprintln(t.out, "Mode: uploaded document (use /upload <path> first)")
		}
	default:
		color.New(color.FgBlue).Fprintln(t.out, "Mode: chat with indexed docs")
	}
}

func (t *terminal) printHistory() {
	sess := t.controller.Session()
	history := sess.Transcript(sess.Mode().Transcript())
	if len(history) == 0 {
		fmt.Fprintln(t.out, "No messages yet.")
		return
	}
	for _, turn := range history {
		if turn.Role == models.RoleUser {
			color.New(color.FgGreen).Fprint(t.out, "You: ")
		} else {
			color.New(color.FgCyan).Fprint(t.out, "Assistant: ")
		}
		fmt.Fprintln(t.out, turn.Content)
	}
}

func (t *terminal) printError(msg string) {
	if !strings.HasPrefix(msg, "Error: ") {
		msg = "Error: " + msg
	}
	color.New(color.FgRed).Fprintln(t.out, msg)
}
