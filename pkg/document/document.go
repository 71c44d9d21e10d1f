package document

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xhad/thinktank/internal/models"
)

var (
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file too large")
)

type ProcessorConfig struct {
	AllowedExtensions []string
	MaxBytes          int64
	PreviewSentences  int
}

// Processor checks uploads before they are sent for extraction and condenses
// extracted text for display.
type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".pdf", ".txt"}
	}
	if config.MaxBytes == 0 {
		config.MaxBytes = 20 << 20
	}
	if config.PreviewSentences == 0 {
		config.PreviewSentences = 3
	}
	for i, ext := range config.AllowedExtensions {
		config.AllowedExtensions[i] = strings.ToLower(ext)
	}

	return Processor{
		config: config,
	}
}

func (p *Processor) AllowedExtensions() []string {
	return append([]string(nil), p.config.AllowedExtensions...)
}

// Validate checks the filename extension and size of an upload.
func (p *Processor) Validate(filename string, size int64) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !contains(p.config.AllowedExtensions, ext) {
		return fmt.Errorf("%w: %q (allowed: %s)", ErrUnsupportedFile, filename,
			strings.Join(p.config.AllowedExtensions, ", "))
	}
	if size > p.config.MaxBytes {
		return fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrFileTooLarge, filename, size, p.config.MaxBytes)
	}
	return nil
}

// Open opens a local file for upload after validating it. The caller closes
// the returned file.
func (p *Processor) Open(path string) (*os.File, models.Upload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, models.Upload{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, models.Upload{}, fmt.Errorf("%s is a directory", path)
	}

	upload := models.Upload{
		Filename: filepath.Base(path),
		Size:     info.Size(),
		Metadata: map[string]interface{}{
			"path":    path,
			"modTime": info.ModTime(),
		},
	}
	if err := p.Validate(upload.Filename, upload.Size); err != nil {
		return nil, upload, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, upload, fmt.Errorf("cannot open %s: %w", path, err)
	}
	return f, upload, nil
}

type Stats struct {
	Characters int
	Words      int
	Sentences  int
}

func (p *Processor) Stats(text string) Stats {
	clean := cleanText(text)
	if clean == "" {
		return Stats{}
	}
	return Stats{
		Characters: len([]rune(clean)),
		Words:      len(strings.Fields(clean)),
		Sentences:  len(splitIntoSentences(clean)),
	}
}

// Preview returns the first sentences of text with whitespace collapsed.
func (p *Processor) Preview(text string) string {
	sentences := splitIntoSentences(cleanText(text))
	if len(sentences) > p.config.PreviewSentences {
		return strings.Join(sentences[:p.config.PreviewSentences], " ") + " ..."
	}
	return strings.Join(sentences, " ")
}

func cleanText(text string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}

func splitIntoSentences(text string) []string {
	// Basic sentence splitting on terminal punctuation followed by a space
	sentenceEnders := []string{". ", "! ", "? "}
	var sentences []string

	current := strings.Builder{}

	for i := 0; i < len(text); i++ {
		current.WriteByte(text[i])

		for _, ender := range sentenceEnders {
			if strings.HasSuffix(current.String(), ender) {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
				break
			}
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
