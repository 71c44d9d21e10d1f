package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/xhad/thinktank/internal/models"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate backend config
	if c.Backend.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "backend.url",
			Message: "backend URL is required",
		})
	} else if u, err := url.Parse(c.Backend.URL); err != nil || u.Host == "" ||
		(u.Scheme != "http" && u.Scheme != "https") {
		errors = append(errors, ValidationError{
			Field:   "backend.url",
			Message: "invalid backend URL",
		})
	}

	if c.Backend.Timeout < 0 || c.Backend.Timeout > 10*time.Minute {
		errors = append(errors, ValidationError{
			Field:   "backend.timeout",
			Message: "timeout must be between 0 and 10m",
		})
	}

	if c.Backend.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "backend.rate_limit",
			Message: "rate_limit cannot be negative",
		})
	}

	// Validate upload config
	for _, ext := range c.Upload.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			errors = append(errors, ValidationError{
				Field:   "upload.allowed_extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	if c.Upload.MaxBytes < 1 {
		errors = append(errors, ValidationError{
			Field:   "upload.max_bytes",
			Message: "max_bytes must be positive",
		})
	}

	// Validate UI config
	if _, err := models.ParseMode(c.UI.DefaultMode); err != nil {
		errors = append(errors, ValidationError{
			Field:   "ui.default_mode",
			Message: "default_mode must be indexed or document",
		})
	}

	if c.UI.PreviewSentences < 1 {
		errors = append(errors, ValidationError{
			Field:   "ui.preview_sentences",
			Message: "preview_sentences must be positive",
		})
	}

	return errors
}
