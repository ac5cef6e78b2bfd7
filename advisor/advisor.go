// Package advisor asks a hosted vision-language model for design
// suggestions about a section image.
//
// Two wire formats are supported: Gemini generateContent and
// OpenAI-compatible chat completions (OpenAI, OpenRouter, Groq).
//
//	adv, err := advisor.New(advisor.Config{APIKey: key})
//	b, err := adv.Suggest(ctx, advisor.Request{
//	    Image:   jpegBytes,
//	    Section: "header",
//	})
//	// b.Suggestions holds the numbered lines of the answer.
package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Provider names.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 4 << 20

// DefaultWebsiteType is used when a request does not name one.
const DefaultWebsiteType = "e-commerce"

// EmptyReasonNoNumbered is set on a Bundle whose answer had text but no
// numbered suggestion line.
const EmptyReasonNoNumbered = "response contained no numbered suggestions"

// Advisor produces suggestions for section images.
type Advisor interface {
	// Suggest sends the section prompt and the image and parses the
	// numbered suggestions out of the answer.
	Suggest(ctx context.Context, req Request) (Bundle, error)

	// Chat sends a text-only prompt and returns the trimmed answer.
	Chat(ctx context.Context, prompt string) (string, error)

	// Model returns the model name.
	Model() string
}

// Request is one suggestion request.
type Request struct {
	Image       []byte
	MIMEType    string // default image/jpeg
	Section     string
	WebsiteType string // default DefaultWebsiteType
}

// Bundle is the parsed answer for one section.
type Bundle struct {
	WebsiteType string   `json:"website_type"`
	SectionType string   `json:"section_type"`
	Suggestions []string `json:"suggestions"`
	EmptyReason string   `json:"empty_reason,omitempty"`
}

// Config configures the advisor client.
type Config struct {
	// Provider is "gemini" or "openai". Default: gemini.
	Provider string `json:"provider" yaml:"provider"`

	// Endpoint is the API base URL. Default depends on the provider:
	// https://generativelanguage.googleapis.com for gemini,
	// https://api.openai.com/v1 for openai.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// APIKey authenticates against the provider. Required.
	APIKey string `json:"-" yaml:"api_key"`

	// Model name. Default: gemini-1.5-pro for gemini, gpt-4o-mini for openai.
	Model string `json:"model" yaml:"model"`

	// MaxTokens caps the answer length. 0 = provider default.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// Timeout per HTTP attempt. Default: 60s.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxRetries on transport errors, 429 and 5xx. 0 disables retries.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// Backoff before the first retry, doubled each attempt. Default: 1s.
	Backoff time.Duration `json:"backoff" yaml:"backoff"`

	// HTTPClient overrides the transport. Default: a new http.Client.
	HTTPClient *http.Client `json:"-" yaml:"-"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderGemini
	}
	switch c.Provider {
	case ProviderGemini:
		if c.Endpoint == "" {
			c.Endpoint = "https://generativelanguage.googleapis.com"
		}
		if c.Model == "" {
			c.Model = "gemini-1.5-pro"
		}
	case ProviderOpenAI:
		if c.Endpoint == "" {
			c.Endpoint = "https://api.openai.com/v1"
		}
		if c.Model == "" {
			c.Model = "gpt-4o-mini"
		}
	}
	c.Endpoint = strings.TrimRight(c.Endpoint, "/")
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// backend sends one prompt, with an optional inline image, and returns
// the raw answer text.
type backend interface {
	generate(ctx context.Context, prompt string, img *inlineImage) (string, error)
}

type inlineImage struct {
	mimeType string
	data     []byte
}

// client implements Advisor on top of a backend.
type client struct {
	cfg     Config
	backend backend
}

// New creates an Advisor for the configured provider.
func New(cfg Config) (Advisor, error) {
	cfg.defaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("advisor: %s api key is required", cfg.Provider)
	}

	var b backend
	switch cfg.Provider {
	case ProviderGemini:
		b = newGemini(cfg)
	case ProviderOpenAI:
		b = newOpenAI(cfg)
	default:
		return nil, fmt.Errorf("advisor: unknown provider %q", cfg.Provider)
	}
	return &client{cfg: cfg, backend: b}, nil
}

func (c *client) Model() string { return c.cfg.Model }

func (c *client) Suggest(ctx context.Context, req Request) (Bundle, error) {
	if len(req.Image) == 0 {
		return Bundle{}, fmt.Errorf("advisor: empty image for section %s", req.Section)
	}
	websiteType := req.WebsiteType
	if strings.TrimSpace(websiteType) == "" {
		websiteType = DefaultWebsiteType
	}
	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	text, err := c.call(ctx, Prompt(req.Section, websiteType), &inlineImage{mimeType: mimeType, data: req.Image})
	if err != nil {
		return Bundle{}, fmt.Errorf("advisor: suggest %s: %w", req.Section, err)
	}

	b := Bundle{
		WebsiteType: websiteType,
		SectionType: req.Section,
		Suggestions: ParseSuggestions(text),
	}
	if len(b.Suggestions) == 0 {
		b.EmptyReason = EmptyReasonNoNumbered
	}
	return b, nil
}

func (c *client) Chat(ctx context.Context, prompt string) (string, error) {
	text, err := c.call(ctx, prompt, nil)
	if err != nil {
		return "", fmt.Errorf("advisor: chat: %w", err)
	}
	return text, nil
}

// call runs one generation with per-attempt timeout and retries. A blank
// answer is ErrEmptyResponse.
func (c *client) call(ctx context.Context, prompt string, img *inlineImage) (string, error) {
	var text string
	err := withRetry(ctx, c.cfg.MaxRetries, c.cfg.Backoff, c.cfg.Logger, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		out, err := c.backend.generate(attemptCtx, prompt, img)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(out)
		return nil
	})
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
