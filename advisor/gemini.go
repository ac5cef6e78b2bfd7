package advisor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hazyhaar/vizopt/safeguard"
)

// geminiClient talks to the generateContent REST API.
type geminiClient struct {
	endpoint  string
	model     string
	apiKey    string
	maxTokens int
	http      *http.Client
}

func newGemini(cfg Config) *geminiClient {
	return &geminiClient{
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		maxTokens: cfg.MaxTokens,
		http:      cfg.HTTPClient,
	}
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

func (g *geminiClient) generate(ctx context.Context, prompt string, img *inlineImage) (string, error) {
	parts := []geminiPart{{Text: prompt}}
	if img != nil {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: img.mimeType,
			Data:     base64.StdEncoding.EncodeToString(img.data),
		}})
	}
	reqBody := geminiRequest{Contents: []geminiContent{{Role: "user", Parts: parts}}}
	if g.maxTokens > 0 {
		reqBody.GenerationConfig = &geminiGenerationConfig{MaxOutputTokens: g.maxTokens}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	u := g.endpoint + "/v1beta/models/" + url.PathEscape(g.model) + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP POST %s: %w", u, err)
	}
	defer resp.Body.Close()

	raw, err := safeguard.LimitedReadAll(resp.Body, maxResponseBytes)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var out geminiResponse
	decErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(truncate(raw, 512)))
		if decErr == nil && out.Error != nil {
			msg = out.Error.Message
		}
		return "", &APIError{Provider: ProviderGemini, StatusCode: resp.StatusCode, Message: msg}
	}
	if decErr != nil {
		return "", &decodeError{err: decErr}
	}
	if out.Error != nil {
		return "", &APIError{Provider: ProviderGemini, StatusCode: out.Error.Code, Message: out.Error.Message}
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: %s", ErrBlocked, out.PromptFeedback.BlockReason)
	}
	if len(out.Candidates) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
