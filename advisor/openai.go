package advisor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hazyhaar/vizopt/safeguard"
)

// openaiClient talks to an OpenAI-compatible /chat/completions API.
type openaiClient struct {
	endpoint  string
	model     string
	apiKey    string
	maxTokens int
	http      *http.Client
}

func newOpenAI(cfg Config) *openaiClient {
	return &openaiClient{
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		maxTokens: cfg.MaxTokens,
		http:      cfg.HTTPClient,
	}
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatContent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (o *openaiClient) generate(ctx context.Context, prompt string, img *inlineImage) (string, error) {
	content := []chatContent{{Type: "text", Text: prompt}}
	if img != nil {
		content = append(content, chatContent{
			Type: "image_url",
			ImageURL: &chatImageURL{
				URL: "data:" + img.mimeType + ";base64," + base64.StdEncoding.EncodeToString(img.data),
			},
		})
	}
	body, err := json.Marshal(chatRequest{
		Model:     o.model,
		Messages:  []chatMessage{{Role: "user", Content: content}},
		MaxTokens: o.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	u := o.endpoint + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP POST %s: %w", u, err)
	}
	defer resp.Body.Close()

	raw, err := safeguard.LimitedReadAll(resp.Body, maxResponseBytes)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var out chatResponse
	decErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(truncate(raw, 512)))
		if decErr == nil && out.Error != nil {
			msg = out.Error.Message
		}
		return "", &APIError{Provider: ProviderOpenAI, StatusCode: resp.StatusCode, Message: msg}
	}
	if decErr != nil {
		return "", &decodeError{err: decErr}
	}
	if out.Error != nil {
		return "", &APIError{Provider: ProviderOpenAI, StatusCode: resp.StatusCode, Message: out.Error.Message}
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return out.Choices[0].Message.Content, nil
}
