// Package assistant forwards free-form questions to the Gemini API.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Role of a conversation turn as understood by Gemini.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one message in a conversation.
type Turn struct {
	Role string
	Text string
}

// Gemini calls the generateContent endpoint.
type Gemini struct {
	baseURL    string
	apiKey     string
	model      string
	system     string
	httpClient HTTPClient
}

// NewGemini creates a client for model authenticated with apiKey.
func NewGemini(apiKey, model, system string, httpClient HTTPClient) *Gemini {
	return &Gemini{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		model:      model,
		system:     system,
		httpClient: httpClient,
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
	Contents          []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Generate sends the conversation and returns the model's reply text.
func (g *Gemini) Generate(ctx context.Context, turns []Turn) (string, error) {
	reqBody := generateRequest{Contents: make([]content, 0, len(turns))}
	if g.system != "" {
		reqBody.SystemInstruction = &content{Parts: []part{{Text: g.system}}}
	}
	for _, t := range turns {
		reqBody.Contents = append(reqBody.Contents, content{Role: t.Role, Parts: []part{{Text: t.Text}}})
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("gemini error %d %s: %s", out.Error.Code, out.Error.Status, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("empty response")
	}

	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("empty response")
	}
	return text, nil
}
