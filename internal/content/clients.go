package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// LLMClient completes one prompt. Prompt orchestration is all this backend
// does; the language model itself is an external collaborator.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Recognizer extracts text from an uploaded image by URL.
type Recognizer interface {
	Recognize(ctx context.Context, imageURL string) (string, error)
}

// HTTPLLMClient posts prompts to a hosted completion API.
type HTTPLLMClient struct {
	BaseURL string
	APIKey  string
	Model   string
	client  *http.Client
}

func NewHTTPLLMClient(baseURL, apiKey, model string) *HTTPLLMClient {
	return &HTTPLLMClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *HTTPLLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]string{"model": c.Model, "prompt": prompt})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm provider unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm provider returned status %d", resp.StatusCode)
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("llm provider returned invalid JSON: %w", err)
	}
	return out.Text, nil
}

// HTTPRecognizer calls a hosted OCR API.
type HTTPRecognizer struct {
	BaseURL string
	APIKey  string
	client  *http.Client
}

func NewHTTPRecognizer(baseURL, apiKey string) *HTTPRecognizer {
	return &HTTPRecognizer{
		BaseURL: baseURL,
		APIKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPRecognizer) Recognize(ctx context.Context, imageURL string) (string, error) {
	body, err := json.Marshal(map[string]string{"image_url": imageURL})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/recognize", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr provider unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("ocr provider returned status %d", resp.StatusCode)
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ocr provider returned invalid JSON: %w", err)
	}
	return out.Text, nil
}
