package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"page-match/config"
)

// LLMClient is the generative-model collaborator. GenerateStruct asks the
// model for a reply conforming to the given JSON schema and decodes it
// into out. The result is tagged three ways:
//
//	(true, nil)  — conforming reply, out is populated
//	(false, nil) — model replied but the reply does not conform (refusal,
//	               empty output, undecodable JSON); out is untouched junk
//	(_, err)     — transport failure (connectivity, timeout, HTTP error)
//
// Non-conformance is deliberately not an error: callers degrade to a safe
// default instead of failing the request.
type LLMClient interface {
	GenerateStruct(ctx context.Context, system, user, schemaName string, schema map[string]any, out any) (bool, error)
}

type openAIClient struct {
	log        *zap.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int
}

// NewOpenAIClient builds the OpenAI-backed LLMClient from config.
func NewOpenAIClient(cfg *config.Config, log *zap.Logger) (LLMClient, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, errors.New("missing OPENAI_API_KEY")
	}
	return &openAIClient{
		log:        log,
		baseURL:    strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		apiKey:     cfg.OpenAIAPIKey,
		model:      cfg.OpenAIModel,
		httpClient: &http.Client{Timeout: time.Duration(cfg.OpenAITimeoutSeconds) * time.Second},
		maxRetries: cfg.OpenAIMaxRetries,
	}, nil
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
	return code == 408 || code == 429 || (code >= 500 && code <= 599)
}

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var httpErr *openAIHTTPError
	if errors.As(err, &httpErr) {
		return isRetryableHTTP(httpErr.StatusCode)
	}
	return false
}

// jitterSleep spreads retries by +/- 20% around the base delay.
func jitterSleep(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delta := base.Seconds() * 0.2
	low := base.Seconds() - delta
	v := low + rand.Float64()*2*delta
	return time.Duration(v * float64(time.Second))
}

func (c *openAIClient) doOnce(ctx context.Context, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *openAIClient) do(ctx context.Context, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, path, body)
		if err == nil {
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w", uErr)
			}
			return nil
		}
		if !isRetryableErr(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := backoff
		if resp != nil {
			if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
				if d, parseErr := time.ParseDuration(ra + "s"); parseErr == nil && d > 0 {
					sleepFor = d
				}
			}
		}
		if sleepFor > 10*time.Second {
			sleepFor = 10 * time.Second
		}
		sleepFor = jitterSleep(sleepFor)

		c.log.Warn("OpenAI request retrying",
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", c.maxRetries),
			zap.Duration("sleep", sleepFor),
			zap.Error(err),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}
	return errors.New("unreachable retry loop")
}

type responsesRequest struct {
	Model string `json:"model"`
	Input []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"input"`
	Text struct {
		Format map[string]any `json:"format"`
	} `json:"text"`
	Temperature float64 `json:"temperature,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type    string `json:"type"`
			Text    string `json:"text,omitempty"`
			Refusal string `json:"refusal,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
}

func (c *openAIClient) GenerateStruct(ctx context.Context, system, user, schemaName string, schema map[string]any, out any) (bool, error) {
	if schemaName == "" || schema == nil {
		return false, errors.New("schemaName and schema required")
	}

	req := responsesRequest{
		Model: c.model,
		Input: []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.2,
	}
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   schemaName,
		"schema": schema,
		"strict": true,
	}

	var resp responsesResponse
	if err := c.do(ctx, "/v1/responses", req, &resp); err != nil {
		return false, err
	}

	// Refusals arrive as a content part of type "refusal" inside the
	// assistant message, not as a top-level field.
	var jsonText strings.Builder
	for _, item := range resp.Output {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}
		for _, part := range item.Content {
			switch part.Type {
			case "refusal":
				c.log.Warn("Model refused structured request",
					zap.String("schema", schemaName),
					zap.String("refusal", part.Refusal))
				return false, nil
			case "output_text":
				jsonText.WriteString(part.Text)
			}
		}
	}
	if jsonText.Len() == 0 {
		c.log.Warn("Model returned no output text", zap.String("schema", schemaName))
		return false, nil
	}

	if err := json.Unmarshal([]byte(jsonText.String()), out); err != nil {
		c.log.Warn("Model reply did not conform to requested schema",
			zap.String("schema", schemaName),
			zap.Error(err))
		return false, nil
	}
	return true, nil
}
