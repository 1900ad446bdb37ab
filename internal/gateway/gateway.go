// Package gateway wraps the external generative model behind retries, a
// circuit breaker, and a strict function-call schema. It is the only
// component allowed to spend model tokens.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/tansu/yanit/internal/intent"
)

const (
	defaultTimeout = 8 * time.Second
	maxRetries     = 2
	initialBackoff = 200 * time.Millisecond
)

// ErrCircuitOpen is returned while the breaker rejects calls. The pipeline
// must down-tier without waiting.
var ErrCircuitOpen = errors.New("model gateway: circuit open")

// ValidationError marks a model response that deviated from the schema.
// It is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "model response validation: " + e.Reason
}

// TransientError marks a retryable backend failure (timeout, 5xx, 429).
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient backend failure: %v", e.Err)
	}
	return fmt.Sprintf("transient backend failure: HTTP %d", e.Status)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Request is one resolution handed to the model.
type Request struct {
	Tenant         string
	NormText       string
	SessionSnippet string
}

// Response is the model's answer: either a validated function call or a
// direct textual reply, plus accounting.
type Response struct {
	Reply        string
	FunctionCall *intent.FunctionCall
	TokensIn     int
	TokensOut    int
	Latency      time.Duration
}

// Options configure a Client beyond the endpoint.
type Options struct {
	Model            string
	Timeout          time.Duration
	FailureThreshold int
	Cooldown         time.Duration
	Logger           *slog.Logger
	Now              func() time.Time
}

// Client talks to an OpenRouter-compatible chat completions endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *breaker
	logger     *slog.Logger
}

// NewClient creates a gateway Client for the given endpoint and key.
func NewClient(baseURL, apiKey string, opts Options) *Client {
	if opts.Model == "" {
		opts.Model = "google/gemini-2.0-flash-001"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      opts.Model,
		timeout:    opts.Timeout,
		httpClient: &http.Client{},
		breaker:    newBreaker(opts.FailureThreshold, opts.Cooldown, opts.Now),
		logger:     opts.Logger,
	}
}

// Open reports whether the breaker currently rejects calls, so the pipeline
// can skip tier 3 without paying a failed call.
func (c *Client) Open() bool { return c.breaker.Open() }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []tool        `json:"tools"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Resolve sends the utterance to the model and returns a validated response.
// Transient failures are retried with exponential backoff and jitter;
// validation failures are not retried. Every outcome feeds the breaker.
func (c *Client) Resolve(ctx context.Context, req Request) (*Response, error) {
	if !c.breaker.Allow() {
		return nil, ErrCircuitOpen
	}

	body, err := json.Marshal(c.buildChat(req))
	if err != nil {
		c.breaker.Success() // marshaling is our bug, not the backend's
		return nil, fmt.Errorf("marshaling chat request: %w", err)
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt-1)))
			backoff += time.Duration(rand.Int63n(int64(backoff / 2)))
			select {
			case <-ctx.Done():
				c.breaker.Failure()
				return nil, &TransientError{Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}

		resp, err := c.doCall(ctx, body)
		if err == nil {
			c.breaker.Success()
			resp.Latency = time.Since(start)
			return resp, nil
		}

		var verr *ValidationError
		if errors.As(err, &verr) {
			// A schema deviation is a deterministic model answer; retrying
			// burns budget for the same outcome.
			c.breaker.Success()
			return nil, err
		}

		lastErr = err
		c.logger.Warn("model call failed", "attempt", attempt+1, "error", err)
	}

	c.breaker.Failure()
	return nil, fmt.Errorf("model call after %d attempts: %w", maxRetries+1, lastErr)
}

func (c *Client) buildChat(req Request) chatRequest {
	messages := []chatMessage{{Role: "system", Content: systemPreamble}}
	if req.SessionSnippet != "" {
		messages = append(messages, chatMessage{
			Role:    "system",
			Content: "Önceki konuşma özeti: " + req.SessionSnippet,
		})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.NormText})
	return chatRequest{Model: c.model, Messages: messages, Tools: functionTools}
}

func (c *Client) doCall(ctx context.Context, body []byte) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return nil, &TransientError{Status: resp.StatusCode}
	default:
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("unparseable response body: %v", err)}
	}
	if len(cr.Choices) == 0 {
		return nil, &ValidationError{Reason: "response carries no choices"}
	}

	out := &Response{
		TokensIn:  cr.Usage.PromptTokens,
		TokensOut: cr.Usage.CompletionTokens,
	}

	msg := cr.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		fc, err := parseFunctionCall(msg.ToolCalls[0].Function.Name, msg.ToolCalls[0].Function.Arguments)
		if err != nil {
			return nil, err
		}
		out.FunctionCall = fc
		return out, nil
	}

	if strings.TrimSpace(msg.Content) == "" {
		return nil, &ValidationError{Reason: "neither tool call nor reply text"}
	}
	out.Reply = msg.Content
	return out, nil
}

// EstimateTokens sizes a request for budget admission before it is sent.
// Rough but stable: preamble plus utterance, four characters per token.
func EstimateTokens(req Request) int {
	chars := len(systemPreamble) + len(req.NormText) + len(req.SessionSnippet)
	return chars/4 + 64 // response allowance
}
