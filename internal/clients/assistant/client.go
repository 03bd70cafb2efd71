package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/venturely/venturely-backend/internal/logger"
	"github.com/venturely/venturely-backend/internal/pkg/httpx"
)

// Run status values reported by the assistant service.
const (
	RunStatusQueued         = "queued"
	RunStatusInProgress     = "in_progress"
	RunStatusRequiresAction = "requires_action"
	RunStatusCancelling     = "cancelling"
	RunStatusCompleted      = "completed"
	RunStatusFailed         = "failed"
	RunStatusCancelled      = "cancelled"
	RunStatusExpired        = "expired"
)

// IsTerminalRunStatus reports whether a run can no longer change state.
func IsTerminalRunStatus(status string) bool {
	switch status {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired:
		return true
	}
	return false
}

type Run struct {
	ID        string
	ThreadID  string
	Status    string
	LastError string
	Usage     json.RawMessage
}

type Message struct {
	ID        string
	Role      string
	Text      string
	CreatedAt int64
}

// Gateway is the client surface for the remote conversational-assistant
// service. Every call is a remote, billable operation; callers must check
// errors on each one.
type Gateway interface {
	CreateThread(ctx context.Context) (string, error)
	AddMessage(ctx context.Context, threadID, role, text string) (string, error)
	DeleteMessage(ctx context.Context, threadID, messageID string) error
	CreateRun(ctx context.Context, threadID, assistantID, instructions string) (Run, error)
	GetRun(ctx context.Context, threadID, runID string) (Run, error)
	ListRuns(ctx context.Context, threadID string, limit int) ([]Run, error)
	ListMessages(ctx context.Context, threadID, order string) ([]Message, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
}

func NewClient(log *logger.Logger) (Gateway, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeoutSec := 60
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxRetries := 3
	if v := os.Getenv("OPENAI_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	return &client{
		log:        log.With("service", "AssistantGateway"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: maxRetries,
	}, nil
}

// HTTPError is the gateway-level failure carrying the upstream status code.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("assistant http %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", "assistants=v2")

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
		return resp, raw, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("assistant decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !httpx.IsRetryableError(err) {
			return err
		}
		if attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("Assistant request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

type threadResponse struct {
	ID string `json:"id"`
}

func (c *client) CreateThread(ctx context.Context) (string, error) {
	var out threadResponse
	if err := c.do(ctx, http.MethodPost, "/v1/threads", map[string]any{}, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("assistant returned empty thread id")
	}
	return out.ID, nil
}

type messageResponse struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	CreatedAt int64  `json:"created_at"`
	Content   []struct {
		Type string `json:"type"`
		Text struct {
			Value string `json:"value"`
		} `json:"text"`
	} `json:"content"`
}

func (m messageResponse) firstText() string {
	for _, block := range m.Content {
		if block.Type == "text" {
			return block.Text.Value
		}
	}
	return ""
}

func (c *client) AddMessage(ctx context.Context, threadID, role, text string) (string, error) {
	payload := map[string]any{
		"role":    role,
		"content": text,
	}
	var out messageResponse
	path := fmt.Sprintf("/v1/threads/%s/messages", threadID)
	if err := c.do(ctx, http.MethodPost, path, payload, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *client) DeleteMessage(ctx context.Context, threadID, messageID string) error {
	path := fmt.Sprintf("/v1/threads/%s/messages/%s", threadID, messageID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

type runResponse struct {
	ID        string `json:"id"`
	ThreadID  string `json:"thread_id"`
	Status    string `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
	Usage json.RawMessage `json:"usage"`
}

func (r runResponse) toRun() Run {
	run := Run{
		ID:       r.ID,
		ThreadID: r.ThreadID,
		Status:   r.Status,
		Usage:    r.Usage,
	}
	if r.LastError != nil {
		run.LastError = r.LastError.Message
	}
	return run
}

func (c *client) CreateRun(ctx context.Context, threadID, assistantID, instructions string) (Run, error) {
	payload := map[string]any{
		"assistant_id": assistantID,
	}
	if strings.TrimSpace(instructions) != "" {
		payload["instructions"] = instructions
	}
	var out runResponse
	path := fmt.Sprintf("/v1/threads/%s/runs", threadID)
	if err := c.do(ctx, http.MethodPost, path, payload, &out); err != nil {
		return Run{}, err
	}
	return out.toRun(), nil
}

func (c *client) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	var out runResponse
	path := fmt.Sprintf("/v1/threads/%s/runs/%s", threadID, runID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return Run{}, err
	}
	return out.toRun(), nil
}

func (c *client) ListRuns(ctx context.Context, threadID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	var out struct {
		Data []runResponse `json:"data"`
	}
	path := fmt.Sprintf("/v1/threads/%s/runs?limit=%d", threadID, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	runs := make([]Run, 0, len(out.Data))
	for _, r := range out.Data {
		runs = append(runs, r.toRun())
	}
	return runs, nil
}

func (c *client) ListMessages(ctx context.Context, threadID, order string) ([]Message, error) {
	if order == "" {
		order = "desc"
	}
	var out struct {
		Data []messageResponse `json:"data"`
	}
	path := fmt.Sprintf("/v1/threads/%s/messages?order=%s&limit=50", threadID, order)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	messages := make([]Message, 0, len(out.Data))
	for _, m := range out.Data {
		messages = append(messages, Message{
			ID:        m.ID,
			Role:      m.Role,
			Text:      m.firstText(),
			CreatedAt: m.CreatedAt,
		})
	}
	return messages, nil
}
