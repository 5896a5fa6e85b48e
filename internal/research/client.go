// Package research talks to the external deep research service and turns its
// reports into facts.
package research

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	MinDepth = 3
	MaxDepth = 10

	DefaultTimeout = 240 * time.Second
	healthTimeout  = 5 * time.Second
	userAgent      = "meeting-agent/1.0"
)

var (
	ErrCircuitOpen = errors.New("deep research circuit open")
	ErrRejected    = errors.New("deep research rejected request")
)

// StatusError wraps non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("deep research: status=%d body=%s", e.StatusCode, e.Body)
}

// Transient reports whether the failure is worth one retry at lower depth.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusRequestTimeout || se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

type Request struct {
	Topic          string `json:"topic"`
	ModelProvider  string `json:"model_provider"`
	MaxSteps       int    `json:"max_steps"`
	SearchProvider string `json:"search_provider"`
}

type Report struct {
	Report           string   `json:"report"`
	AvgQuality       float64  `json:"avg_quality"`
	StepsCompleted   int      `json:"steps_completed"`
	TotalTimeSeconds float64  `json:"total_time_seconds"`
	Plan             []string `json:"plan,omitempty"`
	ModelProvider    string   `json:"model_provider,omitempty"`
}

type Health struct {
	Status     string `json:"status"`
	AgentReady bool   `json:"agent_ready"`
}

// Client calls POST /research and GET /health. A zero Client is unusable;
// build one with NewClient.
type Client struct {
	BaseURL        string
	APIKey         string
	ModelProvider  string
	SearchProvider string
	HTTPClient     *http.Client
	Timeout        time.Duration
	Logger         *zap.Logger

	breaker *Breaker
}

func NewClient(baseURL, apiKey string, breaker *Breaker) *Client {
	if breaker == nil {
		breaker = NewBreaker(DefaultBreakerConfig())
	}
	return &Client{
		BaseURL:        baseURL,
		APIKey:         apiKey,
		ModelProvider:  "gemini",
		SearchProvider: "tavily",
		Timeout:        DefaultTimeout,
		Logger:         zap.NewNop(),
		breaker:        breaker,
	}
}

// ClampDepth bounds a requested depth to the range the service accepts.
func ClampDepth(depth int) int {
	if depth < MinDepth {
		return MinDepth
	}
	if depth > MaxDepth {
		return MaxDepth
	}
	return depth
}

// Research runs one synchronous research job. depth is clamped before it is
// sent.
func (c *Client) Research(ctx context.Context, topic string, depth int) (Report, error) {
	if strings.TrimSpace(topic) == "" {
		return Report{}, fmt.Errorf("%w: empty topic", ErrRejected)
	}
	if err := c.breaker.Allow(); err != nil {
		return Report{}, err
	}
	req := Request{
		Topic:          topic,
		ModelProvider:  c.ModelProvider,
		MaxSteps:       ClampDepth(depth),
		SearchProvider: c.SearchProvider,
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var out Report
	err := c.do(cctx, http.MethodPost, "/research", req, &out)
	c.breaker.Mark(breakerOutcome(err))
	if err != nil {
		c.logger().Warn("deep research failed", zap.Int("max_steps", req.MaxSteps), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return Report{}, err
	}
	c.logger().Info("deep research completed",
		zap.Int("max_steps", req.MaxSteps),
		zap.Int("steps", out.StepsCompleted),
		zap.Float64("quality", out.AvgQuality),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

// breakerOutcome keeps client-side validation errors from tripping the breaker.
func breakerOutcome(err error) error {
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 && !Transient(err) {
		return nil
	}
	return err
}

// Health reports whether the service is up and its agent is ready.
func (c *Client) Health(ctx context.Context) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	var h Health
	if err := c.do(cctx, http.MethodGet, "/health", nil, &h); err != nil {
		return false, err
	}
	return h.Status == "healthy" && h.AgentReady, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	url := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	correlationID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Correlation-ID", correlationID)
	req.Header.Set("X-Request-ID", correlationID)
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", endpoint, err)
		}
	}
	return nil
}

func (c *Client) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
