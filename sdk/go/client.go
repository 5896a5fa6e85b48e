package agendasdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal meeting agent HTTP API client.
type Client struct {
	BaseURL     string
	OrgID       string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, orgID string) *Client {
	return &Client{
		BaseURL: baseURL,
		OrgID:   orgID,
		Timeout: 60 * time.Second,
	}
}

// PlanRequest mirrors the plan endpoint body.
type PlanRequest struct {
	Subject         string `json:"subject,omitempty"`
	Prompt          string `json:"prompt,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Language        string `json:"language,omitempty"`
	MacroMode       string `json:"macro_mode,omitempty"`
	Persist         bool   `json:"persist,omitempty"`
}

type Bullet struct {
	Text  string `json:"text"`
	Why   string `json:"why"`
	Owner string `json:"owner,omitempty"`
	Due   string `json:"due,omitempty"`
}

type Section struct {
	Title        string `json:"title"`
	Minutes      int    `json:"minutes"`
	WorkstreamID string `json:"workstream_id,omitempty"`
	Items        []struct {
		Heading string   `json:"heading"`
		Bullets []Bullet `json:"bullets"`
	} `json:"items"`
}

// Proposal represents an agenda proposal (partial).
type Proposal struct {
	ID     string `json:"id"`
	OrgID  string `json:"org_id"`
	Status string `json:"status"`
	Choice string `json:"choice"`
	Reason string `json:"reason"`
	Agenda struct {
		Title    string    `json:"title"`
		Minutes  int       `json:"minutes"`
		Sections []Section `json:"sections"`
	} `json:"agenda"`
	SupportingFactIDs []string       `json:"supporting_fact_ids"`
	Metadata          map[string]any `json:"_metadata"`
	CreatedAt         string         `json:"created_at,omitempty"`
}

type Workstream struct {
	ID          string   `json:"id"`
	OrgID       string   `json:"org_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status"`
	Health      string   `json:"health"`
	Priority    int      `json:"priority"`
	Owner       string   `json:"owner,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	FactCount   int      `json:"fact_count"`
}

type Evidence struct {
	Quote string `json:"quote"`
}

type Fact struct {
	ID           string `json:"id"`
	OrgID        string `json:"org_id"`
	Type         string `json:"type"`
	Status       string `json:"status"`
	WorkstreamID string `json:"workstream_id,omitempty"`
	DueAt        string `json:"due_at,omitempty"`
	Payload      struct {
		Text     string     `json:"text"`
		Owner    string     `json:"owner,omitempty"`
		Tags     []string   `json:"tags,omitempty"`
		Evidence []Evidence `json:"evidence,omitempty"`
	} `json:"payload"`
}

// FactInput is the body for AddFact.
type FactInput struct {
	Type         string     `json:"type,omitempty"`
	Status       string     `json:"status,omitempty"`
	Text         string     `json:"text,omitempty"`
	Owner        string     `json:"owner,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	Evidence     []Evidence `json:"evidence,omitempty"`
	DueAt        string     `json:"due_at,omitempty"`
	WorkstreamID string     `json:"workstream_id,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

type list[T any] struct {
	Items []T `json:"items"`
}

// Plan asks the service for an agenda proposal.
func (c *Client) Plan(ctx context.Context, req PlanRequest) (Proposal, error) {
	var resp Proposal
	err := c.do(ctx, http.MethodPost, c.orgPath("agendas/plan"), req, &resp)
	return resp, err
}

// Proposals lists persisted proposals, newest first.
func (c *Client) Proposals(ctx context.Context, limit int) ([]Proposal, error) {
	var resp list[Proposal]
	err := c.do(ctx, http.MethodGet, withQuery(c.orgPath("agendas"), url.Values{"limit": limitValue(limit)}), nil, &resp)
	return resp.Items, err
}

// Workstreams lists workstreams, optionally filtered by status.
func (c *Client) Workstreams(ctx context.Context, status string) ([]Workstream, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	var resp list[Workstream]
	err := c.do(ctx, http.MethodGet, withQuery(c.orgPath("workstreams"), q), nil, &resp)
	return resp.Items, err
}

// CreateWorkstream creates a workstream with the given title and priority.
func (c *Client) CreateWorkstream(ctx context.Context, title string, priority int, tags []string) (Workstream, error) {
	body := map[string]any{"title": title, "tags": tags}
	if priority > 0 {
		body["priority"] = priority
	}
	var resp Workstream
	err := c.do(ctx, http.MethodPost, c.orgPath("workstreams"), body, &resp)
	return resp, err
}

// LinkFacts links facts to a workstream.
func (c *Client) LinkFacts(ctx context.Context, workstreamID string, factIDs []string, weight float64) error {
	body := map[string]any{"fact_ids": factIDs, "weight": weight}
	endpoint := c.orgPath(fmt.Sprintf("workstreams/%s/facts", url.PathEscape(workstreamID)))
	return c.do(ctx, http.MethodPost, endpoint, body, nil)
}

// AddFact records a fact.
func (c *Client) AddFact(ctx context.Context, in FactInput) (Fact, error) {
	var resp Fact
	err := c.do(ctx, http.MethodPost, c.orgPath("facts"), in, &resp)
	return resp, err
}

// SearchFacts runs a text search over facts.
func (c *Client) SearchFacts(ctx context.Context, query string, limit int) ([]Fact, error) {
	q := url.Values{"q": {query}, "limit": limitValue(limit)}
	var resp list[Fact]
	err := c.do(ctx, http.MethodGet, withQuery(c.orgPath("facts"), q), nil, &resp)
	return resp.Items, err
}

// RecordMeeting stores a held meeting and its open items.
func (c *Client) RecordMeeting(ctx context.Context, title, subject string, openItems []string) error {
	body := map[string]any{"title": title, "subject": subject, "open_items": openItems}
	return c.do(ctx, http.MethodPost, c.orgPath("meetings"), body, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
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
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) orgPath(p string) string {
	return fmt.Sprintf("v0/orgs/%s/%s", url.PathEscape(c.OrgID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func withQuery(endpoint string, q url.Values) string {
	encoded := q.Encode()
	if encoded == "" {
		return endpoint
	}
	return endpoint + "?" + encoded
}

func limitValue(limit int) []string {
	if limit <= 0 {
		return nil
	}
	return []string{fmt.Sprint(limit)}
}
