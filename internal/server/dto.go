package server

import "github.com/tktechnologies/meeting-agent/internal/domain"

// Request payloads

type PlanAgendaRequest struct {
	Subject         string `json:"subject,omitempty"`
	Prompt          string `json:"prompt,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty" minimum:"0"`
	Language        string `json:"language,omitempty" enum:"en-US,pt-BR"`
	MacroMode       string `json:"macro_mode,omitempty" enum:"auto,strict,off"`
	Persist         bool   `json:"persist,omitempty"`
}

type CreateWorkstreamRequest struct {
	ID          *string  `json:"id,omitempty"`
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	Status      *string  `json:"status,omitempty" enum:"active,paused,archived"`
	Health      *string  `json:"health,omitempty" enum:"green,yellow,red"`
	Priority    *int     `json:"priority,omitempty" minimum:"0"`
	Owner       *string  `json:"owner,omitempty"`
	StartDate   *string  `json:"start_date,omitempty"`
	TargetDate  *string  `json:"target_date,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type UpdateWorkstreamRequest struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Status      *string  `json:"status,omitempty" enum:"active,paused,archived"`
	Health      *string  `json:"health,omitempty" enum:"green,yellow,red"`
	Priority    *int     `json:"priority,omitempty" minimum:"0"`
	Owner       *string  `json:"owner,omitempty"`
	TargetDate  *string  `json:"target_date,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type LinkFactsRequest struct {
	FactIDs []string `json:"fact_ids" minItems:"1"`
	Weight  *float64 `json:"weight,omitempty" minimum:"0" maximum:"1"`
}

type CreateFactRequest struct {
	ID           *string           `json:"id,omitempty"`
	Type         string            `json:"type,omitempty" enum:"decision,risk,action_item,status,goal,other"`
	Status       string            `json:"status,omitempty" enum:"draft,proposed,published,validated"`
	Text         string            `json:"text,omitempty"`
	Owner        string            `json:"owner,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Evidence     []domain.Evidence `json:"evidence,omitempty"`
	DueAt        string            `json:"due_at,omitempty"`
	Source       string            `json:"source,omitempty"`
	WorkstreamID string            `json:"workstream_id,omitempty"`
}

type CreateMeetingRequest struct {
	Title     string   `json:"title"`
	Subject   string   `json:"subject,omitempty"`
	HeldAt    string   `json:"held_at,omitempty"`
	OpenItems []string `json:"open_items,omitempty"`
}

// Response payloads

type HealthResponse struct {
	Status string `json:"status" enum:"ok,degraded,disabled"`
	Detail string `json:"detail,omitempty"`
}

type WorkstreamResponse struct {
	domain.Workstream
	Links []domain.WorkstreamLink `json:"links,omitempty"`
}

type LinkFactsResponse struct {
	WorkstreamID string   `json:"workstream_id"`
	FactIDs      []string `json:"fact_ids"`
	Weight       float64  `json:"weight"`
}

type ListResponse[T any] struct {
	Items []T `json:"items"`
}

func listOf[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items}
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
