// Package store defines the Fact Store Gateway consumed by retrieval and
// planning. Backends implement Gateway; the SQLite backend lives in repo and
// an in-memory backend lives here.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/tktechnologies/meeting-agent/internal/domain"
)

// WorkstreamFilters narrows ListWorkstreams. Zero values mean "any".
type WorkstreamFilters struct {
	Status      string
	Query       string
	MinPriority int
	IDs         []string
	Limit       int
}

// Gateway is the read interface over facts, workstreams and links. Every call
// is org-scoped and returns an empty result, not an error, when nothing
// matches. Errors are reserved for backend faults.
type Gateway interface {
	GetRecentFacts(ctx context.Context, orgID string, limit int) ([]domain.Fact, error)
	SearchFacts(ctx context.Context, orgID, query string, limit int) ([]domain.Fact, error)
	GetUrgentFacts(ctx context.Context, orgID string, dueBefore time.Time, limit int) ([]domain.Fact, error)
	ListWorkstreams(ctx context.Context, orgID string, f WorkstreamFilters) ([]domain.Workstream, error)
	GetWorkstream(ctx context.Context, orgID, id string) (domain.Workstream, bool, error)
	GetFactsByWorkstreams(ctx context.Context, orgID string, ids []string, limitPerWorkstream int) ([]domain.Fact, error)
	LinkFacts(ctx context.Context, orgID, workstreamID string, factIDs []string, weight float64) error
}

// MeetingHistory is implemented by backends that keep past meetings.
type MeetingHistory interface {
	RecentMeetings(ctx context.Context, orgID string, limit int) ([]domain.Meeting, error)
}

// SortWorkstreams orders by priority desc, health severity desc, then id.
func SortWorkstreams(items []domain.Workstream) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Health.Severity() != b.Health.Severity() {
			return a.Health.Severity() > b.Health.Severity()
		}
		return a.ID < b.ID
	})
}
