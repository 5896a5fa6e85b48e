package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tktechnologies/meeting-agent/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Memory is an in-process Gateway backend. It is safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	facts       map[string]domain.Fact
	workstreams map[string]domain.Workstream
	links       map[string]map[string]float64
	meetings    []domain.Meeting
}

func NewMemory() *Memory {
	return &Memory{
		facts:       map[string]domain.Fact{},
		workstreams: map[string]domain.Workstream{},
		links:       map[string]map[string]float64{},
	}
}

func (m *Memory) PutFact(f domain.Fact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facts[f.ID] = f
}

func (m *Memory) PutWorkstream(w domain.Workstream) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workstreams[w.ID] = w
}

func (m *Memory) PutMeeting(mt domain.Meeting) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meetings = append(m.meetings, mt)
}

func (m *Memory) GetRecentFacts(ctx context.Context, orgID string, limit int) ([]domain.Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.Fact
	for _, f := range m.facts {
		if f.OrgID == orgID {
			res = append(res, f)
		}
	}
	sortNewest(res)
	return capFacts(res, limit), nil
}

func (m *Memory) SearchFacts(ctx context.Context, orgID, query string, limit int) ([]domain.Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.Fact
	for _, f := range m.facts {
		if f.OrgID == orgID && strings.Contains(SearchText(f), q) {
			res = append(res, f)
		}
	}
	sortNewest(res)
	return capFacts(res, limit), nil
}

func (m *Memory) GetUrgentFacts(ctx context.Context, orgID string, dueBefore time.Time, limit int) ([]domain.Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.Fact
	for _, f := range m.facts {
		if f.OrgID != orgID {
			continue
		}
		if due, ok := f.Due(); ok && !due.After(dueBefore) {
			res = append(res, f)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		di, _ := res[i].Due()
		dj, _ := res[j].Due()
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return res[i].ID < res[j].ID
	})
	return capFacts(res, limit), nil
}

func (m *Memory) ListWorkstreams(ctx context.Context, orgID string, f WorkstreamFilters) ([]domain.Workstream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := map[string]bool{}
	for _, id := range f.IDs {
		ids[id] = true
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	var res []domain.Workstream
	for _, w := range m.workstreams {
		if w.OrgID != orgID {
			continue
		}
		if f.Status != "" && w.Status != f.Status {
			continue
		}
		if f.MinPriority > 0 && w.Priority < f.MinPriority {
			continue
		}
		if len(ids) > 0 && !ids[w.ID] {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(w.Title+" "+w.Description+" "+strings.Join(w.Tags, " ")), q) {
			continue
		}
		w.FactCount = len(m.links[w.ID])
		res = append(res, w)
	}
	SortWorkstreams(res)
	if f.Limit > 0 && len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

func (m *Memory) GetWorkstream(ctx context.Context, orgID, id string) (domain.Workstream, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Workstream{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workstreams[id]
	if !ok || w.OrgID != orgID {
		return domain.Workstream{}, false, nil
	}
	w.FactCount = len(m.links[w.ID])
	return w, true, nil
}

func (m *Memory) GetFactsByWorkstreams(ctx context.Context, orgID string, ids []string, limitPerWorkstream int) ([]domain.Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.Fact
	for _, wsID := range ids {
		var linked []domain.Fact
		for factID, weight := range m.links[wsID] {
			f, ok := m.facts[factID]
			if !ok || f.OrgID != orgID {
				continue
			}
			w := weight
			f.WorkstreamID = wsID
			f.LinkWeight = &w
			linked = append(linked, f)
		}
		sort.Slice(linked, func(i, j int) bool {
			if linked[i].Weight() != linked[j].Weight() {
				return linked[i].Weight() > linked[j].Weight()
			}
			if linked[i].CreatedAt != linked[j].CreatedAt {
				return linked[i].CreatedAt > linked[j].CreatedAt
			}
			return linked[i].ID < linked[j].ID
		})
		res = append(res, capFacts(linked, limitPerWorkstream)...)
	}
	return res, nil
}

func (m *Memory) LinkFacts(ctx context.Context, orgID, workstreamID string, factIDs []string, weight float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workstreams[workstreamID]
	if !ok || w.OrgID != orgID {
		return ErrNotFound
	}
	if m.links[workstreamID] == nil {
		m.links[workstreamID] = map[string]float64{}
	}
	for _, id := range factIDs {
		if _, ok := m.facts[id]; ok {
			m.links[workstreamID][id] = ClampWeight(weight)
		}
	}
	return nil
}

func (m *Memory) RecentMeetings(ctx context.Context, orgID string, limit int) ([]domain.Meeting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.Meeting
	for _, mt := range m.meetings {
		if mt.OrgID == orgID {
			res = append(res, mt)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].HeldAt > res[j].HeldAt })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// SearchText is the lower-cased text a keyword search matches against.
func SearchText(f domain.Fact) string {
	parts := []string{f.Payload.Text, strings.Join(f.Payload.Tags, " ")}
	for _, ev := range f.Payload.Evidence {
		parts = append(parts, ev.Quote)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// ClampWeight bounds a link weight to [0,1].
func ClampWeight(w float64) float64 {
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}

func sortNewest(facts []domain.Fact) {
	sort.Slice(facts, func(i, j int) bool {
		if facts[i].CreatedAt != facts[j].CreatedAt {
			return facts[i].CreatedAt > facts[j].CreatedAt
		}
		return facts[i].ID > facts[j].ID
	})
}

func capFacts(facts []domain.Fact, limit int) []domain.Fact {
	if limit > 0 && len(facts) > limit {
		return facts[:limit]
	}
	return facts
}

var _ Gateway = (*Memory)(nil)
var _ MeetingHistory = (*Memory)(nil)
