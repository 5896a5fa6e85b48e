package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/tktechnologies/meeting-agent/internal/domain"
	"github.com/tktechnologies/meeting-agent/internal/repo"
	"github.com/tktechnologies/meeting-agent/internal/store"
)

const (
	autoLinkWeight    = 0.8
	autoScanLimit     = 500
	autoKeywordShared = 3
	autoMinKeywordLen = 4
	autoTitlePrefix   = "Auto: "
)

var autoStopwords = map[string]bool{
	"the": true, "and": true, "of": true, "to": true, "in": true, "on": true, "for": true, "with": true,
	"this": true, "that": true, "from": true, "are": true, "was": true, "were": true, "been": true, "being": true,
	"para": true, "com": true, "que": true, "como": true, "ser": true, "foi": true, "está": true, "sobre": true,
	"mais": true, "muito": true,
}

// Cluster is a group of unlinked facts connected by shared tags or words.
type Cluster struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	FactIDs     []string `json:"fact_ids"`
}

type AutoResult struct {
	Created   []domain.Workstream `json:"created"`
	Suggested []Cluster           `json:"suggested"`
	Clustered int                 `json:"total_facts_clustered"`
}

// AutoWorkstreams clusters the org's unlinked facts and creates one auto
// workstream per cluster, largest first, until the per-org cap is reached.
// Clusters beyond the cap are returned as suggestions.
func (e Engine) AutoWorkstreams(ctx context.Context, orgID, actorID string) (AutoResult, error) {
	cfg := e.cfg().AutoWorkstreams
	res := AutoResult{Created: []domain.Workstream{}, Suggested: []Cluster{}}
	if !cfg.Enabled {
		return res, errors.New("auto workstreams are disabled; set auto_workstreams.enabled")
	}
	if orgID == "" {
		return res, errors.New("org_id is required")
	}
	facts, err := e.Repo.ListFacts(ctx, repo.FactFilters{OrgID: orgID, Unlinked: true, Limit: autoScanLimit})
	if err != nil {
		return res, fmt.Errorf("list unlinked facts: %w", err)
	}
	existing, err := e.Repo.ListWorkstreams(ctx, orgID, store.WorkstreamFilters{})
	if err != nil {
		return res, fmt.Errorf("list workstreams: %w", err)
	}
	slots := cfg.MaxPerOrg
	for _, w := range existing {
		if w.Auto {
			slots--
		}
	}

	for _, c := range ClusterFacts(facts, cfg.MinClusterSize) {
		res.Clustered += len(c.FactIDs)
		if slots <= 0 {
			res.Suggested = append(res.Suggested, c)
			continue
		}
		w, err := e.CreateWorkstream(ctx, WorkstreamCreateOptions{
			OrgID:       orgID,
			Title:       c.Title,
			Description: c.Description,
			Priority:    1,
			Auto:        true,
			ActorID:     actorID,
		})
		if err != nil {
			return res, err
		}
		if err := e.LinkFacts(ctx, orgID, w.ID, c.FactIDs, autoLinkWeight, actorID); err != nil {
			return res, err
		}
		w.FactCount = len(c.FactIDs)
		res.Created = append(res.Created, w)
		slots--
		e.logger().Info("auto workstream created", zap.String("org_id", orgID), zap.String("workstream_id", w.ID), zap.Int("facts", len(c.FactIDs)))
	}
	return res, nil
}

// ClusterFacts connects two facts when they share a tag or at least three
// keywords, and returns connected components of at least minSize facts,
// largest first.
func ClusterFacts(facts []domain.Fact, minSize int) []Cluster {
	if minSize <= 0 {
		minSize = 3
	}
	n := len(facts)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	tags := make([]map[string]bool, n)
	words := make([]map[string]bool, n)
	for i, f := range facts {
		tags[i] = set(f.Payload.Tags)
		words[i] = keywords(store.SearchText(f))
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if overlap(tags[i], tags[j]) >= 1 || overlap(words[i], words[j]) >= autoKeywordShared {
				parent[find(i)] = find(j)
			}
		}
	}

	groups := map[int][]int{}
	for i := range facts {
		r := find(i)
		groups[r] = append(groups[r], i)
	}
	var out []Cluster
	for _, members := range groups {
		if len(members) < minSize {
			continue
		}
		out = append(out, describe(facts, members, tags, words))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].FactIDs) != len(out[j].FactIDs) {
			return len(out[i].FactIDs) > len(out[j].FactIDs)
		}
		return out[i].FactIDs[0] < out[j].FactIDs[0]
	})
	return out
}

func describe(facts []domain.Fact, members []int, tags, words []map[string]bool) Cluster {
	tagCount := map[string]int{}
	wordCount := map[string]int{}
	ids := make([]string, 0, len(members))
	for _, i := range members {
		ids = append(ids, facts[i].ID)
		for t := range tags[i] {
			tagCount[t]++
		}
		for w := range words[i] {
			wordCount[w]++
		}
	}
	sort.Strings(ids)
	topTags := top(tagCount, 1)
	topWords := top(wordCount, 5)

	var theme string
	switch {
	case len(topTags) > 0:
		theme = titleCase(topTags[0])
	case len(topWords) > 1:
		theme = titleCase(topWords[0]) + " + " + titleCase(topWords[1])
	case len(topWords) == 1:
		theme = titleCase(topWords[0])
	default:
		theme = string(facts[members[0]].Type)
	}
	desc := fmt.Sprintf("%d related facts.", len(ids))
	if len(topWords) > 0 {
		desc += " Themes: " + strings.Join(topWords, ", ") + "."
	}
	return Cluster{Title: autoTitlePrefix + theme, Description: desc, FactIDs: ids}
}

func top(counts map[string]int, n int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func keywords(text string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	}) {
		if len([]rune(w)) < autoMinKeywordLen || autoStopwords[w] {
			continue
		}
		out[w] = true
	}
	return out
}

func set(items []string) map[string]bool {
	out := map[string]bool{}
	for _, s := range items {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out[s] = true
		}
	}
	return out
}

func overlap(a, b map[string]bool) int {
	n := 0
	for k := range a {
		if b[k] {
			n++
		}
	}
	return n
}

func titleCase(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
