package research

import (
	"strings"
	"time"
)

type Complexity string

const (
	Simple   Complexity = "simple"
	Moderate Complexity = "moderate"
	Complex  Complexity = "complex"
	Critical Complexity = "critical"
)

// SecondsPerStep approximates the service's wall time for one research step.
const SecondsPerStep = 40 * time.Second

var (
	criticalKeywords = []string{"decisão crítica", "critical decision", "urgente", "urgent", "emergência", "emergency"}
	complexKeywords  = []string{
		"estratégia", "strategy", "strategic", "estratégica",
		"transformação", "transformation", "inovação", "innovation",
		"futuro", "future", "próximos anos",
		"decisão", "decision", "escolha", "choice",
		"investimento", "investment", "orçamento", "budget",
		"risco", "risk", "ameaça", "threat",
		"arquitetura", "architecture", "infraestrutura", "infrastructure",
		"inteligência artificial", "artificial intelligence", "machine learning", "deep learning",
		"blockchain", "quantum", "reestruturação", "reorganization", "digital transformation",
	}
	moderateKeywords = []string{
		"projeto", "project", "iniciativa", "initiative", "processo", "process", "workflow",
		"produto", "product", "feature", "análise", "analysis", "review",
	}
	simpleKeywords = []string{"status", "update", "atualização", "resumo", "summary", "overview", "lista", "list", "check"}
)

var ladder = []Complexity{Simple, Moderate, Complex, Critical}

// ClassifyComplexity grades a topic from its keywords and length, then shifts
// one step up for kickoff and planning intents and one step down for status
// updates. Critical keywords are never shifted down.
func ClassifyComplexity(topic, intent string) Complexity {
	t := strings.ToLower(topic)
	if containsAny(t, criticalKeywords) {
		return Critical
	}
	complexHits := countHits(t, complexKeywords)
	moderateHits := countHits(t, moderateKeywords)
	simpleHits := countHits(t, simpleKeywords)

	class := Moderate
	switch {
	case complexHits >= 2:
		class = Complex
	case complexHits >= 1 || moderateHits >= 2:
		class = Moderate
	case simpleHits >= 1:
		class = Simple
	case len(strings.Fields(t)) <= 3:
		class = Simple
	}

	idx := indexOf(class)
	switch intent {
	case "kickoff", "planning":
		if idx < indexOf(Complex) {
			idx++
		}
	case "status_update":
		if idx > 0 {
			idx--
		}
	}
	return ladder[idx]
}

// DepthFor maps a complexity class to a step depth. A positive budget caps
// the depth at one step per SecondsPerStep, never below MinDepth.
func DepthFor(class Complexity, budget time.Duration) int {
	depth := MinDepth
	switch class {
	case Moderate:
		depth = 4
	case Complex, Critical:
		depth = 5
	}
	if budget > 0 {
		limit := int(budget / SecondsPerStep)
		if limit < MinDepth {
			limit = MinDepth
		}
		if depth > limit {
			depth = limit
		}
	}
	return ClampDepth(depth)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func countHits(s string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(s, w) {
			n++
		}
	}
	return n
}

func indexOf(c Complexity) int {
	for i, l := range ladder {
		if l == c {
			return i
		}
	}
	return 1
}
