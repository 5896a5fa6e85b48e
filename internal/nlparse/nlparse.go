// Package nlparse extracts planning parameters from a free-text request.
package nlparse

import (
	"regexp"
	"strconv"
	"strings"
)

type Request struct {
	Language        string
	Subject         string
	DurationMinutes int
	OrgHint         string
	MeetingHint     string
}

var (
	wordRe     = regexp.MustCompile(`[a-záéíóúâêôãõç]+`)
	aboutRe    = regexp.MustCompile(`(?i)\babout\s+(.+)$`)
	sobreRe    = regexp.MustCompile(`(?i)\bsobre\s+(.+)$`)
	trailParen = regexp.MustCompile(`\s*\([^)]*\)\s*$`)
	dateTokens = regexp.MustCompile(`(?i)today|tomorrow|next|hoje|amanh|pr[óo]xima|segunda|terça|quarta|quinta|sexta|monday|tuesday|wednesday|thursday|friday`)
	durationRe = regexp.MustCompile(`(?i)\b(\d{1,3})\s*(min|mins|minutes|minutos|m)\b|\b(\d{1,2}(?:[.,]\d)?)\s*(h|hr|hrs|hour|hours|hora|horas)\b`)
	meetingRe  = regexp.MustCompile(`(?i)(today|tomorrow|next\s+\p{L}+|hoje|amanhã|próxima\s+\p{L}+)`)
	orgRe      = regexp.MustCompile(`(?i)\b(?:for|para|with|com)\s+(?:the\s+|a\s+|o\s+|as\s+|os\s+)?(.+)`)
	orgStops   = regexp.MustCompile(`(?i)\s*(\babout\b|\bsobre\b|\bon\b|,|\btoday\b|\btomorrow\b|\bhoje\b|amanhã|\bnext\s|próxima\s).*$`)
	leadArt    = regexp.MustCompile(`(?i)^(?:the|da|do|de|d'|a|o|as|os)\s+`)
)

var (
	ptTokens = map[string]bool{"sobre": true, "reunião": true, "reuniao": true, "proxima": true, "próxima": true, "amanha": true, "amanhã": true,
		"sexta": true, "terça": true, "terca": true, "quarta": true, "interno": true, "interna": true, "pauta": true, "para": true}
	enTokens = map[string]bool{"about": true, "meeting": true, "today": true, "tomorrow": true, "monday": true, "tuesday": true,
		"wednesday": true, "thursday": true, "friday": true, "agenda": true, "for": true}
)

// Parse never fails. Fields it cannot find stay empty, and DurationMinutes
// falls back to defaultMinutes.
func Parse(text string, defaultMinutes int) Request {
	lang := DetectLanguage(text)
	return Request{
		Language:        lang,
		Subject:         subject(text, lang),
		DurationMinutes: duration(text, defaultMinutes),
		OrgHint:         orgHint(text),
		MeetingHint:     strings.TrimSpace(meetingRe.FindString(text)),
	}
}

func DetectLanguage(text string) string {
	s := strings.ToLower(text)
	words := wordRe.FindAllString(s, -1)
	if len(words) == 0 {
		return "en-US"
	}
	pt, en := 0, 0
	for _, w := range words {
		if ptTokens[w] {
			pt++
		}
		if enTokens[w] {
			en++
		}
	}
	accents := strings.ContainsAny(s, "áéíóúâêôãõç")
	if pt > en || (pt == en && accents) {
		return "pt-BR"
	}
	return "en-US"
}

func subject(text, lang string) string {
	s := strings.TrimSpace(text)
	if s == "" {
		return ""
	}
	re := aboutRe
	if lang == "pt-BR" {
		re = sobreRe
	}
	if m := re.FindStringSubmatch(s); m != nil {
		out := strings.Trim(strings.TrimSpace(m[1]), ". ")
		return trailParen.ReplaceAllString(out, "")
	}
	var parts []string
	for _, p := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ':' }) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	tail := durationRe.ReplaceAllString(parts[len(parts)-1], "")
	tail = strings.Trim(strings.TrimSpace(tail), ". ")
	if tail == "" || dateTokens.MatchString(tail) {
		return ""
	}
	return tail
}

func duration(text string, fallback int) int {
	m := durationRe.FindStringSubmatch(text)
	if m == nil {
		return fallback
	}
	if m[1] != "" {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
		return fallback
	}
	h, err := strconv.ParseFloat(strings.ReplaceAll(m[3], ",", "."), 64)
	if err != nil || h <= 0 {
		return fallback
	}
	return int(h * 60)
}

func orgHint(text string) string {
	m := orgRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	out := orgStops.ReplaceAllString(m[1], "")
	out = leadArt.ReplaceAllString(strings.TrimSpace(out), "")
	out = durationRe.ReplaceAllString(out, "")
	return strings.Trim(strings.TrimSpace(out), ".")
}
