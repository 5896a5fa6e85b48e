package nlparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEnglish(t *testing.T) {
	r := Parse("Agenda for Acme tomorrow, 45 min about the integration rollout (draft)", 30)
	assert.Equal(t, "en-US", r.Language)
	assert.Equal(t, "the integration rollout", r.Subject)
	assert.Equal(t, 45, r.DurationMinutes)
	assert.Equal(t, "Acme", r.OrgHint)
	assert.Equal(t, "tomorrow", r.MeetingHint)
}

func TestParsePortuguese(t *testing.T) {
	r := Parse("Pauta da reunião de amanhã sobre migração do ERP, 1h", 30)
	assert.Equal(t, "pt-BR", r.Language)
	assert.Equal(t, "migração do ERP, 1h", r.Subject)
	assert.Equal(t, 60, r.DurationMinutes)
	assert.Equal(t, "amanhã", r.MeetingHint)
}

func TestParseFallbacks(t *testing.T) {
	r := Parse("", 30)
	assert.Equal(t, "en-US", r.Language)
	assert.Empty(t, r.Subject)
	assert.Equal(t, 30, r.DurationMinutes)

	r = Parse("next meeting", 25)
	assert.Empty(t, r.Subject)
	assert.Equal(t, 25, r.DurationMinutes)

	r = Parse("quarterly planning", 30)
	assert.Equal(t, "quarterly planning", r.Subject)
}
