package engine

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/tktechnologies/meeting-agent/internal/domain"
	"github.com/tktechnologies/meeting-agent/internal/repo"
)

const autoValidateWindow = 120

// AutoValidateResult reports one auto-validation pass.
type AutoValidateResult struct {
	Checked   int           `json:"checked"`
	Validated []domain.Fact `json:"validated"`
}

// AutoValidateFacts promotes recent draft and proposed facts to validated
// when they carry an evidence quote and readable text.
func (e Engine) AutoValidateFacts(ctx context.Context, orgID, actorID string) (AutoValidateResult, error) {
	res := AutoValidateResult{Validated: []domain.Fact{}}
	facts, err := e.Repo.ListFacts(ctx, repo.FactFilters{OrgID: orgID, Limit: autoValidateWindow})
	if err != nil {
		return res, err
	}
	for _, f := range facts {
		if f.Status != domain.StatusDraft && f.Status != domain.StatusProposed {
			continue
		}
		res.Checked++
		if strings.TrimSpace(f.FirstQuote()) == "" || !readable(f.Payload.Text) {
			continue
		}
		v, err := e.SetFactStatus(ctx, orgID, f.ID, string(domain.StatusValidated), actorID)
		if err != nil {
			return res, err
		}
		res.Validated = append(res.Validated, v)
	}
	e.logger().Info("auto-validated facts",
		zap.String("org_id", orgID),
		zap.Int("checked", res.Checked),
		zap.Int("validated", len(res.Validated)))
	return res, nil
}

// readable wants at least three words of three or more characters.
func readable(text string) bool {
	n := 0
	for _, w := range strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }) {
		if utf8.RuneCountInString(w) >= 3 {
			n++
		}
	}
	return n >= 3
}
