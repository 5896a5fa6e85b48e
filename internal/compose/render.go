package compose

import (
	"fmt"
	"strings"

	"github.com/tktechnologies/meeting-agent/internal/domain"
)

// Markdown renders an agenda for humans: a heading with the total duration,
// one subsection per agenda section and one list entry per bullet with its
// justification.
func Markdown(a domain.Agenda, lang string) string {
	why := "Why"
	if isPT(lang) {
		why = "Por quê"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s (%d min)\n", a.Title, a.Minutes)
	for _, s := range a.Sections {
		fmt.Fprintf(&b, "\n## %s (%d min)\n", s.Title, s.Minutes)
		for _, item := range s.Items {
			if item.Heading != "" && item.Heading != s.Title {
				fmt.Fprintf(&b, "\n### %s\n", item.Heading)
			}
			for _, bl := range item.Bullets {
				fmt.Fprintf(&b, "- %s", bl.Text)
				var extra []string
				if bl.Owner != "" {
					extra = append(extra, "@"+bl.Owner)
				}
				if bl.Due != "" {
					extra = append(extra, bl.Due)
				}
				if len(extra) > 0 {
					fmt.Fprintf(&b, " (%s)", strings.Join(extra, ", "))
				}
				b.WriteString("\n")
				if bl.Why != "" {
					fmt.Fprintf(&b, "  - %s: %s\n", why, bl.Why)
				}
			}
		}
	}
	return b.String()
}
