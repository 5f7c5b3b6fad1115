package handoff

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/abhisek/companion/internal/escalation"
	"github.com/abhisek/companion/internal/subjects"
)

var urgencyOpeners = map[escalation.Urgency]string{
	escalation.UrgencyHigh:   "I can see you're working hard on this, and I think a human tutor could really help you break through right now.",
	escalation.UrgencyMedium: "This is a great question that might benefit from working through with a tutor.",
	escalation.UrgencyLow:    "Would you like to book a session with a tutor to dive deeper into this topic?",
}

func opener(u escalation.Urgency) string {
	if s, ok := urgencyOpeners[u]; ok {
		return s
	}
	return urgencyOpeners[escalation.UrgencyLow]
}

var funcs = template.FuncMap{
	"humanize": subjects.Humanize,
	"join":     strings.Join,
	"opener":   opener,
	"first":    head,
	"reasons":  reasonStrings,
}

var suggestionTemplate = template.Must(template.New("suggestion").Funcs(funcs).Parse(`{{opener .Urgency}}

**I can help you book a session** where you can:
{{- with first .FocusAreas 2}}
- Work through {{join . " and "}} in detail
{{- end}}
- Get personalized explanations and practice
- Ask all your questions in real-time

Would you like me to show you available tutors for {{humanize .Subject}}?`))

var notesTemplate = template.Must(template.New("notes").Funcs(funcs).Parse(`**AI Companion Handoff Notes**

Student has been working with AI companion on: {{humanize .Subject}}

**Summary:** {{if .Summary}}{{.Summary}}{{else}}Not available{{end}}

**Recommended Focus Areas:**
{{range .FocusAreas}}- {{.}}
{{else}}- General review
{{end}}
**Escalation Reason:** {{join (reasons .Reasons) ", "}}

**Urgency:** {{.Urgency}}`))

// SuggestionMessage renders the assistant message that offers a tutor.
func SuggestionMessage(c escalation.Context) (string, error) {
	return render(suggestionTemplate, c)
}

// TutorNotes renders the notes attached to a booking.
func TutorNotes(c escalation.Context) (string, error) {
	return render(notesTemplate, c)
}

func render(t *template.Template, c escalation.Context) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, c); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func reasonStrings(rs []escalation.Reason) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}

func head(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
