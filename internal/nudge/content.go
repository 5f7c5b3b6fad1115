// Package nudge renders retention nudges and delivers them at most once per
// type and student inside a de-duplication window.
package nudge

import (
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/abhisek/companion/internal/engagement"
	"github.com/abhisek/companion/internal/subjects"
)

// GoalCompleted is the celebration sent when a goal completes. It is not an
// engagement trigger, so it never goes through the de-dup ledger.
const GoalCompleted engagement.NudgeType = "goal_completed"

// Priority orders nudges for the client.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ErrUnknownType is returned by Build for a type with no template.
var ErrUnknownType = errors.New("no template for nudge type")

// Content is the user-facing copy of a nudge.
type Content struct {
	Type      engagement.NudgeType `json:"type"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	CTA       string               `json:"cta"`
	CTAAction string               `json:"cta_action"`
	CTAData   map[string]string    `json:"cta_data,omitempty"`
	Priority  Priority             `json:"priority"`
}

// Payload flattens the content for storage and the notification data bag.
func (c Content) Payload() map[string]any {
	p := map[string]any{
		"cta":        c.CTA,
		"cta_action": c.CTAAction,
		"priority":   string(c.Priority),
	}
	if len(c.CTAData) > 0 {
		p["cta_data"] = c.CTAData
	}
	return p
}

// Context carries the optional values templates interpolate. Zero values
// drop the reference from the copy.
type Context struct {
	StudentName  string
	DaysInactive int

	GoalID      string
	GoalTitle   string
	GoalSubject string

	// NextSubjects and RecommendationMessage come from the subject table
	// for follow-ups and celebrations.
	NextSubjects          []string
	RecommendationMessage string
}

type copyTemplate struct {
	title    *template.Template
	message  *template.Template
	cta      string
	action   string
	priority Priority
	data     func(Context) map[string]string
}

var funcs = template.FuncMap{
	"humanize": subjects.Humanize,
	"plural": func(n int, word string) string {
		if n == 1 {
			return word
		}
		return word + "s"
	},
}

func parse(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(funcs).Option("missingkey=zero").Parse(text))
}

// Builder renders Content per nudge type.
type Builder struct {
	byType map[engagement.NudgeType]copyTemplate
}

// NewBuilder compiles the built-in templates.
func NewBuilder() *Builder {
	return &Builder{byType: map[engagement.NudgeType]copyTemplate{
		engagement.NudgeNewStudentSessions: {
			title:    parse("new.title", `Let's keep the momentum going{{with .StudentName}}, {{.}}{{end}}! 🚀`),
			message:  parse("new.msg", `Students who have 3+ sessions in their first week see 2x better results. Book your next session to stay on track!`),
			cta:      "Book a Session",
			action:   "book_session",
			priority: PriorityHigh,
		},
		engagement.NudgeInactiveReminder: {
			title: parse("inactive.title", `We miss you{{with .StudentName}}, {{.}}{{end}}! 👋`),
			message: parse("inactive.msg", `{{if .DaysInactive}}It's been {{.DaysInactive}} {{plural .DaysInactive "day"}} since your last activity.`+
				`{{else}}It's been a while since your last activity.{{end}} Your AI companion is ready to help you practice anytime!`),
			cta:      "Start Practicing",
			action:   "open_practice",
			priority: PriorityMedium,
		},
		engagement.NudgeDecliningEngagement: {
			title:    parse("declining.title", `Need a hand? 🤝`),
			message:  parse("declining.msg", `We noticed you've been less active lately. Is there something we can help with? A quick practice session can help you get back on track.`),
			cta:      "Quick Practice",
			action:   "open_practice",
			priority: PriorityMedium,
		},
		engagement.NudgeGoalStalled: {
			title: parse("stalled.title", `Let's get you unstuck! 💪`),
			message: parse("stalled.msg", `{{with .GoalTitle}}Your goal '{{.}}' hasn't{{else}}Your goal hasn't{{end}} seen progress in a while.`+
				` A tutor session could help break through!`),
			cta:      "Book Tutor Session",
			action:   "book_session",
			priority: PriorityHigh,
			data: func(c Context) map[string]string {
				return compact(map[string]string{"subject": c.GoalSubject, "goal_id": c.GoalID})
			},
		},
		engagement.NudgeGeneralEncouragement: {
			title:    parse("encourage.title", `You're doing great{{with .StudentName}}, {{.}}{{end}}! 🌟`),
			message:  parse("encourage.msg", `Every bit of practice counts. Your AI companion has some new questions ready for you!`),
			cta:      "Start Learning",
			action:   "open_companion",
			priority: PriorityLow,
		},
		engagement.NudgeGoalCompletedFollow: {
			title: parse("followup.title", `Ready for your next goal?`),
			message: parse("followup.msg", `{{with .GoalTitle}}You finished '{{.}}' a few days ago.{{else}}You finished a goal a few days ago.{{end}}`+
				`{{with .NextSubjects}} How about {{humanize (index . 0)}} next?{{end}} Setting a new goal keeps the streak going!`),
			cta:      "Set a New Goal",
			action:   "create_goal",
			priority: PriorityMedium,
			data: func(c Context) map[string]string {
				m := map[string]string{"completed_goal_id": c.GoalID, "subject": c.GoalSubject}
				if len(c.NextSubjects) > 0 {
					m["next_subject"] = c.NextSubjects[0]
				}
				return compact(m)
			},
		},
		GoalCompleted: {
			title: parse("completed.title", `🎉 Goal Achieved{{with .GoalTitle}}: {{.}}{{end}}!`),
			message: parse("completed.msg", `{{if .RecommendationMessage}}{{.RecommendationMessage}}`+
				`{{else}}Great work reaching your goal! Pick what to learn next.{{end}}`),
			cta:      "Explore Subjects",
			action:   "explore_subjects",
			priority: PriorityHigh,
			data: func(c Context) map[string]string {
				return compact(map[string]string{
					"goal_id":       c.GoalID,
					"subject":       c.GoalSubject,
					"next_subjects": strings.Join(c.NextSubjects, ","),
				})
			},
		},
	}}
}

// Build renders the content for t. Missing context values never fail the
// render; only an unknown type does.
func (b *Builder) Build(t engagement.NudgeType, c Context) (Content, error) {
	tpl, ok := b.byType[t]
	if !ok {
		return Content{}, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	title, err := render(tpl.title, c)
	if err != nil {
		return Content{}, err
	}
	msg, err := render(tpl.message, c)
	if err != nil {
		return Content{}, err
	}
	out := Content{
		Type:      t,
		Title:     title,
		Message:   msg,
		CTA:       tpl.cta,
		CTAAction: tpl.action,
		Priority:  tpl.priority,
	}
	if tpl.data != nil {
		out.CTAData = tpl.data(c)
	}
	return out, nil
}

// Types lists the nudge types the builder can render.
func (b *Builder) Types() []engagement.NudgeType {
	out := make([]engagement.NudgeType, 0, len(b.byType))
	for t := range b.byType {
		out = append(out, t)
	}
	return out
}

func render(t *template.Template, c Context) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, c); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return strings.TrimSpace(sb.String()), nil
}

func compact(m map[string]string) map[string]string {
	for k, v := range m {
		if v == "" {
			delete(m, k)
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// ContextFor assembles a Context from an engagement snapshot, picking up
// the stalled goal when there is one.
func ContextFor(scorer *engagement.Scorer, snap engagement.Snapshot) Context {
	c := Context{
		StudentName:  firstName(snap.StudentName),
		DaysInactive: scorer.DaysSinceActivity(snap),
	}
	if g := scorer.StalledGoal(snap); g != nil {
		c.GoalID = g.ID
		c.GoalTitle = g.Title
		c.GoalSubject = g.Subject
	}
	return c
}

func firstName(full string) string {
	if f := strings.Fields(full); len(f) > 0 {
		return f[0]
	}
	return ""
}
