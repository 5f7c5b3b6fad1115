package subjects

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/abhisek/companion/internal/learning"
)

// unrankedPriority is assigned to next subjects missing from PriorityOrder.
const unrankedPriority = 99

var (
	whitespace = regexp.MustCompile(`\s+`)
	index      map[string]Recommendation
)

func init() {
	if err := Validate(); err != nil {
		panic(fmt.Sprintf("subjects: invalid recommendation table: %v", err))
	}
	index = make(map[string]Recommendation, len(table))
	for _, r := range table {
		index[r.Subject] = r
	}
}

// Normalize lowercases the subject and joins whitespace runs with "_".
func Normalize(subject string) string {
	return whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(subject)), "_")
}

// Lookup returns the recommendation for subject, falling back to the generic
// entry for unknown subjects. The returned value owns its slices.
func Lookup(subject string) Recommendation {
	r, ok := index[Normalize(subject)]
	if !ok {
		r = fallback
	}
	return Recommendation{
		Subject:       r.Subject,
		NextSubjects:  slices.Clone(r.NextSubjects),
		Message:       strings.ReplaceAll(r.Message, "{subject}", subject),
		PriorityOrder: slices.Clone(r.PriorityOrder),
	}
}

// Priority returns the rank of next within r's priority order, or
// unrankedPriority when it is not ranked.
func (r Recommendation) Priority(next string) int {
	if i := slices.Index(r.PriorityOrder, next); i >= 0 {
		return i
	}
	return unrankedPriority
}

// Suggestions builds next-goal suggestions for a completed subject, ordered by
// priority. Ties keep table order.
func Suggestions(completedSubject string) []learning.SuggestedGoal {
	r := Lookup(completedSubject)
	out := make([]learning.SuggestedGoal, 0, len(r.NextSubjects))
	for _, next := range r.NextSubjects {
		out = append(out, learning.SuggestedGoal{
			Subject:  next,
			Reason:   fmt.Sprintf("Based on your progress in %s, %s is a natural next step.", completedSubject, Humanize(next)),
			Priority: r.Priority(next),
		})
	}
	slices.SortStableFunc(out, func(a, b learning.SuggestedGoal) int {
		return a.Priority - b.Priority
	})
	return out
}

// Humanize renders a subject key for display: "ap_chemistry" becomes
// "Ap chemistry".
func Humanize(key string) string {
	s := strings.TrimSpace(strings.ReplaceAll(key, "_", " "))
	if s == "" {
		return s
	}
	s = strings.ToLower(s)
	return strings.ToUpper(s[:1]) + s[1:]
}
