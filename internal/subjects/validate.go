package subjects

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate checks every table entry, including the fallback, and returns all
// problems found.
func Validate() error {
	var errs []string
	seen := make(map[string]bool, len(table))

	check := func(name string, r Recommendation) {
		if len(r.NextSubjects) == 0 {
			errs = append(errs, fmt.Sprintf("%s: no next subjects", name))
		}
		if r.Message == "" {
			errs = append(errs, fmt.Sprintf("%s: empty message", name))
		}
		dup := make(map[string]bool, len(r.NextSubjects))
		for _, s := range r.NextSubjects {
			if dup[s] {
				errs = append(errs, fmt.Sprintf("%s: duplicate next subject %q", name, s))
			}
			dup[s] = true
		}
		for _, p := range r.PriorityOrder {
			if !slices.Contains(r.NextSubjects, p) {
				errs = append(errs, fmt.Sprintf("%s: priority subject %q not in next subjects", name, p))
			}
		}
	}

	for _, r := range table {
		if r.Subject != Normalize(r.Subject) {
			errs = append(errs, fmt.Sprintf("key %q is not normalized", r.Subject))
		}
		if seen[r.Subject] {
			errs = append(errs, fmt.Sprintf("duplicate key %q", r.Subject))
		}
		seen[r.Subject] = true
		check(r.Subject, r)
	}
	check("fallback", fallback)

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
