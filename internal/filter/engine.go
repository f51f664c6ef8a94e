// Package filter implements keyword matching over job titles.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"jobfinder_bot/internal/model"
)

const regexPrefix = "re:"

type term struct {
	word string
	re   *regexp.Regexp
}

func (t term) match(lower string) bool {
	if t.re != nil {
		return t.re.MatchString(lower)
	}
	return strings.Contains(lower, t.word)
}

// Query is a parsed set of include and exclude terms.
// Include terms use OR logic (at least one must match).
// Exclude terms use AND logic (none must match).
type Query struct {
	include []term
	exclude []term
}

// ParseQuery parses a whitespace-separated query. A leading "-" excludes the
// term and a "re:" prefix makes it a case-insensitive regular expression,
// e.g. "bank -clerk re:^ssc".
func ParseQuery(args string) (Query, error) {
	var q Query
	for _, field := range strings.Fields(args) {
		exclude := false
		if strings.HasPrefix(field, "-") && len(field) > 1 {
			exclude = true
			field = field[1:]
		}

		var t term
		if pattern, ok := strings.CutPrefix(field, regexPrefix); ok {
			if pattern == "" {
				return Query{}, fmt.Errorf("empty regex in %q", field)
			}
			re, err := ValidateRegex(pattern)
			if err != nil {
				return Query{}, err
			}
			t.re = re
		} else {
			t.word = strings.ToLower(field)
		}

		if exclude {
			q.exclude = append(q.exclude, t)
		} else {
			q.include = append(q.include, t)
		}
	}
	return q, nil
}

// IsEmpty reports whether the query has no terms.
func (q Query) IsEmpty() bool {
	return len(q.include) == 0 && len(q.exclude) == 0
}

// Match checks whether a title passes the query.
// An empty query matches everything.
func (q Query) Match(title string) bool {
	lower := strings.ToLower(title)
	for _, t := range q.exclude {
		if t.match(lower) {
			return false
		}
	}
	if len(q.include) == 0 {
		return true
	}
	for _, t := range q.include {
		if t.match(lower) {
			return true
		}
	}
	return false
}

// Apply keeps the entries of d matching q, at most limit per section
// (zero means no limit), and drops sections left empty.
func Apply(d model.Digest, q Query, limit int) model.Digest {
	out := model.Digest{GeneratedAt: d.GeneratedAt}
	for _, sec := range d.Sections {
		var kept []model.JobEntry
		for _, e := range sec.Entries {
			if limit > 0 && len(kept) >= limit {
				break
			}
			if q.Match(e.Title) {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			continue
		}
		sec.Entries = kept
		out.Sections = append(out.Sections, sec)
	}
	return out
}

// ValidateRegex compiles a pattern as a case-insensitive regular expression.
func ValidateRegex(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return re, nil
}
