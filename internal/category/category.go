// Package category holds the closed set of topical categories items are
// filed under, and the single place where free-text tags are resolved
// against that set.
package category

import "strings"

// Category is one element of the configured enumeration.
type Category string

// Default is the enumeration used when the config does not override it.
// The last element is always the catch-all.
func Default() []Category {
	return []Category{"astronomy", "physics", "chemistry", "life-science", "other"}
}

// FromStrings converts a configured list; empty input falls back to Default.
func FromStrings(names []string) []Category {
	if len(names) == 0 {
		return Default()
	}
	cats := make([]Category, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		cats = append(cats, Category(n))
	}
	if len(cats) == 0 {
		return Default()
	}
	return cats
}

// CatchAll returns the last element of the enumeration.
func CatchAll(cats []Category) Category {
	return cats[len(cats)-1]
}

// Contains reports whether c is a member of the enumeration.
func Contains(cats []Category, c Category) bool {
	for _, cat := range cats {
		if cat == c {
			return true
		}
	}
	return false
}

// Resolve maps an ordered tag list (most relevant first) to exactly one
// category. Only exact matches against the enumeration count; a tag that
// merely contains or is contained by a category name is ignored. When no
// tag matches, the catch-all applies.
func Resolve(tags []string, cats []Category) Category {
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		for _, cat := range cats {
			if strings.EqualFold(tag, string(cat)) {
				return cat
			}
		}
	}
	return CatchAll(cats)
}
