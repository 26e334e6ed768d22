// Package filter decides whether a fetched ranking item should be persisted
// and resolves which of its page URLs to keep.
package filter

import (
	"strings"

	"github.com/himawari-lab/pixrank/internal/domain"
)

// MatchesAny reports whether s matches any exclusion pattern. Patterns come
// in four forms: `*x*` contains, `x*` prefix, `*x` suffix, and exact literal.
// s is lowercased before matching; patterns are expected lowercase already.
func MatchesAny(s string, patterns []string) bool {
	s = strings.ToLower(s)
	for _, p := range patterns {
		leading := strings.HasPrefix(p, "*")
		trailing := strings.HasSuffix(p, "*") && len(p) > 1
		needle := strings.Trim(p, "*")
		switch {
		case leading && trailing:
			if strings.Contains(s, needle) {
				return true
			}
		case trailing:
			if strings.HasPrefix(s, needle) {
				return true
			}
		case leading:
			if strings.HasSuffix(s, needle) {
				return true
			}
		default:
			if s == p {
				return true
			}
		}
	}
	return false
}

// Policy is the inclusion/exclusion policy applied to each fetched item.
type Policy struct {
	// ExcludedTags are lowercase exclusion patterns matched against tag
	// names and translated names.
	ExcludedTags []string
	// AllowMultiplePages admits illustrations with more than one page.
	AllowMultiplePages bool
	// AllPages keeps every page of a multi-page illustration instead of
	// only the first.
	AllPages bool
	// Quality is the requested asset tier.
	Quality domain.Quality
}

// Admit reports whether the item passes the policy.
func (p Policy) Admit(item domain.RankingItem) bool {
	if item.Type == "manga" && MatchesAny("manga", p.ExcludedTags) {
		return false
	}
	if !p.AllowMultiplePages && item.PageCount > 1 {
		return false
	}
	for _, tag := range item.Tags {
		if MatchesAny(tag.Name, p.ExcludedTags) {
			return false
		}
		if tag.TranslatedName != nil && MatchesAny(*tag.TranslatedName, p.ExcludedTags) {
			return false
		}
	}
	return true
}

// PageURLs resolves the asset URLs to persist for an admitted item, at the
// policy's quality tier. Single-page items yield one URL; multi-page items
// yield either the first page or all pages.
func (p Policy) PageURLs(item domain.RankingItem) []string {
	if item.PageCount == 1 {
		if url := item.SinglePage.URL(p.Quality); url != "" {
			return []string{url}
		}
	}
	var urls []string
	for _, page := range item.MetaPages {
		urls = append(urls, page.URL(p.Quality))
		if !p.AllPages {
			break
		}
	}
	return urls
}
