package feedscan

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Metadata is the descriptive text and canonical reference URL associated
// with a media element.
type Metadata struct {
	Description string
	URL         string
}

// extract locates the description and reference URL for a candidate using a
// prioritized fallback search over the surrounding document structure. It is
// heuristic and best-effort: malformed or missing structure yields empty
// strings, never an error.
func (s *Scanner) extract(c candidate) Metadata {
	return Metadata{
		Description: s.extractDescription(c.sel),
		URL:         s.extractPermalink(c.sel, c.page),
	}
}

// extractDescription applies the description search in strict priority order:
// known description slots inside the nearest feed-item ancestor, then a
// bounded ancestor walk scanning text-bearing descendants, then the element's
// own accessible label or title attribute.
func (s *Scanner) extractDescription(sel *goquery.Selection) string {
	// Priority 1: description slots within the enclosing feed item
	if item := sel.Closest(strings.Join(s.config.FeedItemSelectors, ", ")); item.Length() > 0 {
		for _, q := range s.config.DescriptionSelectors {
			if t := normalizeText(item.Find(q).First().Text()); t != "" {
				return t
			}
		}
	}

	// Priority 2: walk up ancestor levels scanning for viable text
	anc := sel.Parent()
	for level := 0; level < s.config.MaxAncestorLevels && anc.Length() > 0; level++ {
		if t := s.firstViableText(anc); t != "" {
			return t
		}
		anc = anc.Parent()
	}

	// Priority 3: the element's own accessible label
	if t := normalizeText(sel.AttrOr("aria-label", "")); t != "" {
		return t
	}
	return normalizeText(sel.AttrOr("title", ""))
}

// firstViableText scans the text-bearing descendants of root and returns the
// first candidate that looks like a real description.
func (s *Scanner) firstViableText(root *goquery.Selection) string {
	var out string
	root.Find("span, p, h1, h2, h3, h4, strong, em, a").EachWithBreak(func(_ int, d *goquery.Selection) bool {
		t := normalizeText(d.Text())
		if s.viableDescription(t) {
			out = t
			return false
		}
		return true
	})
	return out
}

// viableDescription filters out decoration text: a description must have at
// least 2 characters, carry at least one letter, digit, hash or at-sign, and
// pass the script filter.
func (s *Scanner) viableDescription(t string) bool {
	if utf8.RuneCountInString(t) < 2 {
		return false
	}
	substantive := false
	for _, r := range t {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '#' || r == '@' {
			substantive = true
			break
		}
	}
	if !substantive {
		return false
	}
	return matchesScript(t, s.config.ScriptRanges)
}

// extractPermalink finds the nearest enclosing or sibling hyperlink whose
// target matches the video permalink pattern. Falls back to the snapshot's
// page URL when no permalink is found.
func (s *Scanner) extractPermalink(sel *goquery.Selection, page string) string {
	if a := sel.Closest("a[href]"); a.Length() > 0 {
		if href := a.AttrOr("href", ""); s.permalink.MatchString(href) {
			return resolveRef(page, href)
		}
	}

	anc := sel.Parent()
	for level := 0; level < s.config.MaxAncestorLevels && anc.Length() > 0; level++ {
		var found string
		anc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			if href := a.AttrOr("href", ""); s.permalink.MatchString(href) {
				found = href
				return false
			}
			return true
		})
		if found != "" {
			return resolveRef(page, found)
		}
		anc = anc.Parent()
	}

	return page
}

// resolveRef resolves a potentially relative href against the page URL.
func resolveRef(page, href string) string {
	base, err := url.Parse(page)
	if err != nil {
		return href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return page
	}
	return base.ResolveReference(parsed).String()
}
