// file: internal/metadata/match.go
// version: 1.0.0
// guid: 5d7f1e2a-8c34-4f9b-b6a0-2e9d3c4b5a61

package metadata

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/jdfalk/media-library/internal/collection"
	"github.com/jdfalk/media-library/internal/models"
)

// SelectBest picks the candidate that answers q.
//
// Exact name matches win over prefix matches. Within a tier, album queries
// prefer candidates whose artist equals the hint, then the lowest provider
// ID wins. A prefix tier whose candidates disagree on the title is treated
// as ambiguous and yields ErrNotFound.
func SelectBest(q Query, candidates []*models.CanonicalMetadata) (*models.CanonicalMetadata, error) {
	want := normalizeName(q.Name)
	var exact, prefix []*models.CanonicalMetadata
	for _, c := range candidates {
		if c == nil {
			continue
		}
		got := normalizeName(c.Title)
		switch {
		case got == want:
			exact = append(exact, c)
		case hasWordPrefix(got, want):
			prefix = append(prefix, c)
		}
	}

	hint := ""
	if q.Kind == models.KindAlbum {
		hint = normalizeName(q.ArtistHint)
	}
	if best := pickFromTier(exact, hint, false); best != nil {
		return best, nil
	}
	if best := pickFromTier(prefix, hint, true); best != nil {
		return best, nil
	}
	return nil, fmt.Errorf("%w: no match for %s%s", ErrNotFound, q, nearMisses(q.Name, candidates))
}

func pickFromTier(tier []*models.CanonicalMetadata, hint string, requireOneTitle bool) *models.CanonicalMetadata {
	if len(tier) == 0 {
		return nil
	}
	if hint != "" {
		var hinted []*models.CanonicalMetadata
		for _, c := range tier {
			if normalizeName(c.ArtistName) == hint {
				hinted = append(hinted, c)
			}
		}
		if len(hinted) > 0 {
			tier = hinted
		}
	}
	tier = collection.SortedBy(tier, func(a, b *models.CanonicalMetadata) bool {
		return lessProviderID(a.ProviderID, b.ProviderID)
	})
	if requireOneTitle {
		title := normalizeName(tier[0].Title)
		for _, c := range tier[1:] {
			if normalizeName(c.Title) != title {
				return nil
			}
		}
	}
	return tier[0]
}

// lessProviderID orders numeric IDs numerically and everything else
// lexically.
func lessProviderID(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}

// hasWordPrefix reports whether s starts with prefix at a word boundary, so
// "help! (remastered)" matches "help" but "radiohead" does not match "radio".
func hasWordPrefix(s, prefix string) bool {
	if prefix == "" || !strings.HasPrefix(s, prefix) {
		return false
	}
	if len(s) == len(prefix) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[len(prefix):])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// normalizeName folds case, strips diacritics and collapses whitespace.
// Transformers are built per call because they carry state.
func normalizeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = cases.Fold().String(out)
	return strings.Join(strings.Fields(out), " ")
}

// nearMisses renders the closest candidate titles for a NotFound message.
func nearMisses(name string, candidates []*models.CanonicalMetadata) string {
	titles := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c != nil && c.Title != "" {
			titles = append(titles, c.Title)
		}
	}
	ranks := fuzzy.RankFindNormalizedFold(name, titles)
	if len(ranks) == 0 {
		return ""
	}
	sort.Sort(ranks)
	names := make([]string, 0, 3)
	for _, r := range ranks {
		if len(names) == 3 {
			break
		}
		names = append(names, r.Target)
	}
	return fmt.Sprintf(" (closest: %s)", strings.Join(names, ", "))
}
