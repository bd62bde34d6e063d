// Package symptom maps free-text symptom descriptions to specialties by keyword lookup.
// Results are advisory; channel adapters decide whether to offer the top match or ask again.
package symptom

import (
	"sort"
	"strings"
)

// Mapping ties a set of keywords to one specialty. Mappings are evaluated in the order given,
// which is the order they were defined.
type Mapping struct {
	ID        int64
	Keywords  []string
	Specialty string
	Priority  int
}

type Match struct {
	Specialty string   `json:"specialty"`
	Score     int      `json:"score"`
	Keywords  []string `json:"matched_keywords"`
}

// Resolver is immutable after construction and safe for concurrent use.
type Resolver struct {
	mappings []Mapping
}

func NewResolver(mappings []Mapping) *Resolver {
	cp := make([]Mapping, len(mappings))
	for i, m := range mappings {
		kws := make([]string, 0, len(m.Keywords))
		for _, kw := range m.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				kws = append(kws, kw)
			}
		}
		m.Keywords = kws
		cp[i] = m
	}
	return &Resolver{mappings: cp}
}

// Resolve returns one Match per specialty whose keywords appear in text, highest score first.
// The score is the priority of the best matching mapping for that specialty; equal scores keep
// the order in which the winning mappings were defined.
func (r *Resolver) Resolve(text string) []Match {
	haystack := strings.ToLower(text)
	if strings.TrimSpace(haystack) == "" {
		return nil
	}

	type candidate struct {
		Match
		order int
	}
	bySpecialty := make(map[string]*candidate)
	var found []*candidate

	for i, m := range r.mappings {
		var hits []string
		for _, kw := range m.Keywords {
			if strings.Contains(haystack, kw) {
				hits = append(hits, kw)
			}
		}
		if len(hits) == 0 {
			continue
		}

		existing, ok := bySpecialty[m.Specialty]
		if !ok {
			c := &candidate{Match: Match{Specialty: m.Specialty, Score: m.Priority, Keywords: hits}, order: i}
			bySpecialty[m.Specialty] = c
			found = append(found, c)
			continue
		}
		if m.Priority > existing.Score {
			existing.Score = m.Priority
			existing.order = i
		}
		existing.Keywords = appendUnique(existing.Keywords, hits)
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Score != found[j].Score {
			return found[i].Score > found[j].Score
		}
		return found[i].order < found[j].order
	})

	out := make([]Match, len(found))
	for i, c := range found {
		out[i] = c.Match
	}
	return out
}

func appendUnique(dst, src []string) []string {
	for _, s := range src {
		dup := false
		for _, d := range dst {
			if d == s {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, s)
		}
	}
	return dst
}
